// Command sessiontoken prints a signed session token for a user id. It reads
// the same config as the server so tokens verify against it.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"secure.share/emergency/config"
	"secure.share/emergency/internal/auth"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.session_ttl)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lifetime := cfg.Auth.SessionTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := issue(cfg.Auth.SessionSecret, lifetime, *userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(secret string, ttl time.Duration, userID string) (string, error) {
	sessions, err := auth.NewSessions(secret, ttl)
	if err != nil {
		return "", err
	}
	return sessions.Issue(userID)
}
