package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure.share/emergency/config"
	"secure.share/emergency/internal/api"
	"secure.share/emergency/internal/auth"
	"secure.share/emergency/internal/crypto"
	"secure.share/emergency/internal/emergency"
	"secure.share/emergency/internal/logging"
	"secure.share/emergency/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	for i := range cfg.Users {
		if err := st.PutUser(ctx, &cfg.Users[i]); err != nil {
			return fmt.Errorf("seeding user %s: %w", cfg.Users[i].ID, err)
		}
	}

	minter, err := crypto.NewRSAMinter(cfg.Emergency.KeyBits)
	if err != nil {
		return err
	}
	var sealer crypto.Sealer = crypto.PlainSealer{}
	if cfg.Emergency.SealSecret != "" {
		if sealer, err = crypto.NewAESSealer(cfg.Emergency.SealSecret); err != nil {
			return err
		}
	} else {
		logger.Warn("escrow private keys are stored unsealed; set emergency.seal_secret")
	}

	svc, err := emergency.NewService(emergency.Options{
		Repository:      st,
		Directory:       st,
		Minter:          minter,
		Sealer:          sealer,
		Logger:          logger,
		DefaultWaitDays: cfg.Emergency.DefaultWaitDays,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}

	router := api.SetupRouter(ctx, api.Deps{
		Service:  svc,
		Sessions: sessions,
		Config:   cfg,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting", "addr", cfg.Addr(), "store", cfg.Store.Type, "key_bits", cfg.Emergency.KeyBits)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func initStore(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Type {
	case "redis":
		return store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
	case "postgres":
		return store.NewPostgresStore(ctx, store.PostgresOptions{
			DSN:      cfg.Store.Postgres.DSN,
			MaxConns: cfg.Store.Postgres.MaxConns,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}
