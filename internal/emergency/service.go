// Package emergency implements time-delayed emergency access: a vault owner
// (grantor) names trusted contacts (grantees) who may request access, and the
// grantor approves or denies within a waiting period.
package emergency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"secure.share/emergency/internal/crypto"
	"secure.share/emergency/internal/models"
	"secure.share/emergency/internal/store"
)

type Options struct {
	Repository      store.Repository
	Directory       store.Directory
	Minter          crypto.KeypairMinter
	Sealer          crypto.Sealer
	Logger          *slog.Logger
	Now             func() time.Time
	DefaultWaitDays int
}

// Service holds no mutable state of its own; every transition is a single
// conditional write against the repository.
type Service struct {
	repo            store.Repository
	users           store.Directory
	keys            crypto.KeypairMinter
	sealer          crypto.Sealer
	logger          *slog.Logger
	now             func() time.Time
	defaultWaitDays int
}

func NewService(opt Options) (*Service, error) {
	if opt.Repository == nil {
		return nil, errors.New("emergency: repository is required")
	}
	if opt.Directory == nil {
		return nil, errors.New("emergency: directory is required")
	}
	if opt.Minter == nil {
		return nil, errors.New("emergency: keypair minter is required")
	}

	s := &Service{
		repo:            opt.Repository,
		users:           opt.Directory,
		keys:            opt.Minter,
		sealer:          opt.Sealer,
		logger:          opt.Logger,
		now:             opt.Now,
		defaultWaitDays: opt.DefaultWaitDays,
	}
	if s.sealer == nil {
		s.sealer = crypto.PlainSealer{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultWaitDays == 0 {
		s.defaultWaitDays = models.DefaultWaitDays
	}
	if !validWaitDays(s.defaultWaitDays) {
		return nil, errors.New("emergency: default wait days out of range")
	}
	return s, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) loadAccess(ctx context.Context, id string) (*models.EmergencyAccess, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput(reasonIDRequired)
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(reasonAccessNotFound)
		}
		return nil, internal("find emergency access", err)
	}
	return row, nil
}

// fromUpdate maps a failed conditional write to a protocol error.
func fromUpdate(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrStatusChanged):
		return conflict(reasonStateChanged)
	case errors.Is(err, store.ErrNotFound):
		return notFound(reasonAccessNotFound)
	default:
		return internal(op, err)
	}
}

func validWaitDays(n int) bool {
	return n >= models.MinWaitDays && n <= models.MaxWaitDays
}

// normalizeEmail accepts a bare address only; display-name forms are rejected.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	at := strings.LastIndexByte(raw, '@')
	if at <= 0 || !strings.Contains(raw[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(raw), true
}
