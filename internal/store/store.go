package store

import (
	"context"
	"errors"

	"secure.share/emergency/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("emergency access already exists for this pair")
	ErrStatusChanged = errors.New("status changed")
	ErrInvalid       = errors.New("invalid emergency access row")
)

// Repository persists emergency access rows. Writes after Create are always
// compare-and-set on the current status; there is no unconditional update.
type Repository interface {
	Create(ctx context.Context, access *models.EmergencyAccess) error
	FindByID(ctx context.Context, id string) (*models.EmergencyAccess, error)
	FindByPair(ctx context.Context, grantorID, granteeID string) (*models.EmergencyAccess, error)
	ListByGrantor(ctx context.Context, grantorID string) ([]*models.EmergencyAccess, error)
	ListByGrantee(ctx context.Context, granteeID string) ([]*models.EmergencyAccess, error)
	// Update applies patch only if the row's persisted status equals expected.
	Update(ctx context.Context, id string, expected models.Status, patch models.Patch) (*models.EmergencyAccess, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Directory resolves users. It is owned by the account system; PutUser only
// exists so a deployment can seed it from config.
type Directory interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error
}

// Backend bundles both halves behind one connection.
type Backend interface {
	Repository
	Directory
}

func validateNew(access *models.EmergencyAccess) error {
	switch {
	case access == nil || access.ID == "":
		return ErrInvalid
	case access.GrantorID == "" || access.GranteeID == "":
		return ErrInvalid
	case access.GrantorID == access.GranteeID:
		return ErrInvalid
	case access.Status != models.StatusPending:
		return ErrInvalid
	case access.WaitDays < models.MinWaitDays || access.WaitDays > models.MaxWaitDays:
		return ErrInvalid
	case access.Escrow != nil:
		return ErrInvalid
	}
	return nil
}

func validatePatch(patch models.Patch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return ErrInvalid
	}
	if patch.WaitDays != nil && (*patch.WaitDays < models.MinWaitDays || *patch.WaitDays > models.MaxWaitDays) {
		return ErrInvalid
	}
	if patch.Escrow != nil {
		esc := patch.Escrow
		if esc.GrantorPublicKey == "" || esc.GrantorPrivateKey == "" || esc.EncryptedVaultKey == "" {
			return ErrInvalid
		}
	}
	return nil
}
