package emergency

import (
	"context"

	"secure.share/emergency/internal/models"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
)

type RespondInput struct {
	ID     string
	Action Action
	// EncryptedVaultKey is produced by the grantor's client for the grantee.
	// Required for approve, ignored for deny.
	EncryptedVaultKey string
}

// Respond resolves a requested grant. Approval mints a fresh keypair and
// writes status, approvedAt and all escrow fields in one conditional update.
func (s *Service) Respond(ctx context.Context, actorID string, in RespondInput) (*AccessView, error) {
	var ev Event
	switch in.Action {
	case ActionApprove:
		ev = EventApprove
		if in.EncryptedVaultKey == "" {
			return nil, invalidInput(reasonVaultKeyMissing)
		}
	case ActionDeny:
		ev = EventDeny
	default:
		return nil, invalidInput(reasonInvalidAction)
	}

	row, err := s.loadAccess(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if row.GrantorID != actorID {
		return nil, forbidden(reasonForbidden)
	}

	next, err := Transition(row.Status, ev)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	patch := models.Patch{Status: &next}
	if ev == EventDeny {
		patch.DeniedAt = &now
	} else {
		escrow, err := s.mintEscrow(ctx, in.EncryptedVaultKey)
		if err != nil {
			return nil, err
		}
		patch.ApprovedAt = &now
		patch.Escrow = escrow
	}

	updated, err := s.repo.Update(ctx, row.ID, row.Status, patch)
	if err != nil {
		return nil, fromUpdate("respond to emergency access", err)
	}

	s.logger.InfoContext(ctx, "emergency access "+string(next),
		"access_id", updated.ID, "grantor_id", updated.GrantorID, "grantee_id", updated.GranteeID)

	return s.view(ctx, updated, RoleGrantor)
}

func (s *Service) mintEscrow(ctx context.Context, encryptedVaultKey string) (*models.Escrow, error) {
	kp, err := s.keys.Mint(ctx)
	if err != nil {
		return nil, internal("mint escrow keypair", err)
	}
	sealed, err := s.sealer.Seal([]byte(kp.PrivateKeyPEM))
	if err != nil {
		return nil, internal("seal escrow private key", err)
	}
	return &models.Escrow{
		GrantorPublicKey:  kp.PublicKeyPEM,
		GrantorPrivateKey: sealed,
		EncryptedVaultKey: encryptedVaultKey,
	}, nil
}
