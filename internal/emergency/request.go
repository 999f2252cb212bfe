package emergency

import (
	"context"
	"errors"
	"strings"
	"time"

	"secure.share/emergency/internal/models"
	"secure.share/emergency/internal/store"
)

// RequestAccess starts the waiting period on the grant from grantorID to
// actorID. An unknown pair is reported as forbidden so a caller cannot probe
// which users have named them as a contact.
func (s *Service) RequestAccess(ctx context.Context, actorID, grantorID string) (*AccessView, error) {
	grantorID = strings.TrimSpace(grantorID)
	if grantorID == "" {
		return nil, invalidInput(reasonGrantorRequired)
	}
	if grantorID == actorID {
		return nil, invalidInput(reasonSelfRequest)
	}

	row, err := s.repo.FindByPair(ctx, grantorID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, forbidden(reasonNotTrusted)
		}
		return nil, internal("find emergency access pair", err)
	}

	next, err := Transition(row.Status, EventRequest)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	expires := now.Add(time.Duration(row.WaitDays) * 24 * time.Hour)
	updated, err := s.repo.Update(ctx, row.ID, row.Status, models.Patch{
		Status:      &next,
		RequestedAt: &now,
		ExpiresAt:   &expires,
	})
	if err != nil {
		return nil, fromUpdate("request emergency access", err)
	}

	s.logger.InfoContext(ctx, "emergency access requested",
		"access_id", updated.ID, "grantor_id", updated.GrantorID, "grantee_id", updated.GranteeID, "expires_at", expires)

	return s.view(ctx, updated, RoleGrantee)
}
