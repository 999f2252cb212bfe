package emergency

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"secure.share/emergency/internal/models"
	"secure.share/emergency/internal/store"
)

type CreateContactInput struct {
	Email    string
	WaitDays *int
}

// CreateContact adds a pending grant from actorID to the user owning Email.
func (s *Service) CreateContact(ctx context.Context, actorID string, in CreateContactInput) (*AccessView, error) {
	email, ok := normalizeEmail(in.Email)
	if !ok {
		return nil, invalidInput(reasonInvalidEmail)
	}
	waitDays := s.defaultWaitDays
	if in.WaitDays != nil {
		waitDays = *in.WaitDays
	}
	if !validWaitDays(waitDays) {
		return nil, invalidInput(reasonInvalidWaitDays)
	}

	grantee, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(reasonUserNotFound)
		}
		return nil, internal("resolve grantee", err)
	}
	if grantee.ID == actorID {
		return nil, invalidInput(reasonSelfContact)
	}

	if _, err := s.repo.FindByPair(ctx, actorID, grantee.ID); err == nil {
		return nil, conflict(reasonConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal("find emergency access pair", err)
	}

	now := s.clock()
	row := &models.EmergencyAccess{
		ID:        uuid.NewString(),
		GrantorID: actorID,
		GranteeID: grantee.ID,
		Status:    models.StatusPending,
		WaitDays:  waitDays,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		// A concurrent create for the same pair loses here.
		if errors.Is(err, store.ErrConflict) {
			return nil, conflict(reasonConflict)
		}
		return nil, internal("create emergency access", err)
	}

	s.logger.InfoContext(ctx, "emergency contact created",
		"access_id", row.ID, "grantor_id", row.GrantorID, "grantee_id", row.GranteeID, "wait_days", row.WaitDays)

	return s.viewWithPeer(row, RoleGrantor, grantee, now), nil
}

// ListContacts returns every grant where actorID is the grantor.
func (s *Service) ListContacts(ctx context.Context, actorID string) ([]*AccessView, error) {
	rows, err := s.repo.ListByGrantor(ctx, actorID)
	if err != nil {
		return nil, internal("list emergency contacts", err)
	}
	return s.views(ctx, rows, RoleGrantor)
}

type UpdateContactInput struct {
	ID       string
	WaitDays *int
}

// UpdateContact changes the waiting period of a grant that is still pending.
func (s *Service) UpdateContact(ctx context.Context, actorID string, in UpdateContactInput) (*AccessView, error) {
	if in.WaitDays != nil && !validWaitDays(*in.WaitDays) {
		return nil, invalidInput(reasonInvalidWaitDays)
	}

	row, err := s.loadAccess(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if row.GrantorID != actorID {
		return nil, forbidden(reasonForbidden)
	}
	if _, err := Transition(row.Status, EventEditWaitDays); err != nil {
		return nil, err
	}

	if in.WaitDays != nil && *in.WaitDays != row.WaitDays {
		row, err = s.repo.Update(ctx, row.ID, models.StatusPending, models.Patch{WaitDays: in.WaitDays})
		if err != nil {
			return nil, fromUpdate("update emergency contact", err)
		}
		s.logger.InfoContext(ctx, "emergency contact updated", "access_id", row.ID, "wait_days", row.WaitDays)
	}

	return s.view(ctx, row, RoleGrantor)
}
