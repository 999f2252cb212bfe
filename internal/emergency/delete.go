package emergency

import (
	"context"
	"errors"

	"secure.share/emergency/internal/store"
)

// Delete removes a grant in any state. Either party may call it.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	row, err := s.loadAccess(ctx, id)
	if err != nil {
		return err
	}
	if !row.IsParty(actorID) {
		return forbidden(reasonForbidden)
	}

	if err := s.repo.Delete(ctx, row.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(reasonAccessNotFound)
		}
		return internal("delete emergency access", err)
	}

	s.logger.InfoContext(ctx, "emergency access deleted",
		"access_id", row.ID, "status", row.Status, "by", actorID)
	return nil
}
