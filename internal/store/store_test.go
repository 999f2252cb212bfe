package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"secure.share/emergency/internal/models"
)

func newRow(grantor, grantee string) *models.EmergencyAccess {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.EmergencyAccess{
		ID:        uuid.NewString(),
		GrantorID: grantor,
		GranteeID: grantee,
		Status:    models.StatusPending,
		WaitDays:  models.DefaultWaitDays,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func statusPtr(s models.Status) *models.Status { return &s }

// runRepositorySuite exercises the contract every Backend must honour.
func runRepositorySuite(t *testing.T, backend Backend) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()
		row := newRow(a, b)
		if err := backend.Create(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := backend.FindByID(ctx, row.ID)
		if err != nil {
			t.Fatalf("find by id: %v", err)
		}
		if got.GrantorID != a || got.GranteeID != b || got.Status != models.StatusPending {
			t.Fatalf("unexpected row: %+v", got)
		}

		got, err = backend.FindByPair(ctx, a, b)
		if err != nil {
			t.Fatalf("find by pair: %v", err)
		}
		if got.ID != row.ID {
			t.Fatalf("pair lookup id mismatch: got %s, want %s", got.ID, row.ID)
		}

		if _, err := backend.FindByPair(ctx, b, a); !errors.Is(err, ErrNotFound) {
			t.Fatalf("reverse pair should be absent, got %v", err)
		}
	})

	t.Run("duplicate pair conflicts", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()
		if err := backend.Create(ctx, newRow(a, b)); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := backend.Create(ctx, newRow(a, b)); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		// The opposite direction is a different grant.
		if err := backend.Create(ctx, newRow(b, a)); err != nil {
			t.Fatalf("reverse create: %v", err)
		}
	})

	t.Run("rejects invalid rows", func(t *testing.T) {
		a := uuid.NewString()
		self := newRow(a, a)
		if err := backend.Create(ctx, self); !errors.Is(err, ErrInvalid) {
			t.Fatalf("self grant: expected ErrInvalid, got %v", err)
		}
		wide := newRow(a, uuid.NewString())
		wide.WaitDays = 31
		if err := backend.Create(ctx, wide); !errors.Is(err, ErrInvalid) {
			t.Fatalf("wait days: expected ErrInvalid, got %v", err)
		}
	})

	t.Run("conditional update", func(t *testing.T) {
		row := newRow(uuid.NewString(), uuid.NewString())
		if err := backend.Create(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		expires := now.Add(7 * 24 * time.Hour)
		got, err := backend.Update(ctx, row.ID, models.StatusPending, models.Patch{
			Status:      statusPtr(models.StatusRequested),
			RequestedAt: &now,
			ExpiresAt:   &expires,
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Status != models.StatusRequested || got.RequestedAt == nil || !got.ExpiresAt.Equal(expires) {
			t.Fatalf("unexpected row after update: %+v", got)
		}

		_, err = backend.Update(ctx, row.ID, models.StatusPending, models.Patch{Status: statusPtr(models.StatusRequested)})
		if !errors.Is(err, ErrStatusChanged) {
			t.Fatalf("stale expected status: want ErrStatusChanged, got %v", err)
		}

		_, err = backend.Update(ctx, uuid.NewString(), models.StatusPending, models.Patch{})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing row: want ErrNotFound, got %v", err)
		}
	})

	t.Run("escrow written once", func(t *testing.T) {
		row := newRow(uuid.NewString(), uuid.NewString())
		if err := backend.Create(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}
		now := time.Now().UTC().Truncate(time.Microsecond)
		if _, err := backend.Update(ctx, row.ID, models.StatusPending, models.Patch{
			Status:      statusPtr(models.StatusRequested),
			RequestedAt: &now,
			ExpiresAt:   &now,
		}); err != nil {
			t.Fatalf("request: %v", err)
		}

		esc := &models.Escrow{GrantorPublicKey: "pub", GrantorPrivateKey: "priv", EncryptedVaultKey: "vault"}
		got, err := backend.Update(ctx, row.ID, models.StatusRequested, models.Patch{
			Status:     statusPtr(models.StatusApproved),
			ApprovedAt: &now,
			Escrow:     esc,
		})
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if got.Escrow == nil || *got.Escrow != *esc {
			t.Fatalf("escrow mismatch: %+v", got.Escrow)
		}

		partial := models.Patch{Escrow: &models.Escrow{GrantorPublicKey: "only"}}
		if _, err := backend.Update(ctx, row.ID, models.StatusApproved, partial); !errors.Is(err, ErrInvalid) {
			t.Fatalf("partial escrow: want ErrInvalid, got %v", err)
		}

		again, err := backend.Update(ctx, row.ID, models.StatusApproved, models.Patch{
			Escrow: &models.Escrow{GrantorPublicKey: "x", GrantorPrivateKey: "y", EncryptedVaultKey: "z"},
		})
		if err != nil {
			t.Fatalf("second escrow write: %v", err)
		}
		if *again.Escrow != *esc {
			t.Fatalf("escrow was overwritten: %+v", again.Escrow)
		}
	})

	t.Run("concurrent compare and set has one winner", func(t *testing.T) {
		row := newRow(uuid.NewString(), uuid.NewString())
		if err := backend.Create(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := backend.Update(ctx, row.ID, models.StatusPending, models.Patch{Status: statusPtr(models.StatusRequested)})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				if !errors.Is(err, ErrStatusChanged) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("lists and delete", func(t *testing.T) {
		grantor := uuid.NewString()
		g1, g2 := uuid.NewString(), uuid.NewString()
		r1, r2 := newRow(grantor, g1), newRow(grantor, g2)
		r2.CreatedAt = r1.CreatedAt.Add(time.Second)
		for _, r := range []*models.EmergencyAccess{r1, r2} {
			if err := backend.Create(ctx, r); err != nil {
				t.Fatalf("create: %v", err)
			}
		}

		rows, err := backend.ListByGrantor(ctx, grantor)
		if err != nil {
			t.Fatalf("list by grantor: %v", err)
		}
		if len(rows) != 2 || rows[0].ID != r1.ID || rows[1].ID != r2.ID {
			t.Fatalf("unexpected grantor list: %+v", rows)
		}

		rows, err = backend.ListByGrantee(ctx, g2)
		if err != nil {
			t.Fatalf("list by grantee: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != r2.ID {
			t.Fatalf("unexpected grantee list: %+v", rows)
		}

		if err := backend.Delete(ctx, r1.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := backend.Delete(ctx, r1.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete: want ErrNotFound, got %v", err)
		}
		if _, err := backend.FindByID(ctx, r1.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("find after delete: want ErrNotFound, got %v", err)
		}
		// The pair is free again once the row is gone.
		if err := backend.Create(ctx, newRow(grantor, g1)); err != nil {
			t.Fatalf("recreate after delete: %v", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		id := uuid.NewString()
		email := id[:8] + "@Example.com"
		if err := backend.PutUser(ctx, &models.User{ID: id, Email: email, Name: "Ada"}); err != nil {
			t.Fatalf("put user: %v", err)
		}
		u, err := backend.FindUserByEmail(ctx, " "+id[:8]+"@example.COM")
		if err != nil {
			t.Fatalf("find by email: %v", err)
		}
		if u.ID != id || u.Name != "Ada" {
			t.Fatalf("unexpected user: %+v", u)
		}
		if _, err := backend.FindUserByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing user: want ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	runRepositorySuite(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	row := newRow("a", "b")
	if err := s.Create(ctx, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FindByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got.Status = models.StatusApproved

	again, err := s.FindByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if again.Status != models.StatusPending {
		t.Fatalf("caller mutation leaked into store: %s", again.Status)
	}
}
