package emergency

import (
	"context"
	"errors"
	"time"

	"secure.share/emergency/internal/models"
	"secure.share/emergency/internal/store"
)

type Role int

const (
	RoleGrantor Role = iota + 1
	RoleGrantee
)

// AccessView is what one party of a grant is allowed to see. Grantor views
// never carry escrow fields; the escrowed private key is never exposed.
type AccessView struct {
	ID     string        `json:"id"`
	Status models.Status `json:"status"`
	// AutoApproved marks a status derived from an elapsed waiting period
	// rather than a recorded approval. Escrow fields stay null in that case.
	AutoApproved bool       `json:"autoApproved,omitempty"`
	WaitDays     int        `json:"waitDays"`
	RequestedAt  *time.Time `json:"requestedAt"`
	ApprovedAt   *time.Time `json:"approvedAt"`
	DeniedAt     *time.Time `json:"deniedAt"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Grantor *models.PublicUser `json:"grantor,omitempty"`
	Grantee *models.PublicUser `json:"grantee,omitempty"`

	*GranteeEscrow
}

// GranteeEscrow is embedded only in grantee views. Its fields are null until
// access is granted.
type GranteeEscrow struct {
	EncryptedVaultKey *string `json:"encryptedVaultKey"`
	GrantorPublicKey  *string `json:"grantorPublicKey"`
}

type Overview struct {
	Contacts []*AccessView `json:"contacts"`
	Requests []*AccessView `json:"requests"`
}

// AutoApproved reports whether a requested grant's waiting period has run
// out without a denial. It is computed on every read and never stored.
func AutoApproved(row *models.EmergencyAccess, now time.Time) bool {
	return row.Status == models.StatusRequested &&
		row.ExpiresAt != nil &&
		!row.ExpiresAt.After(now)
}

// Get returns the grant as seen by actorID, who must be one of its parties.
func (s *Service) Get(ctx context.Context, actorID, id string) (*AccessView, error) {
	row, err := s.loadAccess(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actorID {
	case row.GrantorID:
		return s.view(ctx, row, RoleGrantor)
	case row.GranteeID:
		return s.view(ctx, row, RoleGrantee)
	}
	return nil, forbidden(reasonForbidden)
}

// Overview lists the grants actorID has given (contacts) and received (requests).
func (s *Service) Overview(ctx context.Context, actorID string) (*Overview, error) {
	contacts, err := s.ListContacts(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByGrantee(ctx, actorID)
	if err != nil {
		return nil, internal("list emergency requests", err)
	}
	requests, err := s.views(ctx, rows, RoleGrantee)
	if err != nil {
		return nil, err
	}

	return &Overview{Contacts: contacts, Requests: requests}, nil
}

func (s *Service) views(ctx context.Context, rows []*models.EmergencyAccess, role Role) ([]*AccessView, error) {
	out := make([]*AccessView, 0, len(rows))
	for _, row := range rows {
		v, err := s.view(ctx, row, role)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// view resolves the other party's identity and builds the role view.
func (s *Service) view(ctx context.Context, row *models.EmergencyAccess, role Role) (*AccessView, error) {
	peerID := row.GranteeID
	if role == RoleGrantee {
		peerID = row.GrantorID
	}

	peer, err := s.users.FindUserByID(ctx, peerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, internal("resolve user", err)
		}
		// The account was removed; the grant is still shown by id.
		peer = &models.User{ID: peerID}
	}
	return s.viewWithPeer(row, role, peer, s.clock()), nil
}

func (s *Service) viewWithPeer(row *models.EmergencyAccess, role Role, peer *models.User, now time.Time) *AccessView {
	auto := AutoApproved(row, now)

	v := &AccessView{
		ID:           row.ID,
		Status:       row.Status,
		AutoApproved: auto,
		WaitDays:     row.WaitDays,
		RequestedAt:  row.RequestedAt,
		ApprovedAt:   row.ApprovedAt,
		DeniedAt:     row.DeniedAt,
		ExpiresAt:    row.ExpiresAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if auto {
		v.Status = models.StatusApproved
	}

	switch role {
	case RoleGrantor:
		v.Grantee = peer.Public()
	case RoleGrantee:
		v.Grantor = peer.Public()
		v.GranteeEscrow = &GranteeEscrow{}
		granted := auto || row.Status == models.StatusApproved
		if granted && row.Escrow != nil {
			vaultKey := row.Escrow.EncryptedVaultKey
			pub := row.Escrow.GrantorPublicKey
			v.EncryptedVaultKey = &vaultKey
			v.GrantorPublicKey = &pub
		}
	}
	return v
}
