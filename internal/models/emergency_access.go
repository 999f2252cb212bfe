package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	// StatusExpired is part of the client vocabulary only. It is never stored.
	StatusExpired Status = "expired"
)

// Valid reports whether s may be persisted.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRequested, StatusApproved, StatusDenied:
		return true
	}
	return false
}

const (
	MinWaitDays     = 1
	MaxWaitDays     = 30
	DefaultWaitDays = 7
)

// Escrow is the key material written by an approval. The three values are
// set together and never change afterwards.
type Escrow struct {
	GrantorPublicKey  string `json:"grantor_public_key"`
	GrantorPrivateKey string `json:"grantor_private_key"`
	EncryptedVaultKey string `json:"encrypted_vault_key"`
}

// EmergencyAccess is a directed grant from a vault owner (grantor) to a
// trusted contact (grantee).
type EmergencyAccess struct {
	ID          string     `json:"id"`
	GrantorID   string     `json:"grantor_id"`
	GranteeID   string     `json:"grantee_id"`
	Status      Status     `json:"status"`
	WaitDays    int        `json:"wait_days"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	DeniedAt    *time.Time `json:"denied_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Escrow      *Escrow    `json:"escrow,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so stores can hand out rows without sharing
// pointers to their internal state.
func (e *EmergencyAccess) Clone() *EmergencyAccess {
	if e == nil {
		return nil
	}
	c := *e
	c.RequestedAt = cloneTime(e.RequestedAt)
	c.ApprovedAt = cloneTime(e.ApprovedAt)
	c.DeniedAt = cloneTime(e.DeniedAt)
	c.ExpiresAt = cloneTime(e.ExpiresAt)
	if e.Escrow != nil {
		esc := *e.Escrow
		c.Escrow = &esc
	}
	return &c
}

// IsParty reports whether userID is the grantor or the grantee.
func (e *EmergencyAccess) IsParty(userID string) bool {
	return userID != "" && (userID == e.GrantorID || userID == e.GranteeID)
}

// Patch describes a conditional change to a row. Nil fields are left alone.
// Timestamps and escrow are write-once: stores refuse to overwrite them.
type Patch struct {
	Status      *Status
	WaitDays    *int
	RequestedAt *time.Time
	ApprovedAt  *time.Time
	DeniedAt    *time.Time
	ExpiresAt   *time.Time
	Escrow      *Escrow
}

// Apply writes the patch onto e and bumps UpdatedAt.
func (p Patch) Apply(e *EmergencyAccess, now time.Time) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.WaitDays != nil {
		e.WaitDays = *p.WaitDays
	}
	if p.RequestedAt != nil && e.RequestedAt == nil {
		e.RequestedAt = cloneTime(p.RequestedAt)
	}
	if p.ApprovedAt != nil && e.ApprovedAt == nil {
		e.ApprovedAt = cloneTime(p.ApprovedAt)
	}
	if p.DeniedAt != nil && e.DeniedAt == nil {
		e.DeniedAt = cloneTime(p.DeniedAt)
	}
	if p.ExpiresAt != nil && e.ExpiresAt == nil {
		e.ExpiresAt = cloneTime(p.ExpiresAt)
	}
	if p.Escrow != nil && e.Escrow == nil {
		esc := *p.Escrow
		e.Escrow = &esc
	}
	e.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
