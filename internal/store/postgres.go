package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"secure.share/emergency/internal/models"
)

var _ Backend = (*PostgresStore)(nil)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

const accessColumns = `id,grantor_id,grantee_id,status,wait_days,requested_at,approved_at,denied_at,expires_at,
grantor_public_key,grantor_private_key,encrypted_vault_key,created_at,updated_at`

type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

type PostgresOptions struct {
	DSN      string
	MaxConns int32
}

func NewPostgresStore(ctx context.Context, opt PostgresOptions) (*PostgresStore, error) {
	if opt.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if opt.MaxConns > 0 {
		cfg.MaxConns = opt.MaxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{db: pool, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, access *models.EmergencyAccess) error {
	if err := validateNew(access); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO emergency_access(id,grantor_id,grantee_id,status,wait_days,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
`, access.ID, access.GrantorID, access.GranteeID, string(access.Status), access.WaitDays, access.CreatedAt, access.UpdatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.EmergencyAccess, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accessColumns+` FROM emergency_access WHERE id=$1`, id)
	return scanAccess(row)
}

func (s *PostgresStore) FindByPair(ctx context.Context, grantorID, granteeID string) (*models.EmergencyAccess, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accessColumns+` FROM emergency_access WHERE grantor_id=$1 AND grantee_id=$2`, grantorID, granteeID)
	return scanAccess(row)
}

func (s *PostgresStore) ListByGrantor(ctx context.Context, grantorID string) ([]*models.EmergencyAccess, error) {
	return s.list(ctx, `SELECT `+accessColumns+` FROM emergency_access WHERE grantor_id=$1 ORDER BY created_at ASC, id ASC`, grantorID)
}

func (s *PostgresStore) ListByGrantee(ctx context.Context, granteeID string) ([]*models.EmergencyAccess, error) {
	return s.list(ctx, `SELECT `+accessColumns+` FROM emergency_access WHERE grantee_id=$1 ORDER BY created_at ASC, id ASC`, granteeID)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg string) ([]*models.EmergencyAccess, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.EmergencyAccess, 0)
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update is a single conditional statement: the WHERE clause carries the
// expected status, so concurrent writers cannot both succeed.
func (s *PostgresStore) Update(ctx context.Context, id string, expected models.Status, patch models.Patch) (*models.EmergencyAccess, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	var pub, priv, vaultKey *string
	if patch.Escrow != nil {
		pub = &patch.Escrow.GrantorPublicKey
		priv = &patch.Escrow.GrantorPrivateKey
		vaultKey = &patch.Escrow.EncryptedVaultKey
	}

	row := s.db.QueryRow(ctx, `
UPDATE emergency_access SET
  status=COALESCE($3,status),
  wait_days=COALESCE($4,wait_days),
  requested_at=COALESCE(requested_at,$5),
  approved_at=COALESCE(approved_at,$6),
  denied_at=COALESCE(denied_at,$7),
  expires_at=COALESCE(expires_at,$8),
  grantor_public_key=COALESCE(grantor_public_key,$9),
  grantor_private_key=COALESCE(grantor_private_key,$10),
  encrypted_vault_key=COALESCE(encrypted_vault_key,$11),
  updated_at=$12
WHERE id=$1 AND status=$2
RETURNING `+accessColumns,
		id, string(expected), status, patch.WaitDays,
		patch.RequestedAt, patch.ApprovedAt, patch.DeniedAt, patch.ExpiresAt,
		pub, priv, vaultKey, s.now().UTC())

	updated, err := scanAccess(row)
	if errors.Is(err, ErrNotFound) {
		// Zero rows: either the id is gone or the status moved on.
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM emergency_access WHERE id=$1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrStatusChanged
		}
		return nil, ErrNotFound
	}
	return updated, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM emergency_access WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `SELECT id,email,name FROM users WHERE id=$1`, id).Scan(&u.ID, &u.Email, &u.Name)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `SELECT id,email,name FROM users WHERE lower(email)=$1`, normalizeEmail(email)).Scan(&u.ID, &u.Email, &u.Name)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &u, nil
}

func (s *PostgresStore) PutUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return ErrInvalid
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO users(id,email,name)
VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email,name=EXCLUDED.name
`, user.ID, user.Email, user.Name)
	return mapPgErr(err)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanAccess(row pgx.Row) (*models.EmergencyAccess, error) {
	var (
		a                   models.EmergencyAccess
		status              string
		pub, priv, vaultKey *string
	)
	err := row.Scan(&a.ID, &a.GrantorID, &a.GranteeID, &status, &a.WaitDays,
		&a.RequestedAt, &a.ApprovedAt, &a.DeniedAt, &a.ExpiresAt,
		&pub, &priv, &vaultKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	a.Status = models.Status(status)
	if pub != nil && priv != nil && vaultKey != nil {
		a.Escrow = &models.Escrow{
			GrantorPublicKey:  *pub,
			GrantorPrivateKey: *priv,
			EncryptedVaultKey: *vaultKey,
		}
	}
	return &a, nil
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrInvalid, pgErr.ConstraintName)
		}
	}
	return err
}
