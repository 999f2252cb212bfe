// redis.go
package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"secure.share/emergency/internal/models"
)

var _ Backend = (*RedisStore)(nil)

const maxTxRetries = 5

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, now: time.Now}, nil
}

func (r *RedisStore) Create(ctx context.Context, access *models.EmergencyAccess) error {
	if err := validateNew(access); err != nil {
		return err
	}

	data, err := encode(access)
	if err != nil {
		return err
	}

	pk := pairKey(access.GrantorID, access.GranteeID)
	rk := accessKey(access.ID)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, pk, rk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, 0)
			pipe.Set(ctx, pk, access.ID, 0)
			pipe.SAdd(ctx, grantorIndexKey(access.GrantorID), access.ID)
			pipe.SAdd(ctx, granteeIndexKey(access.GranteeID), access.ID)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, ErrConflict, pk, rk)
}

func (r *RedisStore) FindByID(ctx context.Context, id string) (*models.EmergencyAccess, error) {
	data, err := r.client.Get(ctx, accessKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (r *RedisStore) FindByPair(ctx context.Context, grantorID, granteeID string) (*models.EmergencyAccess, error) {
	id, err := r.client.Get(ctx, pairKey(grantorID, granteeID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *RedisStore) ListByGrantor(ctx context.Context, grantorID string) ([]*models.EmergencyAccess, error) {
	return r.listIndex(ctx, grantorIndexKey(grantorID))
}

func (r *RedisStore) ListByGrantee(ctx context.Context, granteeID string) ([]*models.EmergencyAccess, error) {
	return r.listIndex(ctx, granteeIndexKey(granteeID))
}

func (r *RedisStore) listIndex(ctx context.Context, index string) ([]*models.EmergencyAccess, error) {
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*models.EmergencyAccess, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accessKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		// Rows deleted between SMEMBERS and MGET come back nil.
		s, ok := v.(string)
		if !ok {
			continue
		}
		row, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	sortByCreated(out)
	return out, nil
}

func (r *RedisStore) Update(ctx context.Context, id string, expected models.Status, patch models.Patch) (*models.EmergencyAccess, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	key := accessKey(id)
	var updated *models.EmergencyAccess

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		row, err := decode(data)
		if err != nil {
			return err
		}
		if row.Status != expected {
			return ErrStatusChanged
		}

		patch.Apply(row, r.now().UTC())
		newData, err := encode(row)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		if err == nil {
			updated = row
		}
		return err
	}

	if err := r.watch(ctx, txf, ErrStatusChanged, key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	key := accessKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		row, err := decode(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, pairKey(row.GrantorID, row.GranteeID))
			pipe.SRem(ctx, grantorIndexKey(row.GrantorID), id)
			pipe.SRem(ctx, granteeIndexKey(row.GranteeID), id)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, ErrNotFound, key)
}

func (r *RedisStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	data, err := r.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var u models.User
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *RedisStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := r.client.Get(ctx, userEmailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.FindUserByID(ctx, id)
}

func (r *RedisStore) PutUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return ErrInvalid
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(user); err != nil {
		return err
	}

	prev, err := r.FindUserByID(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil && normalizeEmail(prev.Email) != normalizeEmail(user.Email) {
			pipe.Del(ctx, userEmailKey(prev.Email))
		}
		pipe.Set(ctx, userKey(user.ID), buf.Bytes(), 0)
		pipe.Set(ctx, userEmailKey(user.Email), user.ID, 0)
		return nil
	})
	return err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// watch runs txf under WATCH on keys, retrying optimistic-lock failures.
// When retries run out the caller's exhausted error is returned.
func (r *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error, exhausted error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return exhausted
}

// Helpers

func accessKey(id string) string {
	return "emergency:" + id
}

func pairKey(grantorID, granteeID string) string {
	return "emergency:pair:" + grantorID + ":" + granteeID
}

func grantorIndexKey(grantorID string) string {
	return "emergency:grantor:" + grantorID
}

func granteeIndexKey(granteeID string) string {
	return "emergency:grantee:" + granteeID
}

func userKey(id string) string {
	return "user:" + id
}

func userEmailKey(email string) string {
	return "user:email:" + normalizeEmail(email)
}

func encode(access *models.EmergencyAccess) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(access); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.EmergencyAccess, error) {
	var access models.EmergencyAccess
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&access); err != nil {
		return nil, err
	}
	return &access, nil
}
