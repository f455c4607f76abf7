package signature

import (
	"context"
	"database/sql"
	"errors"

	"trustgate.io/internal/trust"
)

var _ Store = (*PGStore)(nil)

// PGStore resolves signing keys from PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FindSigningKey(ctx context.Context, keyID string) (*SigningKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, org_id, secret, tier, active from signature_keys where id=$1`, keyID)
	var (
		key  SigningKey
		tier string
	)
	err := row.Scan(&key.ID, &key.OrgID, &key.Secret, &tier, &key.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key.Tier = trust.ParseTier(tier)
	return &key, nil
}
