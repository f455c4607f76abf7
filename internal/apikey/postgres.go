package apikey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"trustgate.io/internal/trust"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, key *Key) error {
	scopes, _ := json.Marshal(key.Scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into api_keys(id, org_id, prefix, secret_hash, scopes, tier, active, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		key.ID, key.OrgID, key.Prefix, key.Hash, scopes, string(key.Tier), key.Active, key.CreatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Key, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, org_id, prefix, secret_hash, scopes, tier, active, created_at, revoked_at
		 from api_keys where id=$1`, id))
}

func (s *PGStore) FindByHash(ctx context.Context, hash string) (*Key, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, org_id, prefix, secret_hash, scopes, tier, active, created_at, revoked_at
		 from api_keys where secret_hash=$1`, hash))
}

func (s *PGStore) ListByOrg(ctx context.Context, orgID string) ([]*Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, prefix, secret_hash, scopes, tier, active, created_at, revoked_at
		 from api_keys where org_id=$1 order by created_at asc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, key)
	}
	return res, rows.Err()
}

func (s *PGStore) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set active=false, revoked_at=$2 where id=$1 and active`, id, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return trust.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PGStore) scanOne(row rowScanner) (*Key, error) {
	key, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func scanKey(row rowScanner) (*Key, error) {
	var (
		key    Key
		scopes []byte
		tier   string
	)
	if err := row.Scan(&key.ID, &key.OrgID, &key.Prefix, &key.Hash, &scopes, &tier, &key.Active, &key.CreatedAt, &key.RevokedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scopes, &key.Scopes)
	key.Tier = trust.ParseTier(tier)
	return &key, nil
}
