package oauth

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

func (s *PGStore) CreateClient(ctx context.Context, c *Client) error {
	scopes, _ := json.Marshal(c.Scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into oauth_clients(id, org_id, secret_hash, scopes, tier, active, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.OrgID, c.SecretHash, scopes, string(c.Tier), c.Active, c.CreatedAt,
	)
	return err
}

func (s *PGStore) FindClient(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, org_id, secret_hash, scopes, tier, active, created_at, revoked_at
		 from oauth_clients where id=$1`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PGStore) ListClientsByOrg(ctx context.Context, orgID string) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, secret_hash, scopes, tier, active, created_at, revoked_at
		 from oauth_clients where org_id=$1 order by created_at asc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *PGStore) MarkClientRevoked(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update oauth_clients set active=false, revoked_at=$2 where id=$1 and active`, id, at)
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

func (s *PGStore) CreateToken(ctx context.Context, t *Token) error {
	scopes, _ := json.Marshal(t.Scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into oauth_tokens(jti, client_id, org_id, scopes, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		t.JTI, t.ClientID, t.OrgID, scopes, t.IssuedAt, t.ExpiresAt, t.Revoked,
	)
	return err
}

func (s *PGStore) FindToken(ctx context.Context, jti string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, client_id, org_id, scopes, issued_at, expires_at, revoked
		 from oauth_tokens where jti=$1`, jti)
	var (
		t      Token
		scopes []byte
	)
	err := row.Scan(&t.JTI, &t.ClientID, &t.OrgID, &scopes, &t.IssuedAt, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scopes, &t.Scopes)
	return &t, nil
}

func (s *PGStore) MarkTokenRevoked(ctx context.Context, jti string) error {
	res, err := s.db.ExecContext(ctx,
		`update oauth_tokens set revoked=true where jti=$1`, jti)
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

func (s *PGStore) MarkTokensRevokedByClient(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx,
		`update oauth_tokens set revoked=true where client_id=$1 and not revoked`, clientID)
	return err
}

func scanClient(row interface{ Scan(dest ...any) error }) (*Client, error) {
	var (
		c      Client
		scopes []byte
		tier   string
	)
	if err := row.Scan(&c.ID, &c.OrgID, &c.SecretHash, &scopes, &tier, &c.Active, &c.CreatedAt, &c.RevokedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scopes, &c.Scopes)
	c.Tier = trust.ParseTier(tier)
	return &c, nil
}
