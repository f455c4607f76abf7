package attestation

import (
	"context"
	"database/sql"
	"errors"

	"trustgate.io/internal/trust"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The unique index on
// (attester_org, subject_id) enforces latest-vouch-wins.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, a *Attestation) error {
	_, err := s.db.ExecContext(ctx,
		`insert into attestations(id, attester_org, subject_id, weight, statement, evidence_ref, created_at, revoked)
		 values($1,$2,$3,$4,$5,$6,$7,false)
		 on conflict (attester_org, subject_id) do update
		 set id=excluded.id, weight=excluded.weight, statement=excluded.statement,
		     evidence_ref=excluded.evidence_ref, created_at=excluded.created_at, revoked=false`,
		a.ID, a.AttesterOrg, a.SubjectID, a.Weight, a.Statement, a.EvidenceRef, a.CreatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Attestation, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, attester_org, subject_id, weight, statement, evidence_ref, created_at, revoked
		 from attestations where id=$1`, id)
	a, err := scanAttestation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PGStore) ListBySubject(ctx context.Context, subjectID string) ([]*Attestation, error) {
	return s.list(ctx,
		`select id, attester_org, subject_id, weight, statement, evidence_ref, created_at, revoked
		 from attestations where subject_id=$1 order by created_at asc`, subjectID)
}

func (s *PGStore) ListByAttester(ctx context.Context, attesterOrg string) ([]*Attestation, error) {
	return s.list(ctx,
		`select id, attester_org, subject_id, weight, statement, evidence_ref, created_at, revoked
		 from attestations where attester_org=$1 order by created_at asc`, attesterOrg)
}

func (s *PGStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update attestations set revoked=true where id=$1`, id)
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

func (s *PGStore) list(ctx context.Context, query, arg string) ([]*Attestation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Attestation
	for rows.Next() {
		a, err := scanAttestation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanAttestation(row interface{ Scan(dest ...any) error }) (*Attestation, error) {
	var a Attestation
	if err := row.Scan(&a.ID, &a.AttesterOrg, &a.SubjectID, &a.Weight, &a.Statement, &a.EvidenceRef, &a.CreatedAt, &a.Revoked); err != nil {
		return nil, err
	}
	return &a, nil
}
