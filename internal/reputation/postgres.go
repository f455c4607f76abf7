package reputation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"trustgate.io/internal/trust"
)

var (
	_ SnapshotStore = (*PGStore)(nil)
	_ ActivityStore = (*PGStore)(nil)
)

// PGStore implements the snapshot and activity stores using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`insert into reputation_snapshots(subject_type, subject_id, score, commerce, hygiene, attestation, longevity, computed_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)
		 on conflict (subject_id) do update
		 set subject_type=excluded.subject_type, score=excluded.score, commerce=excluded.commerce,
		     hygiene=excluded.hygiene, attestation=excluded.attestation, longevity=excluded.longevity,
		     computed_at=excluded.computed_at`,
		string(snap.SubjectType), snap.SubjectID, snap.Score, snap.Commerce, snap.Hygiene,
		snap.Attestation, snap.Longevity, snap.ComputedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, subjectID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`select subject_type, subject_id, score, commerce, hygiene, attestation, longevity, computed_at
		 from reputation_snapshots where subject_id=$1`, subjectID)
	var (
		snap        Snapshot
		subjectType string
	)
	err := row.Scan(&subjectType, &snap.SubjectID, &snap.Score, &snap.Commerce, &snap.Hygiene,
		&snap.Attestation, &snap.Longevity, &snap.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.SubjectType = trust.SubjectType(subjectType)
	return &snap, nil
}

func (s *PGStore) ListActiveSubjects(ctx context.Context, since time.Time) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`select subject_id, subject_type, min(first_seen_at)
		 from activity_daily
		 where day >= $1::date
		 group by subject_id, subject_type
		 order by subject_id asc`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Subject
	for rows.Next() {
		var (
			subject     Subject
			subjectType string
		)
		if err := rows.Scan(&subject.ID, &subjectType, &subject.CreatedAt); err != nil {
			return nil, err
		}
		subject.Type = trust.SubjectType(subjectType)
		res = append(res, subject)
	}
	return res, rows.Err()
}

func (s *PGStore) ActivityStats(ctx context.Context, subjectID string, since time.Time) (ActivityStats, error) {
	row := s.db.QueryRowContext(ctx,
		`select coalesce(sum(tx_count),0), coalesce(sum(tx_success),0), coalesce(sum(tx_value),0),
		        coalesce(sum(request_count),0), coalesce(sum(request_errors),0), coalesce(avg(uptime_pct),0)
		 from activity_daily where subject_id=$1 and day >= $2::date`, subjectID, since)
	var stats ActivityStats
	err := row.Scan(&stats.Transactions, &stats.SuccessfulTx, &stats.TransactionValue,
		&stats.Requests, &stats.RequestErrors, &stats.UptimePct)
	if err != nil {
		return ActivityStats{}, err
	}
	return stats, nil
}
