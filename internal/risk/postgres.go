package risk

import (
	"context"
	"database/sql"
	"time"

	"trustgate.io/internal/ids"
	"trustgate.io/internal/trust"
)

var _ EventStore = (*PGEventStore)(nil)

// PGEventStore persists risk events append-only in PostgreSQL. Aged-out
// events are simply excluded from reads, never deleted.
type PGEventStore struct {
	db *sql.DB
}

func NewPGEventStore(db *sql.DB) *PGEventStore {
	return &PGEventStore{db: db}
}

func (s *PGEventStore) Append(ctx context.Context, event trust.RiskEvent) error {
	if event.ID == "" {
		event.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into risk_events(id, subject_id, severity, category, occurred_at)
		 values($1,$2,$3,$4,$5)`,
		event.ID, event.SubjectID, string(event.Severity), event.Category, event.OccurredAt,
	)
	return err
}

func (s *PGEventStore) ListRecent(ctx context.Context, subjectID string, since time.Time) ([]trust.RiskEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, subject_id, severity, category, occurred_at
		 from risk_events where subject_id=$1 and occurred_at >= $2
		 order by occurred_at desc`, subjectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []trust.RiskEvent
	for rows.Next() {
		var (
			evt      trust.RiskEvent
			severity string
		)
		if err := rows.Scan(&evt.ID, &evt.SubjectID, &severity, &evt.Category, &evt.OccurredAt); err != nil {
			return nil, err
		}
		evt.Severity = trust.Severity(severity)
		res = append(res, evt)
	}
	return res, rows.Err()
}
