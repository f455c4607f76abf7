package reputation

import "context"

// NeutralScore is served for subjects that have never been scored.
const NeutralScore = 50.0

// Reader serves committed snapshots to the request path. It never
// triggers recomputation.
type Reader struct {
	snapshots SnapshotStore
}

// NewReader constructs a snapshot reader.
func NewReader(snapshots SnapshotStore) *Reader {
	return &Reader{snapshots: snapshots}
}

// Snapshot returns the last committed snapshot for the subject.
func (r *Reader) Snapshot(ctx context.Context, subjectID string) (*Snapshot, error) {
	return r.snapshots.Find(ctx, subjectID)
}

// CachedScore returns the subject's overall score, falling back to the
// neutral score when no snapshot exists or the store is unreachable. The
// request path must stay bounded, so errors degrade rather than fail.
func (r *Reader) CachedScore(ctx context.Context, subjectID string) float64 {
	snap, err := r.snapshots.Find(ctx, subjectID)
	if err != nil {
		// Unknown subject and degraded store alike get the neutral score;
		// the request path must stay bounded.
		return NeutralScore
	}
	return snap.Score
}

// Band maps a score to the coarse label exposed to non-owners: "high"
// >= 70, "medium" 40..69, "low" below.
func Band(score float64) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}
