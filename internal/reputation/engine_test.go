package reputation

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"trustgate.io/internal/attestation"
	"trustgate.io/internal/trust"
)

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: map[string]*Snapshot{}}
}

func (m *memSnapshots) Upsert(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snaps[snap.SubjectID] = &cp
	return nil
}

func (m *memSnapshots) Find(_ context.Context, subjectID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.snaps[subjectID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, trust.ErrNotFound
}

type fakeActivity struct {
	subjects []Subject
	stats    map[string]ActivityStats
	block    chan struct{}
}

func (f *fakeActivity) ListActiveSubjects(_ context.Context, _ time.Time) ([]Subject, error) {
	if f.block != nil {
		<-f.block
	}
	return f.subjects, nil
}

func (f *fakeActivity) ActivityStats(_ context.Context, subjectID string, _ time.Time) (ActivityStats, error) {
	return f.stats[subjectID], nil
}

type fakeAttestations map[string][]*attestation.Attestation

func (f fakeAttestations) ListBySubject(_ context.Context, subjectID string) ([]*attestation.Attestation, error) {
	return f[subjectID], nil
}

func TestRunWritesWeightedSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-longevitySaturationDays * 24 * time.Hour) // exactly one year old

	snaps := newMemSnapshots()
	activity := &fakeActivity{
		subjects: []Subject{{ID: "org-1", Type: trust.SubjectOrganization, CreatedAt: created}},
		stats: map[string]ActivityStats{
			"org-1": {Transactions: 100, SuccessfulTx: 100, TransactionValue: 100_000, Requests: 1000, RequestErrors: 0, UptimePct: 100},
		},
	}
	vouches := fakeAttestations{
		"org-1": {{Weight: 1.0, CreatedAt: now}},
	}

	engine := NewEngine(snaps, activity, vouches, WithClock(func() time.Time { return now }))
	scored, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if scored != 1 {
		t.Fatalf("expected 1 scored subject, got %d", scored)
	}

	snap, err := snaps.Find(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	// commerce = 60*1.0 + 25*(100/200) + 15*(100000/200000) = 80;
	// hygiene = 100; attestation = 100; longevity = 100*365/730 = 50.
	wantCommerce, wantHygiene, wantAttest, wantLongevity := 80.0, 100.0, 100.0, 50.0
	for name, pair := range map[string][2]float64{
		"commerce":    {snap.Commerce, wantCommerce},
		"hygiene":     {snap.Hygiene, wantHygiene},
		"attestation": {snap.Attestation, wantAttest},
		"longevity":   {snap.Longevity, wantLongevity},
	} {
		if math.Abs(pair[0]-pair[1]) > 0.01 {
			t.Fatalf("%s: got %f want %f", name, pair[0], pair[1])
		}
	}
	want := 0.4*wantCommerce + 0.3*wantHygiene + 0.2*wantAttest + 0.1*wantLongevity
	if math.Abs(snap.Score-want) > 0.01 {
		t.Fatalf("overall score: got %f want %f", snap.Score, want)
	}
}

func TestRunSkipsWhenAlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	activity := &fakeActivity{block: block}
	engine := NewEngine(newMemSnapshots(), activity, fakeAttestations{})

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background())
		done <- err
	}()

	// Wait until the first run is inside ListActiveSubjects.
	for !engine.running.Load() {
		time.Sleep(time.Millisecond)
	}
	if _, err := engine.Run(context.Background()); err != ErrRunInProgress {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	// After completion a new run is admitted again.
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("subsequent run: %v", err)
	}
}

func TestComponentScoreBounds(t *testing.T) {
	if got := commerceScore(ActivityStats{}); got != 0 {
		t.Fatalf("no transactions scores zero commerce, got %f", got)
	}
	if got := commerceScore(ActivityStats{Transactions: 1_000_000, SuccessfulTx: 1_000_000, TransactionValue: 1 << 40}); got > 100 {
		t.Fatalf("commerce must stay within [0,100], got %f", got)
	}
	small := commerceScore(ActivityStats{Transactions: 10, SuccessfulTx: 10, TransactionValue: 1_000})
	large := commerceScore(ActivityStats{Transactions: 10, SuccessfulTx: 10, TransactionValue: 1_000_000})
	if large <= small {
		t.Fatalf("higher transaction value must not lower commerce: %f <= %f", large, small)
	}
	if got := hygieneScore(ActivityStats{Requests: 100, RequestErrors: 100, UptimePct: 0}); got > 30 {
		t.Fatalf("all-errors hygiene should be low, got %f", got)
	}
	if got := hygieneScore(ActivityStats{}); got != 100 {
		t.Fatalf("no requests means clean hygiene, got %f", got)
	}
}

func TestLongevitySaturation(t *testing.T) {
	now := time.Now().UTC()
	day1 := longevityScore(now.Add(-24*time.Hour), now)
	year1 := longevityScore(now.Add(-365*24*time.Hour), now)
	year10 := longevityScore(now.Add(-3650*24*time.Hour), now)

	if !(day1 < year1 && year1 < year10) {
		t.Fatalf("longevity must grow with age: %f %f %f", day1, year1, year10)
	}
	if year10 >= 100 {
		t.Fatalf("longevity saturates below 100, got %f", year10)
	}
	if got := longevityScore(now.Add(time.Hour), now); got != 0 {
		t.Fatalf("future creation clamps to zero, got %f", got)
	}
}

func TestReaderNeutralFallback(t *testing.T) {
	reader := NewReader(newMemSnapshots())
	if got := reader.CachedScore(context.Background(), "never-scored"); got != NeutralScore {
		t.Fatalf("expected neutral score, got %f", got)
	}
}
