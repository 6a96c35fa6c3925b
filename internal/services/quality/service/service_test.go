package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"devflow/internal/core/quality"
	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/platform/testkit"
	"devflow/internal/services/quality/domain"
)

type fakeTx struct{ calls int }

func (*fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (*fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (*fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (f *fakeTx) Tx(_ context.Context, fn func(q store.RowQuerier) error) error {
	f.calls++
	return fn(f)
}

type memRepo struct {
	dangling quality.Dangling
	complete quality.Completeness
	latency  quality.Latency
	since    time.Time
	saved    []quality.Report
	failRead error
}

func (m *memRepo) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return m })
}

func (m *memRepo) Dangling(context.Context) (quality.Dangling, error) { return m.dangling, m.failRead }

func (m *memRepo) Completeness(_ context.Context, since time.Time) (quality.Completeness, error) {
	m.since = since
	return m.complete, nil
}

func (m *memRepo) Latency(context.Context) (quality.Latency, error) { return m.latency, nil }

func (m *memRepo) InsertReport(_ context.Context, r quality.Report) (int64, error) {
	m.saved = append(m.saved, r)
	return int64(len(m.saved)), nil
}

func (m *memRepo) LatestReport(context.Context) (quality.Report, error) {
	if len(m.saved) == 0 {
		return quality.Report{}, perr.ErrNotFound
	}
	return m.saved[len(m.saved)-1], nil
}

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func healthy() *memRepo {
	last := now.Add(-30 * time.Minute)
	newest := now.Add(-time.Hour)
	return &memRepo{
		complete: quality.Completeness{
			Commits:       quality.Fill{Total: 100, Complete: 100},
			MergeRequests: quality.Fill{Total: 10, Complete: 10},
			RecentRows:    5,
		},
		latency: quality.Latency{LastSuccess: &last, NewestCommit: &newest},
	}
}

func newSvc(m *memRepo) (*Service, *fakeTx) {
	tx := &fakeTx{}
	s := New(tx, m.binder(), quality.DefaultThresholds())
	s.Now = func() time.Time { return now }
	return s, tx
}

func TestNewPanicsOnNilDeps(t *testing.T) {
	testkit.MustPanic(t, func() { New(nil, (&memRepo{}).binder(), quality.DefaultThresholds()) })
	testkit.MustPanic(t, func() { New(&fakeTx{}, nil, quality.DefaultThresholds()) })
}

func TestAuditHealthyStore(t *testing.T) {
	m := healthy()
	s, tx := newSvc(m)
	rep, err := s.Audit(context.Background(), false)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if rep.Status != quality.StatusPassed {
		t.Fatalf("status = %s checks=%+v", rep.Status, rep.Checks)
	}
	if len(rep.Checks) != 3 {
		t.Fatalf("checks = %d", len(rep.Checks))
	}
	if !rep.GeneratedAt.Equal(now) {
		t.Fatalf("generated_at = %v", rep.GeneratedAt)
	}
	if !m.since.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("freshness cutoff = %v", m.since)
	}
	if len(m.saved) != 0 || tx.calls != 1 {
		t.Fatalf("saved=%d tx=%d; read only audit must not persist", len(m.saved), tx.calls)
	}
}

func TestAuditPersistsAndLatestReadsBack(t *testing.T) {
	m := healthy()
	m.dangling = quality.Dangling{Commits: 20}
	s, tx := newSvc(m)

	if _, err := s.Latest(context.Background()); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("latest before audit: %v", err)
	}

	rep, err := s.Audit(context.Background(), true)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if rep.Status != quality.StatusFailed {
		t.Fatalf("status = %s", rep.Status)
	}
	if len(m.saved) != 1 || tx.calls < 2 {
		t.Fatalf("saved=%d tx=%d", len(m.saved), tx.calls)
	}
	got, err := s.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Status != quality.StatusFailed || got.Score != rep.Score {
		t.Fatalf("latest = %+v", got)
	}
}

func TestAuditPropagatesReadErrors(t *testing.T) {
	m := healthy()
	m.failRead = errors.New("boom")
	s, _ := newSvc(m)
	if _, err := s.Audit(context.Background(), true); err == nil {
		t.Fatalf("expected error")
	}
	if len(m.saved) != 0 {
		t.Fatalf("nothing should be stored on read failure")
	}
}

func TestAuditNeverRan(t *testing.T) {
	m := healthy()
	m.latency = quality.Latency{}
	s, _ := newSvc(m)
	rep, err := s.Audit(context.Background(), false)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if rep.Status != quality.StatusFailed {
		t.Fatalf("status = %s", rep.Status)
	}
}
