package service

import (
	"context"
	"testing"
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/testkit"
	"devflow/internal/services/metrics/domain"
)

var end = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func resolver() *identity.Resolver {
	return identity.New(identity.Config{Developers: []identity.Developer{
		{ID: "alice", PrimaryEmail: "alice@example.com", PrimaryUsername: "alice", AliasEmails: []string{"a.old@example.com"}},
		{ID: "bob", PrimaryEmail: "bob@example.com", PrimaryUsername: "bob"},
		{ID: "carol", PrimaryEmail: "carol@example.com", PrimaryUsername: "carol"},
	}})
}

func seeded() *memRepo {
	day := func(n int) time.Time { return end.AddDate(0, 0, -n) }
	merged := day(2)
	return &memRepo{
		paths: map[int64]string{1: "grp/api", 2: "sandbox/playground"},
		commits: []devmetrics.Commit{
			{ProjectID: 1, SHA: "a1", AuthorEmail: "alice@example.com", Message: "feat: x", AuthoredAt: day(3)},
			{ProjectID: 1, SHA: "a2", AuthorEmail: "A.Old@example.com", Message: "fix: y", AuthoredAt: day(5)},
			{ProjectID: 2, SHA: "a3", AuthorEmail: "alice@example.com", Message: "wip", AuthoredAt: day(4)},
			{ProjectID: 1, SHA: "a4", AuthorEmail: "alice@example.com", Message: "ancient", AuthoredAt: day(40)},
			{ProjectID: 1, SHA: "b1", AuthorEmail: "bob@example.com", Message: "bob", AuthoredAt: day(1)},
		},
		mrs: []devmetrics.MergeRequest{
			{ProjectID: 1, ID: 10, AuthorUsername: "alice", Title: "Add x", State: "merged", CreatedAt: day(6), MergedAt: &merged},
		},
	}
}

func newSvc(r *memRepo, rules devmetrics.Rules) *Service {
	eng := devmetrics.NewEngine(rules, devmetrics.WithClock(testkit.Clock(end.Add(time.Hour))))
	s := New(fakeTx{}, r.binder(), eng, resolver(), Config{})
	s.Now = testkit.Clock(end)
	return s
}

func TestNewPanicsOnMissingDeps(t *testing.T) {
	r := &memRepo{}
	eng := devmetrics.NewEngine(devmetrics.Compile(devmetrics.RuleConfig{}))
	testkit.MustPanic(t, func() { New(nil, r.binder(), eng, resolver(), Config{}) })
	testkit.MustPanic(t, func() { New(fakeTx{}, nil, eng, resolver(), Config{}) })
	testkit.MustPanic(t, func() { New(fakeTx{}, r.binder(), nil, resolver(), Config{}) })
	testkit.MustPanic(t, func() { New(fakeTx{}, r.binder(), eng, nil, Config{}) })
}

func TestComputeRejectsUnsupportedWindow(t *testing.T) {
	s := newSvc(seeded(), devmetrics.Compile(devmetrics.RuleConfig{}))
	for _, days := range []int{0, 7, 30} {
		if _, err := s.Compute(context.Background(), "alice", domain.Options{WindowDays: days}); !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("%d days: want validation, got %v", days, err)
		}
	}
}

func TestComputeUnknownDeveloperIsNotFound(t *testing.T) {
	s := newSvc(seeded(), devmetrics.Compile(devmetrics.RuleConfig{}))
	_, err := s.Compute(context.Background(), "carol", domain.Options{WindowDays: 14})
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestComputeUsesAliasesAndWindow(t *testing.T) {
	r := seeded()
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{}))

	res, err := s.Compute(context.Background(), "a.old@example.com", domain.Options{WindowDays: 14})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.DeveloperID != "alice" {
		t.Fatalf("developer = %q, want canonical alice", res.DeveloperID)
	}
	if !res.WindowEnd.Equal(end) || !res.WindowStart.Equal(end.AddDate(0, 0, -14)) {
		t.Fatalf("window = [%v, %v)", res.WindowStart, res.WindowEnd)
	}
	if res.Metrics.CommitCount != 3 {
		t.Fatalf("commits = %d, want 3 (alias included, 40 day old excluded)", res.Metrics.CommitCount)
	}
	if got := res.Audit.ProjectScope; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("scope = %v", got)
	}
	if res.Metrics.MRsMerged != 1 {
		t.Fatalf("merged = %d", res.Metrics.MRsMerged)
	}
}

func TestComputeNarrowsDerivedScopeByProjectRules(t *testing.T) {
	r := seeded()
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{ProjectExclude: []string{"^sandbox/"}}))

	res, err := s.Compute(context.Background(), "alice", domain.Options{WindowDays: 14})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := res.Audit.ProjectScope; len(got) != 1 || got[0] != 1 {
		t.Fatalf("scope = %v, want [1]", got)
	}
	if res.Metrics.CommitCount != 2 {
		t.Fatalf("commits = %d, want 2", res.Metrics.CommitCount)
	}
}

func TestComputeExplicitScopeWins(t *testing.T) {
	r := seeded()
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{}))

	res, err := s.Compute(context.Background(), "alice", domain.Options{WindowDays: 14, ProjectScope: []int64{2}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Metrics.CommitCount != 1 || len(r.lastQuery.Projects) != 1 || r.lastQuery.Projects[0] != 2 {
		t.Fatalf("commits=%d projects=%v", res.Metrics.CommitCount, r.lastQuery.Projects)
	}
}

func TestComputeBatchOmitsFailures(t *testing.T) {
	s := newSvc(seeded(), devmetrics.Compile(devmetrics.RuleConfig{}))

	got := s.ComputeBatch(context.Background(), []string{"alice", "bob", "carol"}, domain.Options{WindowDays: 28})
	if len(got) != 2 {
		t.Fatalf("batch size = %d, want 2", len(got))
	}
	if _, ok := got["carol"]; ok {
		t.Fatalf("carol has no rows and must be omitted")
	}
	if got["bob"].Metrics.CommitCount != 1 {
		t.Fatalf("bob commits = %d", got["bob"].Metrics.CommitCount)
	}
}

func TestRecordPersistsThenFeedsSinks(t *testing.T) {
	r := seeded()
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{}))
	mirror, exp := &fakeMirror{}, &fakeExporter{}
	s.Mirror, s.Exporter = mirror, exp

	res, err := s.Compute(context.Background(), "alice", domain.Options{WindowDays: 14})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	sum, err := s.Record(context.Background(), []devmetrics.Result{res, res})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(sum.Snapshots) != 2 || sum.Snapshots[0] == sum.Snapshots[1] {
		t.Fatalf("snapshots = %v, recomputation must insert a new row", sum.Snapshots)
	}
	if sum.Mirrored != 2 || mirror.got != 2 || len(sum.Files) != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	latest, err := s.Latest(context.Background(), "alice@example.com", 14)
	if err != nil || latest.ID != 2 {
		t.Fatalf("latest = %+v err=%v", latest, err)
	}
}

func TestRecordSinkFailuresAreNotFatal(t *testing.T) {
	s := newSvc(seeded(), devmetrics.Compile(devmetrics.RuleConfig{}))
	s.Mirror = &fakeMirror{fail: true}

	sum, err := s.Record(context.Background(), []devmetrics.Result{{DeveloperID: "alice", WindowDays: 14}})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(sum.Snapshots) != 1 || sum.Mirrored != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRecordStoreFailureIsFatal(t *testing.T) {
	r := seeded()
	r.failIns = true
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{}))
	if _, err := s.Record(context.Background(), []devmetrics.Result{{DeveloperID: "alice"}}); !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("want db error, got %v", err)
	}
}

func TestSnapshotCoversEveryWindow(t *testing.T) {
	r := seeded()
	s := newSvc(r, devmetrics.Compile(devmetrics.RuleConfig{}))

	sum, err := s.Snapshot(context.Background(), end, domain.Options{ApplyExclusions: true})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	// alice and bob in 14, 28 and 90 days; carol has no rows
	if len(sum.Snapshots) != 6 {
		t.Fatalf("snapshots = %d, want 6", len(sum.Snapshots))
	}
	if !r.snapshots[0].Audit.ExclusionsApplied {
		t.Fatalf("flags not forwarded")
	}
}
