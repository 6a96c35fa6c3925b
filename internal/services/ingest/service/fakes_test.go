package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/services/ingest/domain"
)

// fakeTx runs fn inline; the binder ignores the Queryer
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (fakeTx) Tx(_ context.Context, fn func(q store.RowQuerier) error) error  { return fn(nil) }

// memStore is an in-memory domain.StorageRepo shared by every bound tx
type memStore struct {
	mu         sync.Mutex
	runs       map[uuid.UUID]domain.Run
	order      []uuid.UUID
	states     []domain.State
	watermarks map[string]domain.Watermark
	projects   map[int64]domain.Project
	mrs        map[[2]int64]domain.RawMergeRequest
	commits    map[string]domain.RawCommit
	pipelines  map[[2]int64]domain.RawPipeline
	jobs       map[[2]int64]domain.RawJob

	failWatermark string
	activeRun     bool
}

func newMemStore() *memStore {
	return &memStore{
		runs:       map[uuid.UUID]domain.Run{},
		watermarks: map[string]domain.Watermark{},
		projects:   map[int64]domain.Project{},
		mrs:        map[[2]int64]domain.RawMergeRequest{},
		commits:    map[string]domain.RawCommit{},
		pipelines:  map[[2]int64]domain.RawPipeline{},
		jobs:       map[[2]int64]domain.RawJob{},
	}
}

func (m *memStore) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return m })
}

func (m *memStore) LockRuns(context.Context) error { return nil }

func (m *memStore) ActiveRun(context.Context, domain.TriggerKind, time.Time) (bool, error) {
	return m.activeRun, nil
}

func (m *memStore) StartRun(_ context.Context, r domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memStore) SetRunState(_ context.Context, id uuid.UUID, s domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	if r.State.Terminal() {
		return nil
	}
	r.State = s
	m.runs[id] = r
	m.states = append(m.states, s)
	return nil
}

func (m *memStore) FinishRun(_ context.Context, r domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[r.ID].State.Terminal() {
		return perr.Conflictf("finalized")
	}
	m.runs[r.ID] = r
	m.states = append(m.states, r.State)
	return nil
}

func (m *memStore) LatestRun(_ context.Context, kind domain.TriggerKind) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if r := m.runs[m.order[i]]; r.Trigger == kind {
			return r, nil
		}
	}
	return domain.Run{}, perr.ErrNotFound
}

func (m *memStore) Watermark(_ context.Context, entity string) (domain.Watermark, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watermarks[entity]
	return w, ok, nil
}

func (m *memStore) SetWatermark(_ context.Context, entity string, seen, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entity == m.failWatermark {
		return perr.Unavailablef("watermark write refused")
	}
	m.watermarks[entity] = domain.Watermark{Entity: entity, LastSeen: seen, LastRunAt: runAt}
	return nil
}

func (m *memStore) ListProjects(context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpsertProjects(_ context.Context, ps []domain.Project) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.projects[p.ID] = p
	}
	return len(ps), nil
}

func (m *memStore) UpsertMergeRequests(_ context.Context, rows []domain.RawMergeRequest) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.mrs[[2]int64{r.ProjectID, r.ID}] = r
	}
	return len(rows), nil
}

func (m *memStore) UpsertCommits(_ context.Context, rows []domain.RawCommit) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.commits[r.SHA] = r
	}
	return len(rows), nil
}

func (m *memStore) UpsertPipelines(_ context.Context, rows []domain.RawPipeline) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.pipelines[[2]int64{r.ProjectID, r.ID}] = r
	}
	return len(rows), nil
}

func (m *memStore) UpsertJobs(_ context.Context, rows []domain.RawJob) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.jobs[[2]int64{r.ProjectID, r.ID}] = r
	}
	return len(rows), nil
}

func (m *memStore) projectRows(pid int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.mrs {
		if k[0] == pid {
			n++
		}
	}
	for _, c := range m.commits {
		if c.ProjectID == pid {
			n++
		}
	}
	for k := range m.pipelines {
		if k[0] == pid {
			n++
		}
	}
	return n
}

// fakeSource serves one row of each type per project
type fakeSource struct {
	mu       sync.Mutex
	projects []domain.Project
	pageSize int
	// listErr is returned once every page was served
	listErr error
	// betweenPages runs before every page but the first
	betweenPages func() error
	fail      map[int64]error
	onProject func(p domain.Project)
	calls     map[int64]int
	sinces    []time.Time
	listCalls int

	inflight, peak atomic.Int32
	hold           time.Duration
}

func (f *fakeSource) Projects(_ context.Context, page func([]domain.Project) error) error {
	f.mu.Lock()
	f.listCalls++
	all, size := f.projects, f.pageSize
	f.mu.Unlock()
	if size <= 0 {
		size = 2
	}
	for i := 0; i < len(all); i += size {
		if i > 0 && f.betweenPages != nil {
			if err := f.betweenPages(); err != nil {
				return err
			}
		}
		if err := page(all[i:min(i+size, len(all))]); err != nil {
			return err
		}
	}
	return f.listErr
}

func (f *fakeSource) MergeRequests(ctx context.Context, p domain.Project, since time.Time) ([]domain.RawMergeRequest, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.peak.Load()
		if n <= cur || f.peak.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[int64]int{}
	}
	f.calls[p.ID]++
	f.sinces = append(f.sinces, since)
	err := f.fail[p.ID]
	hook := f.onProject
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []domain.RawMergeRequest{{ProjectID: p.ID, ID: p.ID * 100, IID: 1, State: "merged"}}, nil
}

func (f *fakeSource) Commits(_ context.Context, p domain.Project, _ time.Time) ([]domain.RawCommit, error) {
	return []domain.RawCommit{{ProjectID: p.ID, SHA: "sha-" + p.Path}}, nil
}

func (f *fakeSource) Pipelines(_ context.Context, p domain.Project, _ time.Time) ([]domain.RawPipeline, error) {
	return []domain.RawPipeline{{
		ProjectID: p.ID, ID: p.ID * 1000, Status: "success",
		Jobs: []domain.RawJob{{ProjectID: p.ID, ID: p.ID * 10000, PipelineID: p.ID * 1000, Stage: "test", Status: "success"}},
	}}, nil
}

func (f *fakeSource) callsFor(pid int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pid]
}

func projects(n int) []domain.Project {
	out := make([]domain.Project, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Project{ID: int64(i), Path: "grp/p" + string(rune('0'+i)), DefaultBranch: "main"})
	}
	return out
}
