package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/services/metrics/domain"
)

type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (fakeTx) Tx(_ context.Context, fn func(q store.RowQuerier) error) error  { return fn(nil) }

// memRepo answers the raw reads the way the SQL does
type memRepo struct {
	mu        sync.Mutex
	paths     map[int64]string
	commits   []devmetrics.Commit
	mrs       []devmetrics.MergeRequest
	pipes     []devmetrics.Pipeline
	snapshots []domain.Snapshot
	lastQuery domain.Query
	failIns   bool
}

func (m *memRepo) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return m })
}

func has(keys []string, v string) bool { return slices.Contains(keys, strings.ToLower(v)) }

func (m *memRepo) HasRows(_ context.Context, ids identity.Identities) (bool, error) {
	ok, _ := m.refs(ids)
	return ok, nil
}

func (m *memRepo) refs(ids identity.Identities) (bool, map[int64]string) {
	out := map[int64]string{}
	for _, c := range m.commits {
		if has(ids.Emails, c.AuthorEmail) {
			out[c.ProjectID] = m.paths[c.ProjectID]
		}
	}
	for _, x := range m.mrs {
		if has(ids.Usernames, x.AuthorUsername) {
			out[x.ProjectID] = m.paths[x.ProjectID]
		}
	}
	return len(out) > 0, out
}

func (m *memRepo) ProjectsFor(_ context.Context, ids identity.Identities) (map[int64]string, error) {
	_, out := m.refs(ids)
	return out, nil
}

func (m *memRepo) Commits(_ context.Context, q domain.Query) ([]devmetrics.Commit, error) {
	m.mu.Lock()
	m.lastQuery = q
	m.mu.Unlock()
	var out []devmetrics.Commit
	for _, c := range m.commits {
		if has(q.Identities.Emails, c.AuthorEmail) && slices.Contains(q.Projects, c.ProjectID) &&
			!c.AuthoredAt.Before(q.Start) && c.AuthoredAt.Before(q.End) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) MergeRequests(_ context.Context, q domain.Query) ([]devmetrics.MergeRequest, error) {
	var out []devmetrics.MergeRequest
	for _, x := range m.mrs {
		if has(q.Identities.Usernames, x.AuthorUsername) && slices.Contains(q.Projects, x.ProjectID) && x.CreatedAt.Before(q.End) {
			out = append(out, x)
		}
	}
	return out, nil
}

func (m *memRepo) Pipelines(context.Context, domain.Query) ([]devmetrics.Pipeline, error) {
	return m.pipes, nil
}

func (m *memRepo) InsertSnapshot(_ context.Context, r devmetrics.Result) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIns {
		return 0, perr.New(perr.ErrorCodeDB, "insert failed")
	}
	id := int64(len(m.snapshots) + 1)
	m.snapshots = append(m.snapshots, domain.Snapshot{ID: id, Result: r})
	return id, nil
}

func (m *memRepo) LatestSnapshot(_ context.Context, dev string, days int) (domain.Snapshot, error) {
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if s := m.snapshots[i]; s.DeveloperID == dev && s.WindowDays == days {
			return s, nil
		}
	}
	return domain.Snapshot{}, perr.ErrNotFound
}

type fakeMirror struct {
	got  int
	fail bool
}

func (f *fakeMirror) Mirror(_ context.Context, rs []devmetrics.Result) error {
	if f.fail {
		return errors.New("clickhouse down")
	}
	f.got += len(rs)
	return nil
}

type fakeExporter struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeExporter) Write(r devmetrics.Result) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := r.DeveloperID + "/" + r.ComputedAt.String()
	f.paths = append(f.paths, p)
	return p, nil
}
