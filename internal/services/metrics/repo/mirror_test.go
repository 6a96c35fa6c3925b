package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"devflow/internal/core/devmetrics"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
)

type fakeCH struct {
	execs   []string
	table   string
	rows    [][]any
	failIns error
}

func (f *fakeCH) Exec(_ context.Context, sql string, _ ...any) error {
	f.execs = append(f.execs, sql)
	return nil
}

func (f *fakeCH) Insert(_ context.Context, table string, rows [][]any) error {
	f.table, f.rows = table, rows
	return f.failIns
}

func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (f *fakeCH) Close() error                                           { return nil }

func TestMirrorRowShape(t *testing.T) {
	f := &fakeCH{}
	m := NewCH(f)
	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(f.execs) != 1 || !strings.Contains(f.execs[0], mirrorTable) {
		t.Fatalf("ddl = %v", f.execs)
	}

	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	res := devmetrics.Result{
		DeveloperID: "alice",
		WindowDays:  14,
		WindowStart: end.AddDate(0, 0, -14),
		WindowEnd:   end,
		ComputedAt:  end.Add(time.Hour),
		Metrics:     devmetrics.Metrics{CommitCount: 9, MRsMerged: 2},
		Audit:       devmetrics.Audit{DataQuality: devmetrics.QualityFair},
	}
	if err := m.Mirror(context.Background(), []devmetrics.Result{res}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if f.table != mirrorTable || len(f.rows) != 1 {
		t.Fatalf("insert table=%s rows=%d", f.table, len(f.rows))
	}
	row := f.rows[0]
	if len(row) != 11 || row[0] != "alice" || row[1] != uint16(14) || row[5] != "Fair" || row[6] != uint32(9) {
		t.Fatalf("row = %v", row)
	}
}

func TestMirrorWrapsInsertErrors(t *testing.T) {
	f := &fakeCH{failIns: errors.New("boom")}
	err := NewCH(f).Mirror(context.Background(), []devmetrics.Result{{DeveloperID: "a"}})
	if !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("want db code, got %v", err)
	}
}
