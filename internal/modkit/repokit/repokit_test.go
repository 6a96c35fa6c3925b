package repokit

import (
	"context"
	"errors"
	"testing"
	"time"

	"devflow/internal/platform/store"
	"devflow/internal/platform/testkit"
)

// recQ records statements
type recQ struct {
	sql []string
	err error
}

func (q *recQ) Exec(_ context.Context, sql string, _ ...any) (store.CommandTag, error) {
	q.sql = append(q.sql, sql)
	var z store.CommandTag
	return z, q.err
}

func (q *recQ) Query(_ context.Context, sql string, _ ...any) (store.Rows, error) {
	q.sql = append(q.sql, sql)
	return nil, q.err
}

func (q *recQ) QueryRow(_ context.Context, sql string, _ ...any) store.Row {
	q.sql = append(q.sql, sql)
	return nil
}

// recTx hands its own recQ to every transaction
type recTx struct {
	recQ
	tx     *recQ
	txRuns int
}

func (t *recTx) Tx(_ context.Context, fn func(Queryer) error) error {
	t.txRuns++
	return fn(t.tx)
}

type runs struct{ q Queryer }

func bindRuns() Binder[runs] { return BindFunc[runs](func(q Queryer) runs { return runs{q: q} }) }

func TestInBindsTxQueryer(t *testing.T) {
	db := &recTx{tx: &recQ{}}
	var got runs
	err := In(context.Background(), db, bindRuns(), func(r runs) error {
		got = r
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if db.txRuns != 1 || got.q != Queryer(db.tx) {
		t.Fatalf("txRuns=%d bound=%v", db.txRuns, got.q)
	}
}

func TestInPropagatesError(t *testing.T) {
	want := errors.New("dangling check failed")
	err := In(context.Background(), &recTx{tx: &recQ{}}, bindRuns(), func(runs) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestMustBindNil(t *testing.T) {
	testkit.MustPanic(t, func() { MustBind(bindRuns(), nil) })
	if r := MustBind(bindRuns(), &recQ{}); r.q == nil {
		t.Fatal("queryer not bound")
	}
}

func TestBeginHooksRunFirstInTx(t *testing.T) {
	db := &recTx{tx: &recQ{}}
	var order []string
	hooked := WithBeginHooks(db,
		StatementTimeout(30*time.Second),
		func(context.Context, Queryer) error { order = append(order, "hook"); return nil },
	)
	err := hooked.Tx(context.Background(), func(q Queryer) error {
		order = append(order, "fn")
		_, err := q.Exec(context.Background(), "SELECT 1")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "hook" || order[1] != "fn" {
		t.Fatalf("order = %v", order)
	}
	want := []string{"SET LOCAL statement_timeout = 30000", "SELECT 1"}
	if len(db.tx.sql) != 2 || db.tx.sql[0] != want[0] || db.tx.sql[1] != want[1] {
		t.Fatalf("tx statements = %q", db.tx.sql)
	}
}

func TestBeginHookErrorAbortsTx(t *testing.T) {
	db := &recTx{tx: &recQ{err: errors.New("permission denied")}}
	called := false
	err := WithBeginHooks(db, StatementTimeout(time.Second)).Tx(context.Background(), func(Queryer) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestHooksDoNotWrapPlainStatements(t *testing.T) {
	db := &recTx{tx: &recQ{}}
	hooked := WithBeginHooks(db, StatementTimeout(time.Second))
	_, _ = hooked.Exec(context.Background(), "DELETE FROM quality_reports")
	_, _ = hooked.Query(context.Background(), "SELECT 2")
	_ = hooked.QueryRow(context.Background(), "SELECT 3")
	if len(db.sql) != 3 || len(db.tx.sql) != 0 {
		t.Fatalf("outer=%q tx=%q", db.sql, db.tx.sql)
	}
}

func TestStatementTimeoutDisabled(t *testing.T) {
	q := &recQ{}
	if err := StatementTimeout(0)(context.Background(), q); err != nil || len(q.sql) != 0 {
		t.Fatalf("err=%v sql=%q", err, q.sql)
	}
	if got := WithBeginHooks(&recTx{}); got == nil {
		t.Fatal("no hooks should return inner")
	}
}
