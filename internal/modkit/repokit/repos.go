// Package repokit holds the seams every SQL repo is written against
package repokit

import (
	"context"

	"devflow/internal/platform/store"
)

// Queryer is the read and write surface a bound repo runs on
type Queryer = store.RowQuerier

// TxRunner opens transactions and also queries outside one
type TxRunner = store.TxRunner

type (
	// Rows are the result set of a query
	Rows = store.Rows

	// Row is a single row result
	Row = store.Row

	// CommandTag reports what a statement changed
	CommandTag = store.CommandTag
)

// In binds a repo to one transaction on db and runs fn with it
func In[R any](ctx context.Context, db TxRunner, b Binder[R], fn func(R) error) error {
	return db.Tx(ctx, func(q Queryer) error {
		return fn(MustBind(b, q))
	})
}
