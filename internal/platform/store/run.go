package store

import "context"

// RunTx runs fn inside a transaction, passing ctx through so callers keep their deadline
func RunTx(ctx context.Context, tx TxRunner, fn func(ctx context.Context, q RowQuerier) error) error {
	return tx.Tx(ctx, func(q RowQuerier) error {
		return fn(ctx, q)
	})
}
