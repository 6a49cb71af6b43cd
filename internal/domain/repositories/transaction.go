package repositories

import "context"

// TxFn runs within a transaction carried by the context.
type TxFn func(ctx context.Context) error

// TransactionManager executes functions atomically. The transaction is
// placed in the context so nested repository calls join it.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
