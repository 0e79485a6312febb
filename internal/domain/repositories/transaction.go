package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions
type TransactionManager interface {
	// ExecTx executes fn within a transaction stored in the context passed to fn.
	// When ctx already carries a transaction, fn joins it instead of nesting.
	ExecTx(ctx context.Context, fn TxFn) error
}
