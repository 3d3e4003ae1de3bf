// Package tx defines the transaction boundary the ledger runs in.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction: committed when fn returns nil,
// rolled back otherwise. A call made while ctx already carries a transaction
// joins it.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager is a Manager that can also open read-only transactions.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
