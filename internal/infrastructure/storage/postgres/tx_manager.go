package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"foodledger/internal/core/tx"
	"foodledger/pkg/logger"
)

var tracer = otel.Tracer("foodledger/tx")

var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	IsolationLevel pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode
	// StatementTimeout is applied with SET LOCAL; zero disables it.
	StatementTimeout time.Duration
}

// TxManager runs functions inside database transactions. The active
// transaction travels in the context so repositories pick it up through
// GetQuerier. A nested call joins the outer transaction.
//
// Read Committed is enough for the ledger: records are read with
// SELECT ... FOR UPDATE and written with a version check.
type TxManager struct {
	pool     *pgxpool.Pool
	defaults TxOptions
}

// NewTxManager creates a transaction manager. statementTimeout bounds every
// statement of a transaction.
func NewTxManager(pool *Pool, statementTimeout time.Duration) *TxManager {
	return &TxManager{
		pool: pool.Pool,
		defaults: TxOptions{
			IsolationLevel:   pgx.ReadCommitted,
			AccessMode:       pgx.ReadWrite,
			StatementTimeout: statementTimeout,
		},
	}
}

type txKey struct{}

// RunInTransaction executes fn within a transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaults, fn)
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.defaults
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.String("tx.access_mode", string(opts.AccessMode)),
		))
	defer span.End()

	err := m.run(ctx, opts, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *TxManager) run(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return MapError(fmt.Errorf("begin transaction: %w", err), "transaction", "")
	}

	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(context.Background())
			return MapError(fmt.Errorf("set statement_timeout: %w", err), "transaction", "")
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		// The caller's context may be canceled already; rollback must still run.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("commit transaction: %w", err), "transaction", "")
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction in ctx, or the pool outside of one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx
	}
	return m.pool
}
