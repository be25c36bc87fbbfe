package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey string

const (
	DBTxKey ctxKey = "db_tx"
	undoKey ctxKey = "mem_undo"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Transactor runs fn atomically. Nested calls join the outer unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxFromContext returns the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction in ctx, falling back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// PgTransactor runs units of work in a PostgreSQL transaction.
type PgTransactor struct {
	pool *pgxpool.Pool
}

func NewPgTransactor(pool *pgxpool.Pool) *PgTransactor {
	return &PgTransactor{pool: pool}
}

func (t *PgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	// Never commit once the caller's deadline has passed.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MapConstraintError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type undoLog struct {
	mu    sync.Mutex
	steps []func()
}

// RecordUndo registers a compensating step for the in-memory unit of work in
// ctx. Outside such a unit it is a no-op.
func RecordUndo(ctx context.Context, step func()) {
	log, ok := ctx.Value(undoKey).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.steps = append(log.steps, step)
	log.mu.Unlock()
}

// MemTransactor gives in-memory repositories all-or-nothing semantics by
// replaying recorded undo steps in reverse when fn fails or ctx is done by
// the time fn returns. Units of work are serialised.
type MemTransactor struct {
	mu sync.Mutex
}

func NewMemTransactor() *MemTransactor {
	return &MemTransactor{}
}

func (t *MemTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey).(*undoLog); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	log := &undoLog{}
	err := fn(context.WithValue(ctx, undoKey, log))
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("commit: %w", ctx.Err())
	}
	if err != nil {
		log.mu.Lock()
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		log.mu.Unlock()
	}
	return err
}
