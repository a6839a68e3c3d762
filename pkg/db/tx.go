package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxFunc is the body of a scoped transaction
type TxFunc func(tx *sql.Tx) error

// WithTx runs fn inside a transaction.
// The transaction commits when fn returns nil and rolls back when fn returns an error
// or panics; a panic is re-raised after the rollback. The connection is always released.
func WithTx(ctx context.Context, pool *Pool, fn TxFunc) (err error) {
	if fn == nil {
		return &Error{Code: "INVALID_INPUT", Message: "transaction body cannot be nil"}
	}

	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
