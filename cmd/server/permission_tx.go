package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "permit/pkg/domain-errors"
	txcontext "permit/pkg/platform/tx"
)

const defaultPermissionTxTimeout = 5 * time.Second

// permissionPostgresTx runs each mutation inside one database transaction.
// The *sql.Tx travels in the context; stores pick it up and every statement
// (supersession, insert, audit append) commits or rolls back together.
type permissionPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newPermissionPostgresTx(db *sql.DB) *permissionPostgresTx {
	return &permissionPostgresTx{db: db}
}

func (t *permissionPostgresTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultPermissionTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx, hooks := txcontext.WithCommitHooks(txcontext.WithTx(ctx, tx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	hooks.Run()
	return nil
}
