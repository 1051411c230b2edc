package service

import (
	"context"
	"sync"
	"time"

	dErrors "permit/pkg/domain-errors"
	txcontext "permit/pkg/platform/tx"
)

// StoreTx provides a transactional boundary for permission mutations.
// Implementations may wrap a database transaction carried in context or,
// in-memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// defaultTxTimeout is the maximum duration for a permission transaction.
const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx serializes mutations with a single mutex. The in-memory
// stores are already individually safe; the lock makes multi-store
// mutations (supersede + insert + audit) atomic with respect to each other.
type inMemoryStoreTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	txCtx, hooks := txcontext.WithCommitHooks(ctx)
	if err := fn(txCtx); err != nil {
		return err
	}
	hooks.Run()
	return nil
}
