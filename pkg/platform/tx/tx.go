// Package tx carries a SQL transaction through context so the permission
// stores can join the mutation transaction without plumbing *sql.Tx through
// every signature. It also collects after-commit callbacks, which the
// transaction runner fires once the database commit succeeds.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type txKeyType struct{}

type hooksKeyType struct{}

var (
	txKey    = txKeyType{}
	hooksKey = hooksKeyType{}
)

// WithTx returns a context carrying tx. Store mutations executed with this
// context run their statements on the transaction instead of the pool.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts the transaction carried in ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// CommitHooks collects callbacks registered during a transaction. The
// runner that opened the transaction calls Run after a successful commit;
// on rollback the callbacks are simply dropped.
type CommitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// WithCommitHooks installs a hook collector in ctx and returns it alongside
// the derived context.
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	hooks := &CommitHooks{}
	return context.WithValue(ctx, hooksKey, hooks), hooks
}

// OnCommit defers fn until the surrounding transaction commits. Outside a
// transaction there is nothing to wait for and fn runs immediately.
func OnCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(hooksKey).(*CommitHooks); ok {
		hooks.mu.Lock()
		hooks.fns = append(hooks.fns, fn)
		hooks.mu.Unlock()
		return
	}
	fn()
}

// Run fires the collected callbacks in registration order and clears them.
func (h *CommitHooks) Run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
