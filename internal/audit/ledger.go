package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "permit/pkg/domain"
	txcontext "permit/pkg/platform/tx"
)

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter, limit int) ([]Entry, error)
}

// Ledger captures structured audit entries. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. An optional
// fan-out channel feeds the Kafka worker after the transactional write.
type Ledger struct {
	store  Store
	fanout chan<- Entry
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithFanout attaches a channel drained by a Worker. Sends never block; if
// the channel is full the entry is dropped from fan-out (the store row is
// the source of truth).
func WithFanout(fanout chan<- Entry) Option {
	return func(l *Ledger) { l.fanout = fanout }
}

func NewLedger(store Store, opts ...Option) *Ledger {
	ledger := &Ledger{store: store}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger
}

// Append assigns identity and timestamp defaults and persists the entry,
// joining the caller's transaction when one is carried in ctx. The entry is
// offered to the fan-out channel only once that transaction commits.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	if entry.ID.IsNil() {
		entry.ID = id.EntryID(uuid.New())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.RiskLevel == "" {
		entry.RiskLevel = RiskLow
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return err
	}
	if l.fanout != nil {
		// Fan-out waits for the surrounding transaction to commit, so a
		// rolled-back entry is never published. Outside a transaction the
		// send happens immediately.
		queued := entry
		txcontext.OnCommit(ctx, func() {
			select {
			case l.fanout <- queued:
			default:
			}
		})
	}
	return nil
}

// List returns entries matching the filter, newest first, capped at limit.
func (l *Ledger) List(ctx context.Context, filter Filter, limit int) ([]Entry, error) {
	return l.store.List(ctx, filter, limit)
}
