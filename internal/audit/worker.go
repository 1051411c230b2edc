package audit

import (
	"context"
	"log/slog"
)

// Sink receives committed entries outside the mutation transaction.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker drains the ledger fan-out channel into a sink. Publish failures are
// logged and dropped; the relational ledger already holds the entry.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.WarnContext(ctx, "audit fan-out failed",
					"entry_id", entry.ID,
					"action_type", entry.ActionType,
					"error", err,
				)
			}
		}
	}
}
