package runlog

import (
	"context"

	"github.com/okian/trainingbot/internal/adapters/repository"
	"github.com/okian/trainingbot/internal/domain/model"
)

// Ledger stores runs in the history store.
type Ledger struct {
	store repository.Store
}

// NewLedger creates a sink over store.
func NewLedger(store repository.Store) *Ledger {
	return &Ledger{store: store}
}

// Name implements Sink.
func (l *Ledger) Name() string { return "ledger" }

// Write implements Sink.
func (l *Ledger) Write(ctx context.Context, r *model.RunResult) error {
	return l.store.SaveRun(ctx, *r)
}
