package ports

import (
	"context"
	"time"

	"jobwatcher/internal/domain"
)

// Classifier turns raw message text into a scored result. Pure
// computation: it never fails and holds no mutable state.
type Classifier interface {
	Classify(text string) domain.Result
}

// Ledger is the dedup store keyed by fingerprint. It is the only
// mutable shared resource of a run; unavailability is fatal because
// the no-duplicate-delivery guarantee depends on it.
type Ledger interface {
	HasSeen(ctx context.Context, fingerprint string) (bool, error)
	Record(ctx context.Context, rec domain.SeenRecord) error
	Recent(ctx context.Context, limit int) ([]domain.SeenRecord, error)
}

// Sink delivers one opaque text payload to the configured destination.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Scheduler controls when scan runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
