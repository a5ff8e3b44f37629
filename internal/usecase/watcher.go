package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"jobwatcher/internal/classify"
	"jobwatcher/internal/delivery"
	"jobwatcher/internal/domain"
	"jobwatcher/internal/ports"
)

// WatcherDeps wires the live watcher.
type WatcherDeps struct {
	Ledger       ports.Ledger
	Classifier   *classify.Classifier
	Batcher      *delivery.Batcher
	PreviewLimit int
	Log          *slog.Logger
}

// Watcher classifies channel posts as they arrive and delivers each
// qualifying one immediately. The classifier can be swapped at any
// time by a config reload without pausing the stream.
type Watcher struct {
	deps       WatcherDeps
	classifier atomic.Pointer[classify.Classifier]
}

// NewWatcher validates dependencies and builds a watcher.
func NewWatcher(deps WatcherDeps) (*Watcher, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("watcher: ledger is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("watcher: classifier is required")
	}
	if deps.Batcher == nil {
		return nil, fmt.Errorf("watcher: batcher is required")
	}
	if deps.PreviewLimit <= 0 {
		deps.PreviewLimit = defaultPreviewLimit
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	w := &Watcher{deps: deps}
	w.classifier.Store(deps.Classifier)
	return w, nil
}

// Swap replaces the active classifier. Posts already being processed
// finish with the old one.
func (w *Watcher) Swap(c *classify.Classifier) {
	if c == nil {
		return
	}
	w.classifier.Store(c)
	w.deps.Log.Info("classifier profile swapped")
}

// Run consumes posts until ctx is cancelled or the channel closes.
// Ledger failures abort; a failed send is logged and the stream
// continues.
func (w *Watcher) Run(ctx context.Context, posts <-chan domain.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-posts:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, msg domain.Message) error {
	fp := domain.Fingerprint(msg.Source, msg.Text)

	seen, err := w.deps.Ledger.HasSeen(ctx, fp)
	if err != nil {
		return fmt.Errorf("ledger lookup: %w", err)
	}
	if seen {
		return nil
	}

	res := w.classifier.Load().Classify(msg.Text)

	if err := w.deps.Ledger.Record(ctx, seenRecord(fp, msg, res)); err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}

	if res.Ignored() || res.Verdict == domain.VerdictReject {
		reason := "rejected"
		if res.Ignored() {
			reason = "ignored"
		}
		w.deps.Log.Debug("post skipped", "source", msg.Source, "id", msg.ID,
			"reason", reason, "verdict", res.Verdict)
		return nil
	}

	item := domain.DeliveryItem{
		Source:      msg.Source,
		MessageID:   msg.ID,
		Score:       res.FinalScore,
		PositiveSum: res.PositiveSum,
		NegativeSum: res.NegativeSum,
		Verdict:     res.Verdict,
		Preview:     previewOf(msg.Text, w.deps.PreviewLimit),
	}
	truncated, err := w.deps.Batcher.DeliverOne(ctx, item)
	if err != nil {
		w.deps.Log.Warn("live delivery failed", "source", msg.Source, "id", msg.ID, "error", err)
		return nil
	}
	w.deps.Log.Info("post delivered", "source", msg.Source, "id", msg.ID,
		"verdict", res.Verdict, "truncated", truncated)
	return nil
}
