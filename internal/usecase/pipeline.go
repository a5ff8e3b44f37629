package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"jobwatcher/internal/delivery"
	"jobwatcher/internal/domain"
	"jobwatcher/internal/feed"
	"jobwatcher/internal/ports"
)

const defaultPreviewLimit = 800

// Deps wires the pipeline to its collaborators. All fields except
// PreviewLimit and PerChannel are required.
type Deps struct {
	Channels     []string
	Feed         feed.Source
	Ledger       ports.Ledger
	Classifier   ports.Classifier
	Batcher      *delivery.Batcher
	PreviewLimit int
	PerChannel   int
	Log          *slog.Logger
}

// Pipeline runs one scan: fetch the lookback window from every
// configured channel, classify what has not been seen before, record
// everything, and hand the qualifying items to the batcher.
type Pipeline struct {
	deps Deps
}

// NewPipeline validates dependencies and builds a pipeline.
func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Feed == nil {
		return nil, fmt.Errorf("pipeline: feed is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("pipeline: ledger is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("pipeline: classifier is required")
	}
	if deps.Batcher == nil {
		return nil, fmt.Errorf("pipeline: batcher is required")
	}
	if deps.PreviewLimit <= 0 {
		deps.PreviewLimit = defaultPreviewLimit
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Pipeline{deps: deps}, nil
}

// outcome tells Run what happened to one message. An ignore veto and a
// negative-score rejection are distinct: only the former counts as
// ignored.
type outcome int

const (
	outcomeSeen outcome = iota
	outcomeIgnored
	outcomeRejected
	outcomeQualifying
)

// Run executes one scan over the given lookback window. A channel
// whose fetch fails is logged and skipped; a ledger failure aborts the
// run because the no-duplicate guarantee would no longer hold.
func (p *Pipeline) Run(ctx context.Context, window time.Duration) (domain.RunStats, error) {
	var stats domain.RunStats
	started := time.Now()
	since := started.Add(-window)

	fetched := 0
	skippedSeen := 0
	var items []domain.DeliveryItem
	for _, channel := range p.deps.Channels {
		msgs, err := p.deps.Feed.Fetch(ctx, feed.Request{
			Channel: channel,
			Since:   since,
			Limit:   p.deps.PerChannel,
		})
		if err != nil {
			p.deps.Log.Warn("channel fetch failed", "channel", channel, "error", err)
			continue
		}
		p.deps.Log.Info("channel fetched", "channel", channel, "messages", len(msgs))
		fetched += len(msgs)

		for _, msg := range msgs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			item, out, err := p.process(ctx, msg)
			if err != nil {
				return stats, err
			}
			switch out {
			case outcomeSeen:
				skippedSeen++
			case outcomeIgnored:
				stats.Processed++
				stats.Ignored++
			case outcomeRejected:
				stats.Processed++
			case outcomeQualifying:
				stats.Processed++
				stats.Qualifying++
				items = append(items, *item)
			}
		}
	}

	sent := p.deps.Batcher.Deliver(ctx, items, delivery.RunMeta{
		StartedAt: started,
		Window:    window,
		Channels:  p.deps.Channels,
		Processed: stats.Processed,
		Ignored:   stats.Ignored,
	})
	stats.Sent = sent.Sent
	stats.Failed = sent.Failed
	stats.Truncated = sent.Truncated

	p.deps.Log.Info("scan complete",
		"fetched", fetched,
		"skipped_seen", skippedSeen,
		"processed", stats.Processed,
		"qualifying", stats.Qualifying,
		"ignored", stats.Ignored,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"truncated", stats.Truncated,
		"took", time.Since(started).Round(time.Millisecond))
	return stats, nil
}

// process classifies one message unless its fingerprint is already in
// the ledger. The returned item is non-nil only for qualifying posts;
// the outcome tells the caller how to count the message.
func (p *Pipeline) process(ctx context.Context, msg domain.Message) (*domain.DeliveryItem, outcome, error) {
	fp := domain.Fingerprint(msg.Source, msg.Text)

	seen, err := p.deps.Ledger.HasSeen(ctx, fp)
	if err != nil {
		return nil, outcomeSeen, fmt.Errorf("ledger lookup: %w", err)
	}
	if seen {
		return nil, outcomeSeen, nil
	}

	res := p.deps.Classifier.Classify(msg.Text)

	if err := p.deps.Ledger.Record(ctx, seenRecord(fp, msg, res)); err != nil {
		return nil, outcomeSeen, fmt.Errorf("ledger record: %w", err)
	}

	if res.Ignored() {
		return nil, outcomeIgnored, nil
	}
	if res.Verdict == domain.VerdictReject {
		return nil, outcomeRejected, nil
	}

	return &domain.DeliveryItem{
		Source:      msg.Source,
		MessageID:   msg.ID,
		Score:       res.FinalScore,
		PositiveSum: res.PositiveSum,
		NegativeSum: res.NegativeSum,
		Verdict:     res.Verdict,
		Preview:     previewOf(msg.Text, p.deps.PreviewLimit),
	}, outcomeQualifying, nil
}

func seenRecord(fp string, msg domain.Message, res domain.Result) domain.SeenRecord {
	matches, err := json.Marshal(res.Matches)
	if err != nil {
		matches = []byte("{}")
	}
	return domain.SeenRecord{
		Fingerprint: fp,
		Source:      msg.Source,
		MessageID:   msg.ID,
		Verdict:     res.Verdict,
		FinalScore:  res.FinalScore,
		PositiveSum: res.PositiveSum,
		NegativeSum: res.NegativeSum,
		MatchesJSON: string(matches),
		RawText:     msg.Text,
	}
}

func previewOf(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
