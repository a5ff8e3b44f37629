package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"jobwatcher/internal/domain"
)

// Defaults mirror the sink's practical constraints: Telegram caps a
// message around 4096 chars, and back-to-back sends trip flood limits.
const (
	DefaultMessageLimit = 4000
	DefaultPause        = 1200 * time.Millisecond

	batchSeparator = "\n\n"
	nothingFound   = "Nothing relevant found for this period."
)

// Grouping decides how classified items are partitioned into payloads.
type Grouping string

const (
	GroupNone      Grouping = "none"       // every item is its own payload
	GroupBatches   Grouping = "batches"    // one pool, packed by size (default)
	GroupBySource  Grouping = "by_source"  // bucket per channel, then packed
	GroupByVerdict Grouping = "by_verdict" // bucket per verdict, then packed
)

// Sink is the delivery transport: send one opaque text payload and
// report failure. The batcher never interprets the destination.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Options tune one batcher instance. Zero values fall back to defaults.
type Options struct {
	MessageLimit int
	Pause        time.Duration
	Grouping     Grouping
	VerdictOrder []string
	SummaryFirst bool
}

// Stats reports what actually happened during a delivery.
type Stats struct {
	Sent      int
	Failed    int
	Truncated int
}

// Batcher packs delivery items into size-bounded payloads and paces
// sends against the sink's rate budget.
type Batcher struct {
	sink    Sink
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewBatcher wires a sink with options, filling in defaults.
func NewBatcher(sink Sink, opts Options, log *slog.Logger) *Batcher {
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = DefaultMessageLimit
	}
	if opts.Pause <= 0 {
		opts.Pause = DefaultPause
	}
	if opts.Grouping == "" {
		opts.Grouping = GroupBatches
	}
	if len(opts.VerdictOrder) == 0 {
		opts.VerdictOrder = DefaultVerdictOrder()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		sink: sink,
		opts: opts,
		// Burst of one: the first send goes out immediately, every
		// following dispatch waits out the pause.
		limiter: rate.NewLimiter(rate.Every(opts.Pause), 1),
		log:     log,
	}
}

// DefaultVerdictOrder lists verdicts from best to worst for summary
// grouping.
func DefaultVerdictOrder() []string {
	return []string{
		domain.VerdictGood,
		domain.VerdictAlternative,
		domain.VerdictMaybe,
		domain.VerdictReject,
	}
}

// Deliver formats, batches and sends all items. A failed send is
// counted and skipped, never fatal: every payload is attempted. The
// trailing totals message is best-effort and excluded from the counts.
func (b *Batcher) Deliver(ctx context.Context, items []domain.DeliveryItem, meta RunMeta) Stats {
	var stats Stats

	if len(items) == 0 {
		b.send(ctx, nothingFound, &stats)
		return stats
	}

	blocks := make([]string, len(items))
	for i := range items {
		block := FormatItem(items[i])
		if utf8.RuneCountInString(block) > b.opts.MessageLimit {
			block = truncateBlock(block, b.opts.MessageLimit)
			items[i].Truncated = true
			stats.Truncated++
		}
		blocks[i] = block
	}

	if b.opts.SummaryFirst {
		summary := buildSummary(items, meta, stats.Truncated, b.opts.VerdictOrder, b.opts.MessageLimit)
		b.send(ctx, summary, &stats)
	}

	for _, group := range b.group(items, blocks) {
		if b.opts.Grouping == GroupNone {
			for _, block := range group {
				b.send(ctx, block, &stats)
			}
			continue
		}
		for _, payload := range pack(group, b.opts.MessageLimit) {
			b.send(ctx, payload, &stats)
		}
	}

	totals := fmt.Sprintf("Sent: %d, failed: %d, truncated: %d.", stats.Sent, stats.Failed, stats.Truncated)
	if err := b.paceAndSend(ctx, totals); err != nil {
		b.log.Debug("trailing totals not delivered", "error", err)
	}

	return stats
}

// DeliverOne sends a single item immediately (live watch mode). The
// returned flag reports whether the block had to be truncated.
func (b *Batcher) DeliverOne(ctx context.Context, item domain.DeliveryItem) (bool, error) {
	block := FormatItem(item)
	truncated := false
	if utf8.RuneCountInString(block) > b.opts.MessageLimit {
		block = truncateBlock(block, b.opts.MessageLimit)
		truncated = true
	}
	return truncated, b.paceAndSend(ctx, block)
}

func (b *Batcher) send(ctx context.Context, text string, stats *Stats) {
	if err := b.paceAndSend(ctx, text); err != nil {
		stats.Failed++
		b.log.Warn("payload send failed", "error", err)
		return
	}
	stats.Sent++
}

func (b *Batcher) paceAndSend(ctx context.Context, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return b.sink.Send(ctx, text)
}

// group partitions blocks according to the configured strategy while
// preserving pipeline order inside every bucket.
func (b *Batcher) group(items []domain.DeliveryItem, blocks []string) [][]string {
	switch b.opts.Grouping {
	case GroupBySource:
		return bucketBy(items, blocks, func(it domain.DeliveryItem) string { return it.Source })
	case GroupByVerdict:
		return bucketBy(items, blocks, func(it domain.DeliveryItem) string { return it.Verdict })
	default:
		// GroupNone and GroupBatches both take the single pool; the
		// caller decides whether to pack it.
		return [][]string{blocks}
	}
}

func bucketBy(items []domain.DeliveryItem, blocks []string, key func(domain.DeliveryItem) string) [][]string {
	buckets := map[string][]string{}
	var order []string
	for i, it := range items {
		k := key(it)
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], blocks[i])
	}
	sort.Strings(order)
	out := make([][]string, 0, len(order))
	for _, k := range order {
		out = append(out, buckets[k])
	}
	return out
}

// pack joins blocks into payloads no longer than limit runes, flushing
// the current payload before a block would overflow it. Every block is
// already within the limit on its own.
func pack(blocks []string, limit int) []string {
	var (
		payloads []string
		current  []string
		size     int
	)
	sepLen := utf8.RuneCountInString(batchSeparator)

	for _, block := range blocks {
		add := utf8.RuneCountInString(block)
		if len(current) > 0 {
			add += sepLen
		}
		if len(current) > 0 && size+add > limit {
			payloads = append(payloads, strings.Join(current, batchSeparator))
			current = nil
			size = 0
			add = utf8.RuneCountInString(block)
		}
		current = append(current, block)
		size += add
	}
	if len(current) > 0 {
		payloads = append(payloads, strings.Join(current, batchSeparator))
	}
	return payloads
}
