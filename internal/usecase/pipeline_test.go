package usecase

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"jobwatcher/internal/classify"
	"jobwatcher/internal/delivery"
	"jobwatcher/internal/domain"
	"jobwatcher/internal/feed"
	"jobwatcher/internal/ledger"
)

type fakeFeed struct {
	messages map[string][]domain.Message
	err      map[string]error
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Fetch(_ context.Context, req feed.Request) ([]domain.Message, error) {
	if err := f.err[req.Channel]; err != nil {
		return nil, err
	}
	return f.messages[req.Channel], nil
}

type memorySink struct {
	mu       sync.Mutex
	payloads []string
}

func (s *memorySink) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, text)
	return nil
}

func (s *memorySink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

func testClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	return classify.New(classify.MarkerConfig{
		Ignore:     []string{"advertisement"},
		Excellent:  []string{"golang", "kubernetes"},
		Acceptable: []string{"backend"},
		Negative:   []string{"unpaid"},
	}, classify.DefaultThresholds(), nil)
}

func testPipeline(t *testing.T, f *fakeFeed, sink delivery.Sink, dbPath string, channels []string) *Pipeline {
	t.Helper()
	store, err := ledger.Open(dbPath)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	batcher := delivery.NewBatcher(sink, delivery.Options{
		MessageLimit: 4000,
		Pause:        time.Millisecond,
	}, nil)

	p, err := NewPipeline(Deps{
		Channels:   channels,
		Feed:       f,
		Ledger:     store,
		Classifier: testClassifier(t),
		Batcher:    batcher,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineRunCountsAndDelivers(t *testing.T) {
	t.Parallel()

	posted := time.Now().Add(-time.Hour)
	f := &fakeFeed{messages: map[string][]domain.Message{
		"@jobs": {
			{Source: "@jobs", ID: 1, Text: "golang kubernetes backend role", PostedAt: posted},
			{Source: "@jobs", ID: 2, Text: "advertisement buy now", PostedAt: posted},
			{Source: "@jobs", ID: 3, Text: "unpaid internship gardening", PostedAt: posted},
			{Source: "@jobs", ID: 4, Text: "backend position", PostedAt: posted},
		},
	}}
	sink := &memorySink{}
	p := testPipeline(t, f, sink, filepath.Join(t.TempDir(), "ledger.db"), []string{"@jobs"})

	stats, err := p.Run(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Processed != 4 {
		t.Fatalf("processed = %d, want 4", stats.Processed)
	}
	if stats.Ignored != 1 {
		t.Fatalf("ignored = %d, want 1", stats.Ignored)
	}
	// message 1 scores +5 (good match), message 4 scores +1 (maybe);
	// the unpaid post lands below zero and is rejected.
	if stats.Qualifying != 2 {
		t.Fatalf("qualifying = %d, want 2", stats.Qualifying)
	}
	if stats.Failed != 0 {
		t.Fatalf("failed = %d, want 0", stats.Failed)
	}

	joined := strings.Join(sink.all(), "\n")
	if !strings.Contains(joined, "https://t.me/jobs/1") {
		t.Fatalf("good match link missing from payloads:\n%s", joined)
	}
	if !strings.Contains(joined, "https://t.me/jobs/4") {
		t.Fatalf("maybe match link missing from payloads:\n%s", joined)
	}
	if strings.Contains(joined, "gardening") {
		t.Fatalf("rejected post leaked into payloads:\n%s", joined)
	}
}

func TestPipelineRejectedIsNotCountedAsIgnored(t *testing.T) {
	t.Parallel()

	// One ignore-vetoed post and one post rejected by a negative score:
	// both are processed and withheld, but only the veto is "ignored".
	f := &fakeFeed{messages: map[string][]domain.Message{
		"@jobs": {
			{Source: "@jobs", ID: 1, Text: "advertisement buy now", PostedAt: time.Now()},
			{Source: "@jobs", ID: 2, Text: "unpaid weekend shifts", PostedAt: time.Now()},
		},
	}}
	sink := &memorySink{}
	p := testPipeline(t, f, sink, filepath.Join(t.TempDir(), "ledger.db"), []string{"@jobs"})

	stats, err := p.Run(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Processed != 2 {
		t.Fatalf("processed = %d, want 2", stats.Processed)
	}
	if stats.Ignored != 1 {
		t.Fatalf("ignored = %d, want 1 (score rejection is not an ignore veto)", stats.Ignored)
	}
	if stats.Qualifying != 0 {
		t.Fatalf("qualifying = %d, want 0", stats.Qualifying)
	}
}

func TestPipelineSecondRunSkipsSeen(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{messages: map[string][]domain.Message{
		"@jobs": {
			{Source: "@jobs", ID: 1, Text: "golang kubernetes backend role", PostedAt: time.Now()},
		},
	}}
	sink := &memorySink{}
	p := testPipeline(t, f, sink, filepath.Join(t.TempDir(), "ledger.db"), []string{"@jobs"})

	if _, err := p.Run(context.Background(), time.Hour); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := p.Run(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if stats.Processed != 0 {
		t.Fatalf("second run processed = %d, want 0", stats.Processed)
	}
	// An empty second run still announces itself.
	found := false
	for _, payload := range sink.all() {
		if strings.Contains(payload, "Nothing relevant found") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the nothing-found notice on the empty second run")
	}
}

func TestPipelineReportsFetchedAndSkippedSeen(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{messages: map[string][]domain.Message{
		"@jobs": {
			{Source: "@jobs", ID: 1, Text: "golang kubernetes backend role", PostedAt: time.Now()},
		},
	}}
	sink := &memorySink{}

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var logs bytes.Buffer
	p, err := NewPipeline(Deps{
		Channels:   []string{"@jobs"},
		Feed:       f,
		Ledger:     store,
		Classifier: testClassifier(t),
		Batcher:    delivery.NewBatcher(sink, delivery.Options{Pause: time.Millisecond}, nil),
		Log:        slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if _, err := p.Run(context.Background(), time.Hour); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(context.Background(), time.Hour); err != nil {
		t.Fatalf("second run: %v", err)
	}

	// The rerun processes nothing new, but the report must still show
	// that the feed yielded a message which the ledger filtered out.
	out := logs.String()
	if !strings.Contains(out, "skipped_seen=1") {
		t.Fatalf("second run report missing the seen-skip count:\n%s", out)
	}
	if !strings.Contains(out, "fetched=1") {
		t.Fatalf("run report missing the fetched count:\n%s", out)
	}
}

func TestPipelineFeedErrorSkipsChannel(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{
		messages: map[string][]domain.Message{
			"@good": {{Source: "@good", ID: 10, Text: "golang backend", PostedAt: time.Now()}},
		},
		err: map[string]error{"@down": context.DeadlineExceeded},
	}
	sink := &memorySink{}
	p := testPipeline(t, f, sink, filepath.Join(t.TempDir(), "ledger.db"), []string{"@down", "@good"})

	stats, err := p.Run(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.Qualifying != 1 {
		t.Fatalf("stats = %+v, want the healthy channel processed", stats)
	}
}

func TestWatcherDeliversAndDedups(t *testing.T) {
	t.Parallel()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sink := &memorySink{}
	batcher := delivery.NewBatcher(sink, delivery.Options{Pause: time.Millisecond}, nil)
	w, err := NewWatcher(WatcherDeps{
		Ledger:     store,
		Classifier: testClassifier(t),
		Batcher:    batcher,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	msg := domain.Message{Source: "@live", ID: 77, Text: "golang kubernetes backend", PostedAt: time.Now()}
	if err := w.handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := w.handle(context.Background(), msg); err != nil {
		t.Fatalf("handle repeat: %v", err)
	}

	payloads := sink.all()
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want exactly 1 (duplicate must be suppressed)", len(payloads))
	}
	if !strings.Contains(payloads[0], "https://t.me/live/77") {
		t.Fatalf("payload missing post link:\n%s", payloads[0])
	}
}

func TestWatcherSwapChangesProfile(t *testing.T) {
	t.Parallel()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sink := &memorySink{}
	batcher := delivery.NewBatcher(sink, delivery.Options{Pause: time.Millisecond}, nil)
	w, err := NewWatcher(WatcherDeps{
		Ledger:     store,
		Classifier: classify.New(classify.MarkerConfig{}, classify.DefaultThresholds(), nil),
		Batcher:    batcher,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	// Empty profile rejects everything.
	first := domain.Message{Source: "@live", ID: 1, Text: "golang kubernetes role", PostedAt: time.Now()}
	if err := w.handle(context.Background(), first); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatal("empty profile should not deliver anything")
	}

	w.Swap(testClassifier(t))

	second := domain.Message{Source: "@live", ID: 2, Text: "golang kubernetes backend opening", PostedAt: time.Now()}
	if err := w.handle(context.Background(), second); err != nil {
		t.Fatalf("handle after swap: %v", err)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("payloads = %d, want 1 after profile swap", len(sink.all()))
	}
}
