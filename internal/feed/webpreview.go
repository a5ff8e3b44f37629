package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	gocache "github.com/patrickmn/go-cache"

	"jobwatcher/internal/domain"
)

// WebPreview reads public channel history from the t.me/s/<channel>
// web preview pages, so history scans need no authenticated session.
// Only channels with a public preview are reachable this way.
type WebPreview struct {
	client   *http.Client
	pages    *gocache.Cache
	pageTTL  time.Duration
	maxPages int
	baseURL  string
	log      *slog.Logger
}

// NewWebPreview wires an HTTP client; fetched pages are cached briefly
// so overlapping runs do not re-hit the same history pages.
func NewWebPreview(client *http.Client, log *slog.Logger) *WebPreview {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebPreview{
		client:   client,
		pages:    gocache.New(2*time.Minute, 5*time.Minute),
		pageTTL:  2 * time.Minute,
		maxPages: 50,
		baseURL:  "https://t.me",
		log:      log,
	}
}

// Name identifies the strategy inside the registry.
func (w *WebPreview) Name() string {
	return "webpreview"
}

// Fetch walks the channel preview backwards page by page until it
// crosses the lookback boundary, the per-source cap, or the page
// budget, and returns the collected messages oldest first.
func (w *WebPreview) Fetch(ctx context.Context, req Request) ([]domain.Message, error) {
	channel := strings.TrimPrefix(req.Channel, "@")
	if channel == "" {
		return nil, fmt.Errorf("channel name is empty")
	}

	var collected []domain.Message
	seen := map[int64]struct{}{}
	before := int64(0)

	for page := 0; page < w.maxPages; page++ {
		pageURL := fmt.Sprintf("%s/s/%s", w.baseURL, channel)
		if before > 0 {
			pageURL += "?before=" + strconv.FormatInt(before, 10)
		}

		doc, err := w.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", req.Channel, err)
		}

		msgs, oldest, crossed := w.extract(doc, req)
		added := 0
		for _, msg := range msgs {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
			collected = append(collected, msg)
			added++
		}
		w.log.Debug("preview page scanned", "channel", req.Channel, "page", page, "messages", added)

		if crossed || oldest == 0 || oldest == before {
			break
		}
		if req.Limit > 0 && len(collected) >= req.Limit {
			break
		}
		before = oldest
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID < collected[j].ID })
	if req.Limit > 0 && len(collected) > req.Limit {
		// Keep the newest messages when the cap trims the window.
		collected = collected[len(collected)-req.Limit:]
	}
	return collected, nil
}

func (w *WebPreview) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if cached, ok := w.pages.Get(pageURL); ok {
		return goquery.NewDocumentFromReader(strings.NewReader(cached.(string)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "JobWatcher/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request preview page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read preview page: %w", err)
	}
	w.pages.Set(pageURL, string(body), w.pageTTL)

	return goquery.NewDocumentFromReader(strings.NewReader(string(body)))
}

// extract pulls messages from one preview page. crossed reports that a
// message older than the window boundary was encountered, meaning the
// walk can stop.
func (w *WebPreview) extract(doc *goquery.Document, req Request) (msgs []domain.Message, oldest int64, crossed bool) {
	source := req.Channel
	if !strings.HasPrefix(source, "@") {
		source = "@" + source
	}

	doc.Find("div.tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, ok := sel.Attr("data-post")
		if !ok {
			return
		}
		parts := strings.Split(post, "/")
		id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			return
		}
		if oldest == 0 || id < oldest {
			oldest = id
		}

		var posted time.Time
		if raw, ok := sel.Find("time").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				posted = t
			}
		}
		if !req.Since.IsZero() && !posted.IsZero() && posted.Before(req.Since) {
			crossed = true
			return
		}

		text := strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text())
		if text == "" {
			return
		}

		msgs = append(msgs, domain.Message{
			Source:   source,
			ID:       id,
			Text:     text,
			PostedAt: posted,
		})
	})

	return msgs, oldest, crossed
}
