package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func previewMessage(id int64, when time.Time, text string) string {
	return fmt.Sprintf(`
	<div class="tgme_widget_message" data-post="gojobs/%d">
	  <div class="tgme_widget_message_text">%s</div>
	  <a class="tgme_widget_message_date" href="https://t.me/gojobs/%d">
	    <time datetime="%s"></time>
	  </a>
	</div>`, id, text, id, when.Format(time.RFC3339))
}

func TestWebPreviewFetch(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("before") != "" {
			// Older page: everything beyond the window.
			_, _ = fmt.Fprint(w, previewMessage(90, now.Add(-72*time.Hour), "ancient post"))
			return
		}
		_, _ = fmt.Fprint(w,
			previewMessage(102, now.Add(-1*time.Hour), "fresh golang job"),
			previewMessage(101, now.Add(-2*time.Hour), "another post"),
			previewMessage(100, now.Add(-48*time.Hour), "too old"),
		)
	}))
	defer server.Close()

	wp := NewWebPreview(server.Client(), nil)
	wp.baseURL = server.URL

	msgs, err := wp.Fetch(context.Background(), Request{
		Channel: "@gojobs",
		Since:   now.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages inside the window, got %d: %v", len(msgs), msgs)
	}
	if msgs[0].ID != 101 || msgs[1].ID != 102 {
		t.Fatalf("messages must come back oldest first, got %d then %d", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Source != "@gojobs" {
		t.Fatalf("source must carry the configured channel, got %q", msgs[0].Source)
	}
	if msgs[1].Text != "fresh golang job" {
		t.Fatalf("unexpected text: %q", msgs[1].Text)
	}
}

func TestWebPreviewPagination(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	var pages []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.RawQuery)
		if r.URL.Query().Get("before") == "" {
			_, _ = fmt.Fprint(w,
				previewMessage(201, now.Add(-1*time.Hour), "page one post"),
				previewMessage(200, now.Add(-2*time.Hour), "page one older"),
			)
			return
		}
		_, _ = fmt.Fprint(w, previewMessage(150, now.Add(-3*time.Hour), "page two post"))
	}))
	defer server.Close()

	wp := NewWebPreview(server.Client(), nil)
	wp.baseURL = server.URL
	wp.maxPages = 2

	msgs, err := wp.Fetch(context.Background(), Request{
		Channel: "gojobs",
		Since:   now.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(pages) != 2 {
		t.Fatalf("expected 2 page fetches, got %d: %v", len(pages), pages)
	}
	if pages[1] != "before=200" {
		t.Fatalf("second page must walk back from the oldest id, got %q", pages[1])
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages across pages, got %d", len(msgs))
	}
	if msgs[0].ID != 150 {
		t.Fatalf("merged result must be oldest first, got %d", msgs[0].ID)
	}
}

func TestWebPreviewPerChannelCap(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for id := int64(310); id >= 301; id-- {
			_, _ = fmt.Fprint(w, previewMessage(id, now.Add(-time.Hour), fmt.Sprintf("post %d", id)))
		}
	}))
	defer server.Close()

	wp := NewWebPreview(server.Client(), nil)
	wp.baseURL = server.URL

	msgs, err := wp.Fetch(context.Background(), Request{
		Channel: "@gojobs",
		Since:   now.Add(-24 * time.Hour),
		Limit:   4,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(msgs) != 4 {
		t.Fatalf("expected the cap to hold, got %d messages", len(msgs))
	}
	// The newest messages survive the cap.
	if msgs[len(msgs)-1].ID != 310 || msgs[0].ID != 307 {
		t.Fatalf("cap must keep the newest messages: first %d last %d", msgs[0].ID, msgs[len(msgs)-1].ID)
	}
}

func TestWebPreviewCachesPages(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	hits := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = fmt.Fprint(w, previewMessage(400, now.Add(-time.Hour), "cached post"))
	}))
	defer server.Close()

	wp := NewWebPreview(server.Client(), nil)
	wp.baseURL = server.URL

	for i := 0; i < 3; i++ {
		if _, err := wp.Fetch(context.Background(), Request{Channel: "@gojobs", Since: now.Add(-24 * time.Hour)}); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	// The first fetch probes two pages (the head and one ?before walk);
	// the repeats are served from the cache entirely.
	if hits != 2 {
		t.Fatalf("expected two upstream hits thanks to the page cache, got %d", hits)
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(NewWebPreview(nil, nil))

	if _, err := reg.Resolve("webpreview"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := reg.Resolve("missing"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
