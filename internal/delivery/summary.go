package delivery

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"jobwatcher/internal/domain"
)

// RunMeta carries run-level context into the leading summary payload.
type RunMeta struct {
	StartedAt time.Time
	Window    time.Duration
	Channels  []string
	Processed int
	Ignored   int
}

// buildSummary renders the leading report: run header, counters and a
// grouped listing of item references ordered by verdict. The result is
// ellipsis-truncated to limit runes when it would overflow.
func buildSummary(items []domain.DeliveryItem, meta RunMeta, truncated int, verdictOrder []string, limit int) string {
	started := meta.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	lines := []string{
		fmt.Sprintf("JobWatcher — run summary (%s)", started.Format("2006-01-02 15:04:05")),
	}
	if meta.Window > 0 {
		lines = append(lines, fmt.Sprintf("Window: %s", meta.Window))
	}
	if len(meta.Channels) > 0 {
		lines = append(lines, "Channels: "+strings.Join(meta.Channels, ", "))
	}
	lines = append(lines,
		fmt.Sprintf("Checked: %d | Found: %d | Ignored: %d | Truncated: %d",
			meta.Processed, len(items), meta.Ignored, truncated),
		"",
	)

	groups := map[string][]domain.DeliveryItem{}
	for _, it := range items {
		groups[it.Verdict] = append(groups[it.Verdict], it)
	}

	emitted := map[string]bool{}
	emit := func(verdict string) {
		group := groups[verdict]
		if len(group) == 0 || emitted[verdict] {
			return
		}
		emitted[verdict] = true
		lines = append(lines, fmt.Sprintf("=== %s — %d ===", verdict, len(group)))
		for _, it := range group {
			lines = append(lines, fmt.Sprintf("%s / %s", it.Source, PostLink(it.Source, it.MessageID)))
		}
		lines = append(lines, "")
	}

	for _, verdict := range verdictOrder {
		emit(verdict)
	}
	var leftovers []string
	for verdict := range groups {
		if !emitted[verdict] {
			leftovers = append(leftovers, verdict)
		}
	}
	sort.Strings(leftovers)
	for _, verdict := range leftovers {
		emit(verdict)
	}

	text := strings.Join(lines, "\n")
	if utf8.RuneCountInString(text) > limit {
		text = bluntCut([]rune(text), limit)
	}
	return text
}
