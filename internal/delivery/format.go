package delivery

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"jobwatcher/internal/domain"
)

const (
	previewMarker = "Preview:"
	blockDivider  = "------------------------------"
	ellipsis      = "…"
	scoreBarSlots = 3
)

// FormatItem renders one classified post as a self-contained text
// block: source reference, post link, score bar, verdict and preview.
func FormatItem(it domain.DeliveryItem) string {
	score := "N/A"
	if it.Score != nil {
		score = strconv.Itoa(*it.Score)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s | post (%s)\n\n", it.Source, PostLink(it.Source, it.MessageID))
	fmt.Fprintf(&b, "%s %s\n", scoreBar(it.Score), it.Verdict)
	fmt.Fprintf(&b, "Score: %s ( +%d / -%d )\n\n", score, it.PositiveSum, it.NegativeSum)
	b.WriteString(previewMarker + "\n")
	b.WriteString(it.Preview)
	b.WriteString("\n\n" + blockDivider)
	return b.String()
}

// PostLink builds the public post URL for a channel message.
func PostLink(source string, messageID int64) string {
	name := strings.TrimPrefix(source, "@")
	if name == "" {
		return strconv.FormatInt(messageID, 10)
	}
	if messageID == 0 {
		return "https://t.me/" + name
	}
	return fmt.Sprintf("https://t.me/%s/%d", name, messageID)
}

func scoreBar(score *int) string {
	filled := 0
	if score != nil && *score > 0 {
		filled = *score
		if filled > scoreBarSlots {
			filled = scoreBarSlots
		}
	}
	return strings.Repeat("🟩", filled) + strings.Repeat("⬜", scoreBarSlots-filled)
}

// truncateBlock shortens an oversized block to at most limit runes,
// always ending with the ellipsis marker. When the block carries a
// preview section the cut happens there, preferring the nearest
// preceding whitespace if it lies past 60% of the available budget so
// words are not chopped mid-way. Blocks without a usable preview fall
// back to a blunt cut.
func truncateBlock(block string, limit int) string {
	runes := []rune(block)
	if len(runes) <= limit {
		return block
	}

	idx := strings.Index(block, previewMarker)
	if idx < 0 {
		return bluntCut(runes, limit)
	}

	headerRunes := utf8.RuneCountInString(block[:idx+len(previewMarker)])
	avail := limit - headerRunes - utf8.RuneCountInString(ellipsis)
	if avail <= 0 {
		return bluntCut(runes[:headerRunes], limit)
	}

	preview := runes[headerRunes:]
	if avail > len(preview) {
		avail = len(preview)
	}
	short := preview[:avail]
	for len(short) > 0 && unicode.IsSpace(short[len(short)-1]) {
		short = short[:len(short)-1]
	}

	lastSpace := -1
	for i := len(short) - 1; i >= 0; i-- {
		if unicode.IsSpace(short[i]) {
			lastSpace = i
			break
		}
	}
	if lastSpace > int(float64(len(short))*0.6) {
		short = short[:lastSpace]
	}

	return string(runes[:headerRunes]) + string(short) + ellipsis
}

func bluntCut(runes []rune, limit int) string {
	keep := limit - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	return strings.TrimRight(string(runes[:keep]), " \n\t") + ellipsis
}
