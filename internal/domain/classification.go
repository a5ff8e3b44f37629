package domain

import "time"

// MarkerCategory names one weighted phrase bucket of the profile.
type MarkerCategory string

const (
	CategoryIgnore         MarkerCategory = "ignore"
	CategoryStrongNegative MarkerCategory = "strong_negative"
	CategoryNegative       MarkerCategory = "negative"
	CategoryAcceptable     MarkerCategory = "acceptable"
	CategoryExcellent      MarkerCategory = "excellent"
)

// Verdict labels derived from the final score via threshold bands.
const (
	VerdictGood        = "good match"
	VerdictAlternative = "alternative — consider"
	VerdictMaybe       = "looks possible — needs reading"
	VerdictReject      = "definitely not"
)

// Result is the outcome of classifying one message. FinalScore is nil
// exactly when an ignore marker short-circuited the evaluation.
type Result struct {
	FinalScore  *int
	PositiveSum int
	NegativeSum int
	Matches     map[MarkerCategory][]string
	Verdict     string
}

// Ignored reports whether the ignore short-circuit fired.
func (r Result) Ignored() bool {
	return r.FinalScore == nil
}

// SeenRecord is the persisted trace of one classified fingerprint.
type SeenRecord struct {
	Fingerprint string
	Source      string
	MessageID   int64
	Verdict     string
	FinalScore  *int
	PositiveSum int
	NegativeSum int
	MatchesJSON string
	RawText     string
	FirstSeenAt time.Time
}

// DeliveryItem carries one qualifying result into the batcher. It is
// built per qualifying message and discarded after delivery.
type DeliveryItem struct {
	Source      string
	MessageID   int64
	Score       *int
	PositiveSum int
	NegativeSum int
	Verdict     string
	Preview     string
	Truncated   bool
}

// RunStats aggregates the counters reported at the end of a run.
type RunStats struct {
	Processed  int
	Qualifying int
	Ignored    int
	Sent       int
	Failed     int
	Truncated  int
}
