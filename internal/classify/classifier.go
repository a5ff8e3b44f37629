package classify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"jobwatcher/internal/domain"
)

// Thresholds are the verdict band boundaries, evaluated high to low.
type Thresholds struct {
	Target      int
	Alternative int
	Maybe       int
}

// DefaultThresholds returns the stock 4/2/1 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Target: 4, Alternative: 2, Maybe: 1}
}

// Valid reports whether the bands are strictly ordered.
func (t Thresholds) Valid() bool {
	return t.Target > t.Alternative && t.Alternative > t.Maybe
}

// Classifier applies a compiled marker profile to message text. It is
// read-only after construction; configuration reloads build a new one.
type Classifier struct {
	rules      *ruleSet
	thresholds Thresholds
	log        *slog.Logger
}

// New compiles a profile directly, without the shared cache.
func New(cfg MarkerConfig, thr Thresholds, log *slog.Logger) *Classifier {
	return newClassifier(compile(cfg), thr, log)
}

func newClassifier(rules *ruleSet, thr Thresholds, log *slog.Logger) *Classifier {
	if !thr.Valid() {
		if log != nil {
			log.Warn("threshold bands are not strictly ordered, using defaults",
				"target", thr.Target, "alternative", thr.Alternative, "maybe", thr.Maybe)
		}
		thr = DefaultThresholds()
	}
	return &Classifier{rules: rules, thresholds: thr, log: log}
}

// Compiler builds classifiers and memoizes compiled rule sets by
// profile digest, so a config reload that did not change the markers
// does not recompile and restem the whole profile.
type Compiler struct {
	cache *gocache.Cache
}

// NewCompiler builds a compiler with an in-memory rule cache.
func NewCompiler() *Compiler {
	return &Compiler{cache: gocache.New(time.Hour, 10*time.Minute)}
}

// Classifier returns a classifier for the given profile, reusing a
// cached rule set when the profile digest has been seen before.
func (c *Compiler) Classifier(cfg MarkerConfig, thr Thresholds, log *slog.Logger) *Classifier {
	key := cfg.digest()
	if cached, ok := c.cache.Get(key); ok {
		return newClassifier(cached.(*ruleSet), thr, log)
	}
	rules := compile(cfg)
	c.cache.Set(key, rules, gocache.DefaultExpiration)
	return newClassifier(rules, thr, log)
}

// Classify scores one message. It never fails: malformed input or an
// empty profile yields a neutral result with no evidence.
//
// Ignore markers have absolute priority: the first one that occurs in
// the normalized text (whitespace-bounded) vetoes the message and no
// further category is evaluated. Scoring markers are tried longest
// first and each match consumes its span of the search text, so a
// sub-phrase cannot re-match inside a longer phrase that already did.
func (c *Classifier) Classify(text string) domain.Result {
	norm := NormalizePhrase(text)
	res := domain.Result{Matches: map[domain.MarkerCategory][]string{}}

	for _, m := range c.rules.ignore {
		if _, ok := findPhrase(norm, m.norm); ok {
			res.Matches[domain.CategoryIgnore] = append(res.Matches[domain.CategoryIgnore], m.orig)
			res.Verdict = fmt.Sprintf("%s (ignore: %s)", domain.VerdictReject, m.orig)
			return res
		}
	}

	search := norm
	for _, m := range c.rules.scoring {
		idx, ok := findPhrase(search, m.norm)
		if !ok {
			continue
		}
		res.Matches[m.category] = append(res.Matches[m.category], m.orig)
		if m.weight > 0 {
			res.PositiveSum += m.weight
		} else {
			res.NegativeSum += -m.weight
		}
		search = maskSpan(search, idx, len(m.norm))
	}

	final := res.PositiveSum - res.NegativeSum
	res.FinalScore = &final
	res.Verdict = c.verdict(final)
	return res
}

func (c *Classifier) verdict(score int) string {
	switch {
	case score >= c.thresholds.Target:
		return domain.VerdictGood
	case score >= c.thresholds.Alternative:
		return domain.VerdictAlternative
	case score >= c.thresholds.Maybe:
		return domain.VerdictMaybe
	default:
		return domain.VerdictReject
	}
}

// findPhrase locates phrase in text as a whitespace-delimited
// subsequence: bounded by start/end of string or a space on both
// sides, never a substring inside another token.
func findPhrase(text, phrase string) (int, bool) {
	if phrase == "" || text == "" {
		return 0, false
	}
	from := 0
	for {
		idx := strings.Index(text[from:], phrase)
		if idx < 0 {
			return 0, false
		}
		idx += from
		end := idx + len(phrase)
		startOK := idx == 0 || text[idx-1] == ' '
		endOK := end == len(text) || text[end] == ' '
		if startOK && endOK {
			return idx, true
		}
		from = idx + 1
	}
}

// maskSpan blanks a matched span with a sentinel byte, keeping length
// and token boundaries stable for the remaining markers.
func maskSpan(s string, start, n int) string {
	b := []byte(s)
	for i := start; i < start+n && i < len(b); i++ {
		b[i] = 0x1f
	}
	return string(b)
}
