package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"unicode/utf8"

	"jobwatcher/internal/domain"
)

// MarkerConfig is the raw phrase profile as loaded from configuration.
// Missing or empty lists are valid and simply match nothing.
type MarkerConfig struct {
	Ignore         []string
	StrongNegative []string
	Negative       []string
	Acceptable     []string
	Excellent      []string
}

// digest identifies a marker profile for the compile cache.
func (c MarkerConfig) digest() string {
	h := sha256.New()
	for _, list := range [][]string{c.Ignore, c.StrongNegative, c.Negative, c.Acceptable, c.Excellent} {
		for _, phrase := range list {
			_, _ = io.WriteString(h, phrase)
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type marker struct {
	norm string
	orig string
}

type weightedMarker struct {
	marker
	category domain.MarkerCategory
	weight   int
}

// Category weights: excellent +2, acceptable +1, negative -1,
// strong-negative -2. Negative weights accumulate into NegativeSum as
// positive magnitudes.
const (
	weightExcellent      = 2
	weightAcceptable     = 1
	weightNegative       = -1
	weightStrongNegative = -2
)

// ruleSet is a compiled, read-only marker profile. Ignore markers are
// kept apart because they short-circuit; the scoring markers of the
// four remaining categories are merged into a single list ordered
// longest-original-first, so a multi-word phrase is never shadowed by a
// shorter phrase it contains.
type ruleSet struct {
	ignore  []marker
	scoring []weightedMarker
}

func compile(cfg MarkerConfig) *ruleSet {
	rs := &ruleSet{ignore: compileList(cfg.Ignore)}

	appendCategory := func(phrases []string, cat domain.MarkerCategory, weight int) {
		for _, m := range compileList(phrases) {
			rs.scoring = append(rs.scoring, weightedMarker{marker: m, category: cat, weight: weight})
		}
	}
	appendCategory(cfg.StrongNegative, domain.CategoryStrongNegative, weightStrongNegative)
	appendCategory(cfg.Negative, domain.CategoryNegative, weightNegative)
	appendCategory(cfg.Acceptable, domain.CategoryAcceptable, weightAcceptable)
	appendCategory(cfg.Excellent, domain.CategoryExcellent, weightExcellent)

	sort.SliceStable(rs.scoring, func(i, j int) bool {
		return utf8.RuneCountInString(rs.scoring[i].orig) > utf8.RuneCountInString(rs.scoring[j].orig)
	})
	return rs
}

// compileList normalizes one category: longest originals first, then
// deduplicated by normalized form (first seen original wins).
func compileList(phrases []string) []marker {
	if len(phrases) == 0 {
		return nil
	}
	ordered := append([]string(nil), phrases...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})

	seen := make(map[string]struct{}, len(ordered))
	out := make([]marker, 0, len(ordered))
	for _, orig := range ordered {
		norm := NormalizePhrase(orig)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, marker{norm: norm, orig: orig})
	}
	return out
}
