// Package filters implements candidate item filtering for scan cycles.
//
// Two rules run in order over each cycle's combined fetch:
//   - Exclusion words: case-insensitive substring denylist
//   - Duplicate text: identical trimmed text collapses to its first occurrence
//
// Both are pure over the input slice; dedup state lives only for one call.
package filters

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// Drop reason codes.
const (
	ReasonEmpty     = "filter_empty"
	ReasonExcluded  = "filter_excluded"
	ReasonDuplicate = "filter_duplicate"
)

// Filterer drops excluded and duplicated candidate items before
// classification.
type Filterer struct {
	words []string
	caser cases.Caser
}

// New creates a Filterer over a set of exclusion words. Matching is
// case-insensitive substring containment; exclusion lists are
// operator-maintained free text, so substring semantics keep the contract
// predictable.
func New(words []string) *Filterer {
	return &Filterer{words: words, caser: cases.Fold()}
}

// Apply filters one cycle's worth of items: exclusion words first, then
// first-occurrence dedup keyed by case-folded trimmed text. Order is
// preserved and the first-seen casing of each distinct text survives.
// Returns survivors and drop counts keyed by reason.
func (f *Filterer) Apply(items []domain.CandidateItem) ([]domain.CandidateItem, map[string]int) {
	drops := make(map[string]int)
	seen := make(map[string]struct{}, len(items))

	var survivors []domain.CandidateItem

	for _, item := range items {
		trimmed := strings.TrimSpace(item.Text)
		if !hasContent(trimmed) {
			drops[ReasonEmpty]++
			continue
		}

		if f.Excluded(item.Text) {
			drops[ReasonExcluded]++
			continue
		}

		key := f.caser.String(trimmed)
		if _, dup := seen[key]; dup {
			drops[ReasonDuplicate]++
			continue
		}

		seen[key] = struct{}{}
		survivors = append(survivors, item)
	}

	return survivors, drops
}

// Excluded reports whether the text contains any exclusion word,
// case-insensitively.
func (f *Filterer) Excluded(text string) bool {
	folded := f.caser.String(text)

	for _, w := range f.words {
		if w == "" {
			continue
		}

		if strings.Contains(folded, f.caser.String(w)) {
			return true
		}
	}

	return false
}

// hasContent reports whether the text carries at least one letter or digit.
// Emoji-only and whitespace-only messages cannot be leads.
func hasContent(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}

	return false
}
