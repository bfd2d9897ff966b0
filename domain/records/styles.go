package records

import (
	"sort"
	"strings"
)

// styleVocabulary is the fixed set of tattoo styles a record may carry.
var styleVocabulary = map[string]struct{}{
	"old_school":      {},
	"traditional":     {},
	"new_school":      {},
	"neo_traditional": {},
	"tribal":          {},
	"blackwork":       {},
	"dotwork":         {},
	"geometric":       {},
	"japanese":        {},
	"lettering":       {},
	"biomechanical":   {},
	"watercolour":     {},
	"floral":          {},
	"fineline":        {},
	"realism":         {},
	"minimalist":      {},
	"surrealism":      {},
	"portrait":        {},
	"sketch":          {},
	"illustrative":    {},
	"ornamental":      {},
	"trash_polka":     {},
}

var styleAliases = map[string]string{
	"watercolor":   "watercolour",
	"fine_line":    "fineline",
	"neotrad":      "neo_traditional",
	"oldschool":    "old_school",
	"newschool":    "new_school",
	"black_work":   "blackwork",
	"dot_work":     "dotwork",
	"minimal":      "minimalist",
	"realistic":    "realism",
	"trashpolka":   "trash_polka",
	"biomech":      "biomechanical",
	"irezumi":      "japanese",
	"script":       "lettering",
	"illustration": "illustrative",
}

// StyleVocabulary returns the known styles in sorted order.
func StyleVocabulary() []string {
	out := make([]string, 0, len(styleVocabulary))
	for s := range styleVocabulary {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsKnownStyle reports whether s is a canonical style id.
func IsKnownStyle(s string) bool {
	_, ok := styleVocabulary[s]
	return ok
}

// NormalizeStyle maps free-form style tags ("Neo-Traditional", "watercolor")
// onto the canonical vocabulary. ok is false when no canonical style matches.
func NormalizeStyle(s string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	if alias, ok := styleAliases[n]; ok {
		n = alias
	}
	return n, IsKnownStyle(n)
}

// NormalizeStyles canonicalizes and deduplicates tags, keeping first
// occurrence order. Unknown tags are dropped.
func NormalizeStyles(styles []string) []string {
	if styles == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(styles))
	out := make([]string, 0, len(styles))
	for _, s := range styles {
		n, ok := NormalizeStyle(s)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
