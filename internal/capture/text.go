package capture

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"]+`)
	hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	areaHintOne    = regexp.MustCompile(`(?:^|\s)[@!]([\p{L}\p{N}_-]+)`)
	amountPattern  = regexp.MustCompile(`(?i)([0-9]+(?:[.,][0-9]+)?)\s*([km])?`)
)

// ExtractURLs returns every URL literal in the message, in order.
func ExtractURLs(message string) []string {
	return urlPattern.FindAllString(message, -1)
}

// ExtractHashtags returns hashtag words as suggested tags.
func ExtractHashtags(message string) []string {
	var tags []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(message, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// ExtractAreaHint returns the first @name or !name prefix hint, if any.
func ExtractAreaHint(message string) string {
	if m := areaHintOne.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

// ParseAmount resolves an amount string with shorthand suffixes before
// persistence: "3k" → 3000, "1.5m" → 1500000. Thousands separators and
// currency markers are stripped. Returns 0, false when nothing parses.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer("฿", "", "$", "", "บาท", "", "baht", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	m := amountPattern.FindStringSubmatch(s)
	if m == nil || m[1] == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		value *= 1_000
	case "m":
		value *= 1_000_000
	}
	return value, true
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}

// FuzzyMatchTitle finds the item whose title best matches the query: exact
// (case-insensitive) first, then containment in either direction. Returns
// nil when nothing matches.
func FuzzyMatchTitle(items []para.Item, query string) *para.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	for i := range items {
		if strings.ToLower(items[i].Title) == q {
			return &items[i]
		}
	}
	for i := range items {
		title := strings.ToLower(items[i].Title)
		if strings.Contains(title, q) || strings.Contains(q, title) {
			return &items[i]
		}
	}
	return nil
}
