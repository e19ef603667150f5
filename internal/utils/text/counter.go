// Package text provides small helpers for cleaning feed text: rune counting,
// HTML stripping and rune-safe truncation.
package text

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Ellipsis is appended by Truncate when text is cut.
const Ellipsis = "..."

// CountRunes counts the number of Unicode characters (runes) in the given text.
// Multi-byte characters such as Japanese text or emoji count as one.
//
//	CountRunes("hello")   // 5
//	CountRunes("hello世界") // 7
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate shortens text to at most max runes. When text is longer, the first
// max-3 runes are kept and Ellipsis is appended.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if CountRunes(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= len(Ellipsis) {
		return string(runes[:max])
	}
	return string(runes[:max-len(Ellipsis)]) + Ellipsis
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from whitespace.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return CollapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CollapseSpace(fragment)
	}
	doc.Find("script, style").Remove()
	return CollapseSpace(doc.Text())
}

// CollapseSpace trims text and replaces every whitespace run with one space.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
