// File: internal/otp/extract.go

// Package otp extracts short-lived numeric verification codes from
// semi-structured, non-English message bodies via prioritized pattern
// matching.
package otp

import "regexp"

// Rule is one extraction pattern. The pattern must contain exactly one
// capture group holding the digit run; a captured run outside
// [MinLen, MaxLen] is treated as if the rule had not matched at all, so the
// next rule gets a chance.
type Rule struct {
	Pattern *regexp.Regexp
	MinLen  int
	MaxLen  int
}

// DefaultRules is the rule list for the panel's verification mails, ordered
// by priority. The first pattern is the one the mail template actually uses;
// the others tolerate template drift (ASCII colon, missing brackets).
var DefaultRules = []Rule{
	{Pattern: regexp.MustCompile(`【認証コード】[　\s]*：[　\s]*(\d+)`), MinLen: 4, MaxLen: 8},
	{Pattern: regexp.MustCompile(`【認証コード】[　\s]*[：:][　\s]*(\d+)`), MinLen: 4, MaxLen: 8},
	{Pattern: regexp.MustCompile(`認証コード[　\s]*[：:][　\s]*(\d+)`), MinLen: 4, MaxLen: 8},
}

// Extract runs the rules strictly in priority order against text and returns
// the first valid captured code. Rule priority, not match position, is the
// tie-break between rules; within one rule the first match in document order
// wins (the most recent message is rendered first). Malformed or empty text
// is a normal not-found outcome, never an error.
func Extract(text string, rules []Rule) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range rules {
		matches := rule.Pattern.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			if len(m) < 2 {
				continue
			}
			code := m[1]
			if len(code) >= rule.MinLen && len(code) <= rule.MaxLen {
				return code, true
			}
		}
	}
	return "", false
}
