package ruleset

import (
	"regexp"
	"strings"

	"github.com/modwarden/warden/automod/keyword"
)

type MatcherKind string

const (
	MatchKeyword MatcherKind = "keyword"
	MatchRegex   MatcherKind = "regex"
	MatchPhrase  MatcherKind = "phrase"
)

// A single compiled matcher. Keywords match as substrings of the normalized text; phrases match as a contiguous token sequence; regular expressions are evaluated case-insensitively against the normalized text.
type Matcher struct {
	Kind  MatcherKind
	Value string

	re     *regexp.Regexp
	tokens []string
}

func (m *Matcher) matches(text string, tokens []string) bool {
	switch m.Kind {
	case MatchKeyword:
		return m.Value != "" && strings.Contains(text, m.Value)
	case MatchRegex:
		return m.re.MatchString(text)
	case MatchPhrase:
		return keyword.ContainsPhrase(tokens, m.tokens)
	}
	return false
}

// A single configured moderation rule. Immutable after load.
type Rule struct {
	ID       string
	Name     string
	Matchers []Matcher
	Level    Level
}

// Reports whether any of the rule's matchers fire. `text` must already be normalized (see keyword.Normalize), and `tokens` derived from the same input.
func (r *Rule) Matches(text string, tokens []string) bool {
	for i := range r.Matchers {
		if r.Matchers[i].matches(text, tokens) {
			return true
		}
	}
	return false
}
