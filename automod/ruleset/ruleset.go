package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/keyword"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Built-in advertising/spam keywords, checked before any configured rule.
var DefaultSpamKeywords = []string{
	"buy",
	"free",
	"discord.gg",
	"invite",
	"nitro",
}

// Holds the loaded moderation configuration: ordered rules, the escalation ladder, and classifier label mapping.
//
// A RuleSet is never mutated after Load returns, and is safe for concurrent use.
type RuleSet struct {
	rules            []Rule
	ladder           *escalation.Ladder
	classifierLevels map[string]Level
	spamKeywords     []string
	hasPhrases       bool
}

type ruleConfig struct {
	ID              string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string   `json:"name" yaml:"name"`
	Keywords        []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Phrases         []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`
	Regex           []string `json:"regex,omitempty" yaml:"regex,omitempty"`
	PunishmentLevel *Level   `json:"punishmentLevel" yaml:"punishmentLevel"`
}

type sourceConfig struct {
	Rules            []ruleConfig            `json:"rules" yaml:"rules"`
	Escalation       []escalation.StepConfig `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	ClassifierLabels map[string]Level        `json:"classifierLabels,omitempty" yaml:"classifierLabels,omitempty"`
	SpamKeywords     []string                `json:"spamKeywords,omitempty" yaml:"spamKeywords,omitempty"`
}

// Parses and validates a rules source. Unknown fields, invalid regular expressions, rules without an identifier, rules without a positive or "instant" punishment level, and duplicate identifiers all fail the entire load.
func Load(r io.Reader, format Format) (*RuleSet, error) {
	return load(r, format, "")
}

// Loads rules from a JSON or YAML file, selecting the format by file extension.
func LoadFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Index: -1, Msg: "opening rules file", Err: err}
	}
	defer func() { _ = f.Close() }()

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return load(f, format, path)
}

func load(r io.Reader, format Format, source string) (*RuleSet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ConfigError{Source: source, Index: -1, Msg: "reading rules", Err: err}
	}

	var sc sourceConfig
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return nil, &ConfigError{Source: source, Index: -1, Msg: "parsing JSON", Err: err}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
			return nil, &ConfigError{Source: source, Index: -1, Msg: "parsing YAML", Err: err}
		}
	default:
		return nil, &ConfigError{Source: source, Index: -1, Msg: fmt.Sprintf("unsupported format: %q", format)}
	}
	return compile(sc, source)
}

func compile(sc sourceConfig, source string) (*RuleSet, error) {
	rs := &RuleSet{
		rules:            make([]Rule, 0, len(sc.Rules)),
		classifierLevels: make(map[string]Level, len(sc.ClassifierLabels)),
	}

	seen := make(map[string]bool, len(sc.Rules))
	for i, rc := range sc.Rules {
		rule, err := compileRule(rc)
		if err != nil {
			return nil, &ConfigError{Source: source, Index: i, Msg: err.Error()}
		}
		if seen[rule.ID] {
			return nil, &ConfigError{Source: source, Index: i, Msg: fmt.Sprintf("duplicate rule identifier: %q", rule.ID)}
		}
		seen[rule.ID] = true
		for _, m := range rule.Matchers {
			if m.Kind == MatchPhrase {
				rs.hasPhrases = true
			}
		}
		rs.rules = append(rs.rules, rule)
	}

	if len(sc.Escalation) == 0 {
		rs.ladder = escalation.DefaultLadder()
	} else {
		steps := make([]escalation.Step, 0, len(sc.Escalation))
		for _, stc := range sc.Escalation {
			s, err := stc.Step()
			if err != nil {
				return nil, &ConfigError{Source: source, Index: -1, Msg: "escalation", Err: err}
			}
			steps = append(steps, s)
		}
		l, err := escalation.NewLadder(steps)
		if err != nil {
			return nil, &ConfigError{Source: source, Index: -1, Msg: "escalation", Err: err}
		}
		rs.ladder = l
	}

	for label, lvl := range sc.ClassifierLabels {
		if !lvl.valid() {
			return nil, &ConfigError{Source: source, Index: -1, Msg: fmt.Sprintf("classifier label %q has invalid level %s", label, lvl)}
		}
		rs.classifierLevels[strings.ToLower(label)] = lvl
	}

	rs.spamKeywords = append(rs.spamKeywords, DefaultSpamKeywords...)
	for _, kw := range sc.SpamKeywords {
		kw = keyword.Normalize(strings.TrimSpace(kw))
		if kw != "" {
			rs.spamKeywords = append(rs.spamKeywords, kw)
		}
	}
	return rs, nil
}

func compileRule(rc ruleConfig) (Rule, error) {
	id := strings.TrimSpace(rc.ID)
	name := strings.TrimSpace(rc.Name)
	if id == "" {
		id = name
	}
	if id == "" {
		return Rule{}, fmt.Errorf("rule has no id or name")
	}
	if name == "" {
		name = id
	}
	if rc.PunishmentLevel == nil {
		return Rule{}, fmt.Errorf("rule %q has no punishmentLevel", id)
	}
	if !rc.PunishmentLevel.valid() {
		return Rule{}, fmt.Errorf("rule %q punishmentLevel must be positive or %q", id, instantLevel)
	}

	rule := Rule{
		ID:    id,
		Name:  name,
		Level: *rc.PunishmentLevel,
	}
	for _, kw := range rc.Keywords {
		kw = keyword.Normalize(strings.TrimSpace(kw))
		if kw == "" {
			return Rule{}, fmt.Errorf("rule %q has an empty keyword", id)
		}
		rule.Matchers = append(rule.Matchers, Matcher{Kind: MatchKeyword, Value: kw})
	}
	for _, ph := range rc.Phrases {
		toks := keyword.TokenizeText(ph)
		if len(toks) == 0 {
			return Rule{}, fmt.Errorf("rule %q has an empty phrase", id)
		}
		rule.Matchers = append(rule.Matchers, Matcher{Kind: MatchPhrase, Value: strings.Join(toks, " "), tokens: toks})
	}
	for _, expr := range rc.Regex {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q regex %q: %w", id, expr, err)
		}
		rule.Matchers = append(rule.Matchers, Matcher{Kind: MatchRegex, Value: expr, re: re})
	}
	return rule, nil
}

// Returns every rule whose matchers fire against the (normalized, lower-cased) text, in configuration order.
func (rs *RuleSet) FindMatches(text string) []*Rule {
	norm := keyword.Normalize(text)
	var tokens []string
	if rs.hasPhrases {
		tokens = keyword.TokenizeText(text)
	}
	var out []*Rule
	for i := range rs.rules {
		if rs.rules[i].Matches(norm, tokens) {
			out = append(out, &rs.rules[i])
		}
	}
	return out
}

// Returns the first rule (in configuration order) whose name contains any of the given substrings, or nil. Comparison ignores case, punctuation and spacing (see keyword.Slugify).
func (rs *RuleSet) FindByName(substrs ...string) *Rule {
	for i := range rs.rules {
		name := keyword.Slugify(rs.rules[i].Name)
		for _, s := range substrs {
			slug := keyword.Slugify(s)
			if slug != "" && strings.Contains(name, slug) {
				return &rs.rules[i]
			}
		}
	}
	return nil
}

// Resolves the punishment level for a classifier label: an explicit mapping wins, then a rule whose name contains the label, otherwise a single point. The returned rule ID is empty unless a named rule was used.
func (rs *RuleSet) ClassifierLevel(label string) (Level, string) {
	label = strings.ToLower(label)
	if lvl, ok := rs.classifierLevels[label]; ok {
		return lvl, ""
	}
	if r := rs.FindByName(label); r != nil {
		return r.Level, r.ID
	}
	return Level{Points: 1}, ""
}

func (rs *RuleSet) Ladder() *escalation.Ladder {
	return rs.ladder
}

func (rs *RuleSet) SpamKeywords() []string {
	out := make([]string, len(rs.spamKeywords))
	copy(out, rs.spamKeywords)
	return out
}

func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// An empty rule set with the default ladder and spam keywords.
func Empty() *RuleSet {
	rs, err := compile(sourceConfig{}, "")
	if err != nil {
		panic(err)
	}
	return rs
}
