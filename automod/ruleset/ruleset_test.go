package ruleset

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modwarden/warden/automod/escalation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileJSON(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rs, err := LoadFile("testdata/rules.json")
	require.NoError(err)
	assert.Equal(6, rs.Len())

	rules := rs.Rules()
	assert.Equal("Spam", rules[0].ID)
	assert.Equal("scam-phrase", rules[3].ID)
	assert.Equal("Scam", rules[3].Name)
	assert.True(rules[3].Level.Instant)
	assert.Equal(2, rules[2].Level.Points)

	// no escalation section: default ladder
	assert.Equal(escalation.DefaultSteps, rs.Ladder().Steps())
}

func TestLoadFileYAML(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rs, err := LoadFile("testdata/rules.yaml")
	require.NoError(err)
	assert.Equal(3, rs.Len())

	steps := rs.Ladder().Steps()
	require.Len(steps, 3)
	assert.Equal(escalation.Timeout(30*time.Minute), steps[0].Action)
	assert.Equal(escalation.Kick(), steps[1].Action)
	assert.Contains(rs.SpamKeywords(), "cheap followers")
	assert.Contains(rs.SpamKeywords(), "discord.gg")

	m := rs.FindMatches("call me at 555-123-4567")
	require.Len(m, 1)
	assert.Equal("Doxxing", m[0].ID)
	assert.True(m[0].Level.Instant)
}

func TestFindMatchesOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rs, err := LoadFile("testdata/rules.json")
	require.NoError(err)

	m := rs.FindMatches("BADWORD1 and free NITRO at https://example.com")
	require.Len(m, 3)
	assert.Equal("Spam", m[0].ID)
	assert.Equal("Bad Word", m[1].ID)
	assert.Equal("Suspicious Regex", m[2].ID)

	// deterministic: same input, same output
	for i := 0; i < 10; i++ {
		again := rs.FindMatches("BADWORD1 and free NITRO at https://example.com")
		assert.Equal(m, again)
	}

	assert.Empty(rs.FindMatches("a perfectly polite message"))

	m = rs.FindMatches("ok. Send me your PASSWORD, please")
	require.Len(m, 1)
	assert.Equal("scam-phrase", m[0].ID)

	// phrase must be contiguous tokens
	assert.Empty(rs.FindMatches("send me a note with your password"))
}

func TestFindByNameAndClassifierLevel(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rs, err := LoadFile("testdata/rules.json")
	require.NoError(err)

	r := rs.FindByName("flood")
	require.NotNil(r)
	assert.Equal("Flooding", r.ID)
	assert.Nil(rs.FindByName("nsfw"))
	assert.Equal("Spam", rs.FindByName("advertising", "spam").ID)
	assert.Equal("Bad Word", rs.FindByName("bad_word").ID)
	assert.Equal("Suspicious Regex", rs.FindByName("suspicious-regex").ID)

	lvl, ruleID := rs.ClassifierLevel("HATE")
	assert.True(lvl.Instant)
	assert.Equal("", ruleID)

	lvl, ruleID = rs.ClassifierLevel("toxicity")
	assert.Equal(Level{Points: 2}, lvl)
	assert.Equal("Toxicity", ruleID)

	lvl, ruleID = rs.ClassifierLevel("spooky")
	assert.Equal(Level{Points: 1}, lvl)
	assert.Equal("", ruleID)
}

func TestLoadFailures(t *testing.T) {
	fixtures := []struct {
		name   string
		format Format
		src    string
	}{
		{name: "not json", format: FormatJSON, src: `{"rules": [`},
		{name: "missing identifier", format: FormatJSON, src: `{"rules": [{"keywords": ["x"], "punishmentLevel": 1}]}`},
		{name: "missing level", format: FormatJSON, src: `{"rules": [{"name": "x", "keywords": ["x"]}]}`},
		{name: "zero level", format: FormatJSON, src: `{"rules": [{"name": "x", "punishmentLevel": 0}]}`},
		{name: "bad level string", format: FormatJSON, src: `{"rules": [{"name": "x", "punishmentLevel": "soon"}]}`},
		{name: "bad regex", format: FormatJSON, src: `{"rules": [{"name": "x", "regex": ["(unclosed"], "punishmentLevel": 1}]}`},
		{name: "duplicate id", format: FormatJSON, src: `{"rules": [{"name": "x", "punishmentLevel": 1}, {"id": "x", "name": "y", "punishmentLevel": 1}]}`},
		{name: "unknown field", format: FormatJSON, src: `{"rules": [{"name": "x", "punishmentLevel": 1, "severity": 3}]}`},
		{name: "bad escalation", format: FormatJSON, src: `{"rules": [], "escalation": [{"threshold": 2, "action": "timeout"}]}`},
		{name: "yaml bad level", format: FormatYAML, src: "rules:\n  - name: x\n    punishmentLevel: [1]\n"},
		{name: "yaml unknown field", format: FormatYAML, src: "rules:\n  - name: x\n    punishmentLevel: 1\n    colour: red\n"},
		{name: "unknown format", format: Format("toml"), src: ``},
	}

	for _, fix := range fixtures {
		t.Run(fix.name, func(t *testing.T) {
			rs, err := Load(strings.NewReader(fix.src), fix.format)
			assert.Nil(t, rs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			var ce *ConfigError
			assert.True(t, errors.As(err, &ce))
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	assert := assert.New(t)

	rs, err := Load(strings.NewReader(""), FormatYAML)
	assert.NoError(err)
	assert.Equal(0, rs.Len())
	assert.Empty(rs.FindMatches("anything"))

	_, err = LoadFile("testdata/does-not-exist.json")
	assert.ErrorIs(err, ErrConfig)

	assert.Equal(0, Empty().Len())
	assert.NotNil(Empty().Ladder())
}
