package detector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modwarden/warden/automod/classifier"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ruleset"
	"github.com/modwarden/warden/automod/setstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `{
  "rules": [
    {"name": "Spam", "keywords": ["nitro"], "punishmentLevel": 1},
    {"name": "Bad Word", "keywords": ["darn"], "punishmentLevel": 2},
    {"name": "Scam Links", "regex": ["steamcommunity\\.ru"], "punishmentLevel": "instant"},
    {"name": "Flooding", "keywords": [], "phrases": ["wall of text"], "punishmentLevel": 3},
    {"name": "Toxicity", "keywords": ["idiot"], "punishmentLevel": 2}
  ],
  "classifierLabels": {"hate": "instant"}
}`

func testRuleSet(t *testing.T) *ruleset.RuleSet {
	rs, err := ruleset.Load(strings.NewReader(testRules), ruleset.FormatJSON)
	require.NoError(t, err)
	return rs
}

type stubClassifier struct {
	verdict *classifier.Verdict
	err     error
	calls   int
}

func (sc *stubClassifier) Classify(ctx context.Context, in classifier.Input) (*classifier.Verdict, error) {
	sc.calls++
	return sc.verdict, sc.err
}

func testChain(rs *ruleset.RuleSet, sets setstore.SetStore, c classifier.Classifier) *Chain {
	return NewChain(
		NewFloodDetector(rs),
		NewSpamDetector(rs, sets),
		&RuleDetector{Rules: rs},
		&ClassifierDetector{Adapter: classifier.NewAdapter(c, time.Second), Rules: rs},
		&AttachmentDetector{Sets: sets},
	)
}

func msg(text string, ts time.Time) *event.Event {
	return &event.Event{
		Scope:     event.Scope{GuildID: "g1", UserID: "u1"},
		Text:      text,
		Timestamp: ts,
	}
}

func TestPrecedenceSpamOverRule(t *testing.T) {
	assert := assert.New(t)
	rs := testRuleSet(t)
	chain := testChain(rs, nil, nil)

	now := time.Now()
	v := chain.Detect(context.Background(), msg("darn, free stuff here", now))
	if assert.NotNil(v) {
		assert.Equal(event.ChannelSpam, v.Channel)
		assert.Equal(event.SourceHeuristic, v.Source)
		// severity taken from the rule named "Spam"
		assert.Equal("Spam", v.RuleID)
		assert.Equal(1, v.SeverityPoints)
	}

	v = chain.Detect(context.Background(), msg("well darn", now.Add(time.Minute)))
	if assert.NotNil(v) {
		assert.Equal(event.ChannelRule, v.Channel)
		assert.Equal(event.SourceRule, v.Source)
		assert.Equal("Bad Word", v.RuleID)
		assert.Equal(2, v.SeverityPoints)
	}

	assert.Nil(chain.Detect(context.Background(), msg("hello there", now.Add(2*time.Minute))))
}

func TestRuleDeterminism(t *testing.T) {
	assert := assert.New(t)
	rs := testRuleSet(t)
	rd := &RuleDetector{Rules: rs}

	now := time.Now()
	first := rd.Detect(context.Background(), msg("you idiot, darn it", now), now)
	for i := 0; i < 20; i++ {
		v := rd.Detect(context.Background(), msg("you idiot, darn it", now), now)
		assert.Equal(first.RuleID, v.RuleID)
		assert.Equal(first.SeverityPoints, v.SeverityPoints)
	}
	// configuration order, not position in text
	assert.Equal("Bad Word", first.RuleID)

	v := rd.Detect(context.Background(), msg("visit steamcommunity.ru/gift", now), now)
	assert.True(v.Instant)
	assert.Equal(0, v.SeverityPoints)
}

func TestFloodWindow(t *testing.T) {
	assert := assert.New(t)
	rs := testRuleSet(t)
	fd := NewFloodDetector(rs)
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ts := start.Add(time.Duration(i) * 2 * time.Second)
		assert.Nil(fd.Detect(ctx, msg("hi", ts), ts))
	}
	ts := start.Add(8 * time.Second)
	v := fd.Detect(ctx, msg("hi", ts), ts)
	if assert.NotNil(v) {
		assert.Equal(event.ChannelFlood, v.Channel)
		assert.Equal("Flooding", v.RuleID)
		assert.Equal(3, v.SeverityPoints)
	}

	// other scopes are independent
	other := msg("hi", ts)
	other.Scope.UserID = "u2"
	assert.Nil(fd.Detect(ctx, other, ts))

	// well after the window, a fresh message does not fire
	ts = start.Add(time.Minute)
	assert.Nil(fd.Detect(ctx, msg("hi", ts), ts))
}

func TestFloodExactlyOncePerFiveSpread(t *testing.T) {
	assert := assert.New(t)
	fd := NewFloodDetector(ruleset.Empty())
	ctx := context.Background()

	// messages 3 seconds apart never fill a 10 second window
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hits := 0
	for i := 0; i < 20; i++ {
		ts := start.Add(time.Duration(i) * 3 * time.Second)
		if fd.Detect(ctx, msg("hi", ts), ts) != nil {
			hits++
		}
	}
	assert.Equal(0, hits)

	// five in a burst fire exactly once
	fd = NewFloodDetector(ruleset.Empty())
	for i := 0; i < 5; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		if v := fd.Detect(ctx, msg("hi", ts), ts); v != nil {
			hits++
			assert.Equal(4, i)
			assert.Equal(1, v.SeverityPoints)
			assert.Empty(v.RuleID)
		}
	}
	assert.Equal(1, hits)
}

func TestFloodSweep(t *testing.T) {
	assert := assert.New(t)
	fd := NewFloodDetector(ruleset.Empty())
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fd.Detect(ctx, msg("hi", start), start)
	other := msg("hi", start.Add(9*time.Second))
	other.Scope.UserID = "u2"
	fd.Detect(ctx, other, other.Timestamp)
	assert.Equal(2, fd.Size())

	assert.Equal(1, fd.Sweep(start.Add(15*time.Second)))
	assert.Equal(1, fd.Size())
	assert.Equal(1, fd.Sweep(start.Add(time.Hour)))
	assert.Equal(0, fd.Size())
}

func TestClassifierChannel(t *testing.T) {
	assert := assert.New(t)
	rs := testRuleSet(t)
	ctx := context.Background()
	now := time.Now()

	sc := &stubClassifier{verdict: &classifier.Verdict{Label: "hate", Score: 0.99}}
	chain := testChain(rs, nil, sc)

	v := chain.Detect(ctx, msg("some hateful text", now))
	if assert.NotNil(v) {
		assert.Equal(event.ChannelClassifier, v.Channel)
		assert.Equal(event.SourceClassifier, v.Source)
		assert.Equal("hate", v.Label)
		assert.True(v.Instant)
	}

	// a local rule wins over the classifier, and the classifier isn't called
	sc.calls = 0
	v = chain.Detect(ctx, msg("darn", now.Add(time.Minute)))
	assert.Equal(event.ChannelRule, v.Channel)
	assert.Equal(0, sc.calls)

	// unmapped label falls back to a rule with that name
	sc.verdict = &classifier.Verdict{Label: "toxicity", Score: 0.95}
	v = chain.Detect(ctx, msg("mean words", now.Add(2*time.Minute)))
	assert.Equal("Toxicity", v.RuleID)
	assert.Equal(2, v.SeverityPoints)

	// unknown label is a single point
	sc.verdict = &classifier.Verdict{Label: "weird", Score: 0.95}
	v = chain.Detect(ctx, msg("odd words", now.Add(3*time.Minute)))
	assert.Equal(1, v.SeverityPoints)
	assert.Empty(v.RuleID)

	// safe verdicts never fire
	sc.verdict = &classifier.Verdict{Label: "neutral", Score: 0.99, Safe: true}
	assert.Nil(chain.Detect(ctx, msg("nice words", now.Add(4*time.Minute))))
}

func TestClassifierFailureNotFatal(t *testing.T) {
	assert := assert.New(t)
	rs := testRuleSet(t)
	ctx := context.Background()
	now := time.Now()

	sets := setstore.NewMemSetStore()
	sc := &stubClassifier{err: errors.New("connection refused")}
	chain := testChain(rs, sets, sc)

	assert.Nil(chain.Detect(ctx, msg("nice words", now)))

	evt := msg("look at this", now.Add(time.Minute))
	evt.Attach = []event.Attachment{{URL: "https://evil.example/cat.png"}}
	v := chain.Detect(ctx, evt)
	if assert.NotNil(v) {
		assert.Equal(event.ChannelAttachment, v.Channel)
		assert.Equal(1, v.SeverityPoints)
	}
}

func TestAttachmentAllowList(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	now := time.Now()

	sets := setstore.NewMemSetStore()
	sets.Add(setstore.SetAttachmentAllow, "cdn.example.com", "https://img.other.net/Approved.png")
	ad := &AttachmentDetector{Sets: sets}

	cases := []struct {
		att  event.Attachment
		fire bool
	}{
		{event.Attachment{URL: "https://cdn.example.com/a.png"}, false},
		{event.Attachment{URL: "https://CDN.example.com/a.png"}, false},
		{event.Attachment{URL: "https://img.other.net/Approved.png"}, false},
		{event.Attachment{URL: "https://img.other.net/other.png"}, true},
		{event.Attachment{URL: "https://www.cdn.example.com/b.gif"}, false},
		{event.Attachment{URL: "https://img.other.net/Approved.png?ex=66a1&hm=beef#x"}, false},
		{event.Attachment{URL: "https://files.example.org/doc.pdf"}, false},
		{event.Attachment{URL: "https://files.example.org/blob", ContentType: "image/webp"}, true},
		{event.Attachment{URL: "https://files.example.org/x.png", ContentType: "application/pdf"}, false},
	}
	for _, c := range cases {
		evt := msg("", now)
		evt.Attach = []event.Attachment{c.att}
		v := ad.Detect(ctx, evt, now)
		assert.Equal(c.fire, v != nil, c.att.URL)
	}
}

func TestSpamKeywordSet(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sets := setstore.NewMemSetStore()
	sets.Add(setstore.SetSpamKeywords, "Crypto Giveaway")
	sd := NewSpamDetector(ruleset.Empty(), sets)

	assert.Equal("free", sd.Match(ctx, "FREE stuff"))
	assert.Equal("discord.gg", sd.Match(ctx, "join discord.gg/abc"))
	assert.Equal("crypto giveaway", sd.Match(ctx, "huge crypto giveaway today"))
	assert.Equal("", sd.Match(ctx, "hello world"))
}

func TestDefaultChainSweep(t *testing.T) {
	assert := assert.New(t)
	chain := DefaultChain(ruleset.Empty(), nil, nil)
	assert.Equal(5, len(chain.Detectors))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Nil(chain.Detect(context.Background(), msg("hello", start)))
	assert.Equal(1, chain.Sweep(start.Add(time.Minute)))
}
