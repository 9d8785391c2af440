package escalation

import (
	"testing"
	"time"

	"github.com/modwarden/warden/automod/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = event.Scope{GuildID: "g1", UserID: "u1"}

func TestDefaultLadderDecide(t *testing.T) {
	assert := assert.New(t)
	l := DefaultLadder()
	trig := Trigger{Reason: "Spam"}

	fixtures := []struct {
		total  int
		action Action
	}{
		{total: 0, action: WarnOnly()},
		{total: 1, action: WarnOnly()},
		{total: 2, action: Timeout(time.Hour)},
		{total: 3, action: Timeout(12 * time.Hour)},
		{total: 4, action: Timeout(24 * time.Hour)},
		{total: 5, action: Ban()},
		{total: 6, action: Ban()},
		{total: 100, action: Ban()},
	}
	for _, fix := range fixtures {
		d := l.Decide(trig, testScope, fix.total)
		assert.Equal(fix.action, d.Action, "total=%d", fix.total)
		assert.Equal(fix.total, d.TotalPoints)
		assert.Equal(testScope, d.Scope)
	}
}

func TestInstantAlwaysBans(t *testing.T) {
	assert := assert.New(t)
	l := DefaultLadder()

	for _, total := range []int{0, 1, 2, 3, 7} {
		d := l.Decide(Trigger{Reason: "Scam", Instant: true}, testScope, total)
		assert.Equal(Ban(), d.Action)
		assert.Contains(d.Reason, "Scam")
	}
}

func TestLadderWithGaps(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l, err := NewLadder([]Step{
		{Threshold: 10, Action: Ban()},
		{Threshold: 3, Action: Timeout(time.Hour)},
		{Threshold: 6, Action: Kick()},
	})
	require.NoError(err)

	assert.Equal(3, l.Steps()[0].Threshold)
	assert.Equal(WarnOnly(), l.Decide(Trigger{}, testScope, 2).Action)
	assert.Equal(Timeout(time.Hour), l.Decide(Trigger{}, testScope, 5).Action)
	assert.Equal(Kick(), l.Decide(Trigger{}, testScope, 6).Action)
	assert.Equal(Kick(), l.Decide(Trigger{}, testScope, 9).Action)
	assert.Equal(Ban(), l.Decide(Trigger{}, testScope, 12).Action)
}

func TestNewLadderValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewLadder([]Step{{Threshold: 0, Action: Ban()}})
	assert.Error(err)
	_, err = NewLadder([]Step{{Threshold: 2, Action: Ban()}, {Threshold: 2, Action: Kick()}})
	assert.Error(err)
	_, err = NewLadder([]Step{{Threshold: 2, Action: Action{Kind: KindTimeout}}})
	assert.Error(err)

	l, err := NewLadder(nil)
	assert.NoError(err)
	assert.Equal(WarnOnly(), l.Decide(Trigger{}, testScope, 50).Action)
}

func TestStepConfig(t *testing.T) {
	assert := assert.New(t)

	s, err := StepConfig{Threshold: 2, Action: "timeout", Duration: "90m"}.Step()
	assert.NoError(err)
	assert.Equal(Timeout(90*time.Minute), s.Action)

	s, err = StepConfig{Threshold: 2, Action: "mute", Duration: "1h"}.Step()
	assert.NoError(err)
	assert.Equal(KindTimeout, s.Action.Kind)

	_, err = StepConfig{Threshold: 2, Action: "timeout"}.Step()
	assert.Error(err)
	_, err = StepConfig{Threshold: 2, Action: "explode"}.Step()
	assert.Error(err)

	s, err = StepConfig{Threshold: 5, Action: "ban"}.Step()
	assert.NoError(err)
	assert.True(s.Action.Irreversible())
}
