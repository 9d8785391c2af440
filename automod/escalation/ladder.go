package escalation

import (
	"fmt"
	"sort"
	"time"

	"github.com/modwarden/warden/automod/event"
)

// One rung of the escalation ladder: a scope whose total reaches Threshold receives Action.
type Step struct {
	Threshold int
	Action    Action
}

// Serialized form of a Step, as found in rules files.
type StepConfig struct {
	Threshold int    `json:"threshold" yaml:"threshold"`
	Action    string `json:"action" yaml:"action"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func (sc StepConfig) Step() (Step, error) {
	kind, err := ParseKind(sc.Action)
	if err != nil {
		return Step{}, err
	}
	s := Step{Threshold: sc.Threshold, Action: Action{Kind: kind}}
	if kind == KindTimeout {
		if sc.Duration == "" {
			return Step{}, fmt.Errorf("timeout step at threshold %d has no duration", sc.Threshold)
		}
		d, err := time.ParseDuration(sc.Duration)
		if err != nil {
			return Step{}, fmt.Errorf("timeout step at threshold %d: %w", sc.Threshold, err)
		}
		s.Action.Duration = d
	}
	return s, nil
}

// The static mapping from point thresholds to punishment actions.
//
// Steps are kept sorted by threshold. The last step is open-ended: any total at or above it yields its action.
type Ladder struct {
	steps []Step
}

// The default escalation ladder: 2 points → 1h timeout, 3 → 12h, 4 → 24h, 5 or more → ban.
var DefaultSteps = []Step{
	{Threshold: 2, Action: Timeout(time.Hour)},
	{Threshold: 3, Action: Timeout(12 * time.Hour)},
	{Threshold: 4, Action: Timeout(24 * time.Hour)},
	{Threshold: 5, Action: Ban()},
}

func DefaultLadder() *Ladder {
	l, err := NewLadder(DefaultSteps)
	if err != nil {
		panic(err)
	}
	return l
}

func NewLadder(steps []Step) (*Ladder, error) {
	out := make([]Step, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })

	for i, s := range out {
		if s.Threshold < 1 {
			return nil, fmt.Errorf("escalation threshold must be positive: %d", s.Threshold)
		}
		if i > 0 && out[i-1].Threshold == s.Threshold {
			return nil, fmt.Errorf("duplicate escalation threshold: %d", s.Threshold)
		}
		if s.Action.Kind == KindTimeout && s.Action.Duration <= 0 {
			return nil, fmt.Errorf("timeout at threshold %d needs a positive duration", s.Threshold)
		}
	}
	return &Ladder{steps: out}, nil
}

func (l *Ladder) Steps() []Step {
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// What caused the decision: the violation's reason, and whether the rule bypasses the ladder.
type Trigger struct {
	Reason  string
	Instant bool
}

func TriggerFor(v *event.Violation) Trigger {
	return Trigger{Reason: v.Reason(), Instant: v.Instant}
}

// Output of the escalation engine, for the caller to execute and audit. Decide never has side effects.
type Decision struct {
	Scope       event.Scope `json:"scope"`
	Action      Action      `json:"action"`
	Reason      string      `json:"reason"`
	TotalPoints int         `json:"total_points"`
}

// Maps the scope's new total to an action.
//
// Instant triggers always yield a ban. Otherwise the step whose threshold equals the total is selected; a total that skipped past steps (eg, a multi-point violation) lands on the highest step it equals or exceeds. Totals below the first step yield WarnOnly.
func (l *Ladder) Decide(t Trigger, scope event.Scope, total int) Decision {
	d := Decision{
		Scope:       scope,
		Action:      WarnOnly(),
		TotalPoints: total,
	}
	if t.Instant {
		d.Action = Ban()
		d.Reason = fmt.Sprintf("instant: %s", t.Reason)
		return d
	}
	for i := len(l.steps) - 1; i >= 0; i-- {
		if total >= l.steps[i].Threshold {
			d.Action = l.steps[i].Action
			break
		}
	}
	d.Reason = fmt.Sprintf("%s (%d points)", t.Reason, total)
	return d
}
