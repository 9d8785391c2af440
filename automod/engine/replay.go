package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modwarden/warden/automod/event"
)

// A recorded sequence of events, optionally with the action expected after each one. Used to regression-test rules files.
type Fixture struct {
	Events []event.Event `json:"events"`
	// action strings (eg, "warn", "timeout(1h0m0s)", "ban"); "" for events which should not be flagged
	Expected []string `json:"expected,omitempty"`
}

func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	if len(fx.Expected) > 0 && len(fx.Expected) != len(fx.Events) {
		return nil, fmt.Errorf("fixture %s: %d events but %d expected actions", path, len(fx.Events), len(fx.Expected))
	}
	return &fx, nil
}

// Processes every event in order. Stops at the first engine error.
func (eng *Engine) Replay(ctx context.Context, fx *Fixture) ([]*Outcome, error) {
	out := make([]*Outcome, 0, len(fx.Events))
	for i := range fx.Events {
		o, err := eng.ProcessEvent(ctx, &fx.Events[i])
		if err != nil {
			return out, fmt.Errorf("fixture event %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func outcomeAction(o *Outcome) string {
	if o == nil || o.Decision == nil {
		return ""
	}
	return o.Decision.Action.String()
}

// Compares replay outcomes against the expected actions. A fixture with no expectations always passes.
func (fx *Fixture) Check(outcomes []*Outcome) error {
	if len(fx.Expected) == 0 {
		return nil
	}
	if len(outcomes) != len(fx.Expected) {
		return fmt.Errorf("got %d outcomes, expected %d", len(outcomes), len(fx.Expected))
	}
	for i, want := range fx.Expected {
		if got := outcomeAction(outcomes[i]); got != want {
			return fmt.Errorf("event %d (%s): got action %q, expected %q", i, fx.Events[i].MessageID, got, want)
		}
	}
	return nil
}
