package escalation

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindWarnOnly Kind = "warn"
	KindTimeout  Kind = "timeout"
	KindKick     Kind = "kick"
	KindBan      Kind = "ban"
)

// A punishment to be executed against a scope by a dispatcher. Duration is only meaningful for timeouts.
type Action struct {
	Kind     Kind          `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
}

func WarnOnly() Action {
	return Action{Kind: KindWarnOnly}
}

func Timeout(d time.Duration) Action {
	return Action{Kind: KindTimeout, Duration: d}
}

func Kick() Action {
	return Action{Kind: KindKick}
}

func Ban() Action {
	return Action{Kind: KindBan}
}

func (a Action) String() string {
	if a.Kind == KindTimeout {
		return fmt.Sprintf("timeout(%s)", a.Duration)
	}
	return string(a.Kind)
}

// Whether the action removes the user from the guild. These must never be dispatched unless the triggering violation was durably recorded.
func (a Action) Irreversible() bool {
	return a.Kind == KindKick || a.Kind == KindBan
}

// Whether the action is a platform-level sanction (anything other than a notice).
func (a Action) Sanction() bool {
	return a.Kind != KindWarnOnly && a.Kind != ""
}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWarnOnly, KindTimeout, KindKick, KindBan:
		return Kind(s), nil
	case "mute":
		return KindTimeout, nil
	default:
		return "", fmt.Errorf("unknown action kind: %q", s)
	}
}
