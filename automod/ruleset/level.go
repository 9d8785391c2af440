package ruleset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// A rule's punishment level: either a number of severity points, or "instant" (bypass the escalation ladder).
type Level struct {
	Points  int
	Instant bool
}

const instantLevel = "instant"

func (l Level) String() string {
	if l.Instant {
		return instantLevel
	}
	return strconv.Itoa(l.Points)
}

func (l Level) valid() bool {
	return l.Instant || l.Points > 0
}

func parseLevel(s string) (Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == instantLevel {
		return Level{Instant: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Level{}, fmt.Errorf("punishment level must be an integer or %q, got %q", instantLevel, s)
	}
	return Level{Points: n}, nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	if l.Instant {
		return json.Marshal(instantLevel)
	}
	return json.Marshal(l.Points)
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*l = Level{Points: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("punishment level must be an integer or %q", instantLevel)
	}
	parsed, err := parseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: punishment level must be a scalar", node.Line)
	}
	parsed, err := parseLevel(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = parsed
	return nil
}
