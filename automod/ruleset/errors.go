package ruleset

import (
	"errors"
	"fmt"
)

var ErrConfig = errors.New("invalid rules configuration")

// Returned when a rules source is malformed. Loading is all-or-nothing: any ConfigError means no RuleSet was produced.
type ConfigError struct {
	// Path of the source file, if known
	Source string
	// Index of the offending rule, or -1 if the error is not rule-specific
	Index int
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	loc := e.Source
	if loc == "" {
		loc = "rules"
	}
	if e.Index >= 0 {
		loc = fmt.Sprintf("%s: rule #%d", loc, e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
