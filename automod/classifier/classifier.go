package classifier

import (
	"context"
	"errors"
	"fmt"
)

// Normalized output of a content classifier for a single event. Ephemeral; never persisted on its own.
type Verdict struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Safe  bool    `json:"safe"`
}

type Input struct {
	Text      string
	ImageURLs []string
}

func (in Input) Empty() bool {
	return in.Text == "" && len(in.ImageURLs) == 0
}

// A remote content scoring function. Implementations may fail or block; callers should go through Adapter, which bounds latency and swallows failures.
type Classifier interface {
	Classify(ctx context.Context, in Input) (*Verdict, error)
}

var ErrNoCredentials = errors.New("classifier credentials not configured")

// Network, timeout, or decoding failure from a classifier. Always recovered by the Adapter and treated as "no verdict".
type ClassifierError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ClassifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("classifier %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("classifier %s: %v", e.Op, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}
