package classifier

import (
	"context"
	"log/slog"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Boundary between detection and a remote Classifier. Bounds each call with a timeout, and converts every failure into "no verdict".
type Adapter struct {
	Classifier Classifier
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewAdapter(c Classifier, timeout time.Duration) *Adapter {
	if timeout <= 0 || timeout > DefaultTimeout {
		timeout = DefaultTimeout
	}
	return &Adapter{
		Classifier: c,
		Timeout:    timeout,
		Logger:     slog.Default().With("system", "classifier"),
	}
}

// Returns the verdict for the input, or nil if there is no classifier, the input is empty, or the call failed or timed out. Never blocks past the adapter timeout.
func (a *Adapter) Verdict(ctx context.Context, in Input) *Verdict {
	if a == nil || a.Classifier == nil || in.Empty() {
		return nil
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   *Verdict
		err error
	}
	// run in a goroutine so a classifier which ignores ctx can't hold up detection
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.Logger.Error("classifier panic", "err", r)
				ch <- result{err: &ClassifierError{Op: "classify", Err: context.Canceled}}
			}
		}()
		v, err := a.Classifier.Classify(ctx, in)
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		classifierVerdicts.WithLabelValues("none").Inc()
		a.Logger.Warn("classifier timed out", "timeout", timeout)
		return nil
	case res := <-ch:
		if res.err != nil || res.v == nil {
			classifierVerdicts.WithLabelValues("none").Inc()
			a.Logger.Warn("classifier failed, proceeding without verdict", "err", res.err)
			return nil
		}
		if res.v.Safe {
			classifierVerdicts.WithLabelValues("safe").Inc()
		} else {
			classifierVerdicts.WithLabelValues("unsafe").Inc()
		}
		return res.v
	}
}
