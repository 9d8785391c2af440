package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/event"

	"golang.org/x/sync/errgroup"
)

// Anything which can take an event through moderation. Satisfied by *engine.Engine.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, evt *event.Event) (*engine.Outcome, error)
}

// Reads newline-delimited JSON events (as produced by a chat gateway bridge) and hands them to the engine.
type StreamConsumer struct {
	Parallelism int
	Logger      *slog.Logger
	Engine      EventProcessor
	// max size of a single line; defaults to 1 MiB
	MaxLineBytes int

	// lastLine is the most recent line number read and handed off for processing. Best-effort: handling is concurrent, so events may complete out of order. Use atomics.
	lastLine int64
}

func NewStreamConsumer(eng EventProcessor, parallelism int) *StreamConsumer {
	return &StreamConsumer{
		Parallelism: parallelism,
		Logger:      slog.Default().With("system", "consumer"),
		Engine:      eng,
	}
}

func (sc *StreamConsumer) LastLine() int64 {
	return atomic.LoadInt64(&sc.lastLine)
}

// Consumes the stream until EOF or context cancellation. Malformed lines and per-event failures are logged and skipped; only read errors end the run early.
func (sc *StreamConsumer) Run(ctx context.Context, r io.Reader) error {
	if sc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	parallelism := sc.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	maxLine := sc.MaxLineBytes
	if maxLine <= 0 {
		maxLine = 1024 * 1024
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var lineno int64
	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		lineno++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		eventsReceived.Inc()

		var evt event.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			sc.Logger.Warn("skipping malformed event line", "line", lineno, "err", err)
			eventsFailed.WithLabelValues("parse").Inc()
			continue
		}
		atomic.StoreInt64(&sc.lastLine, lineno)

		n := lineno
		g.Go(func() error {
			sc.handle(gctx, n, &evt)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return ctx.Err()
}

func (sc *StreamConsumer) handle(ctx context.Context, lineno int64, evt *event.Event) {
	logger := sc.Logger.With("line", lineno, "guild", evt.Scope.GuildID, "user", evt.Scope.UserID)
	logger.Debug("processing event")
	out, err := sc.Engine.ProcessEvent(ctx, evt)
	if err != nil {
		logger.Error("engine failed to process event", "err", err)
		eventsFailed.WithLabelValues("engine").Inc()
		return
	}
	if out != nil && out.Violation != nil {
		eventsFlagged.Inc()
	}
}
