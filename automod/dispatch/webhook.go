package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// JSON body POSTed to the action webhook. A bridge process on the other end applies it to the chat platform.
type ActionRequest struct {
	GuildID         string  `json:"guild_id"`
	UserID          string  `json:"user_id"`
	Action          string  `json:"action"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Reason          string  `json:"reason"`
}

// Dispatches actions to an HTTP bridge. The outbound rate is limited locally; a 429 from the bridge is reported as a rate-limited DispatchError, not retried.
type WebhookDispatcher struct {
	Client  *http.Client
	URL     string
	Token   string
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ Dispatcher = (*WebhookDispatcher)(nil)

func NewWebhookDispatcher(url, token string, perSecond float64) *WebhookDispatcher {
	return &WebhookDispatcher{
		Client:  util.RetryingHTTPClient(0, 10*time.Second),
		URL:     url,
		Token:   token,
		Limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		Logger:  slog.Default().With("system", "dispatch"),
	}
}

func (wd *WebhookDispatcher) Execute(ctx context.Context, d escalation.Decision) (*AuditRecord, error) {
	rec := actionRecord(d)
	err := wd.execute(ctx, d)
	if err != nil {
		dispatchCount.WithLabelValues(string(d.Action.Kind), string(KindOf(err))).Inc()
		wd.Logger.Warn("moderation action failed", "scope", d.Scope.String(), "action", d.Action.String(), "err", err)
		return rec.Fail(err), err
	}
	dispatchCount.WithLabelValues(string(d.Action.Kind), "ok").Inc()
	rec.Success = true
	return rec, nil
}

func (wd *WebhookDispatcher) execute(ctx context.Context, d escalation.Decision) error {
	fail := func(kind ErrorKind, status int, err error) error {
		return &DispatchError{Kind: kind, Scope: d.Scope, Action: d.Action, StatusCode: status, Err: err}
	}

	if wd.Limiter != nil {
		if err := wd.Limiter.Wait(ctx); err != nil {
			return fail(ErrRateLimited, 0, err)
		}
	}

	body, err := json.Marshal(ActionRequest{
		GuildID:         d.Scope.GuildID,
		UserID:          d.Scope.UserID,
		Action:          string(d.Action.Kind),
		DurationSeconds: d.Action.Duration.Seconds(),
		Reason:          d.Reason,
	})
	if err != nil {
		return fail(ErrFailed, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wd.URL, bytes.NewReader(body))
	if err != nil {
		return fail(ErrFailed, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())
	if wd.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wd.Token)
	}

	resp, err := wd.Client.Do(req)
	if err != nil {
		return fail(ErrFailed, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fail(kindFromStatus(resp.StatusCode), resp.StatusCode, fmt.Errorf("%s", bytes.TrimSpace(msg)))
}
