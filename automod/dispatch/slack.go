package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modwarden/warden/util"

	"github.com/RussellLuo/slidingwindow"
)

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Posts action outcomes (not plain violations) to a slack channel via "incoming webhook". Messages beyond the hourly budget are dropped with a log line, so a raid can't flood the moderator channel.
type SlackSink struct {
	SlackWebhookURL string
	Client          *http.Client
	Logger          *slog.Logger

	limiter *slidingwindow.Limiter
}

var _ AuditSink = (*SlackSink)(nil)

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

func NewSlackSink(webhookURL string, perHour int64) *SlackSink {
	lim, _ := slidingwindow.NewLimiter(time.Hour, perHour, windowFunc)
	return &SlackSink{
		SlackWebhookURL: webhookURL,
		Client:          util.RobustHTTPClient(),
		Logger:          slog.Default().With("system", "audit"),
		limiter:         lim,
	}
}

func (s *SlackSink) Append(ctx context.Context, rec *AuditRecord) error {
	if rec.Type == RecordViolation {
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.Logger.Warn("slack audit budget exhausted, dropping message", "id", rec.ID)
		return nil
	}
	return s.sendSlackMsg(ctx, slackBody(rec))
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (s *SlackSink) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(rec *AuditRecord) string {
	var header string
	switch {
	case rec.Type == RecordLedger:
		header = "🛑 Warden Ledger Failure 🛑\n"
	case !rec.Success:
		header = "⚠️ Warden Action Failed ⚠️\n"
	default:
		header = "⚠️ Warden Action ⚠️\n"
	}
	msg := header
	msg += fmt.Sprintf("Guild `%s` / User `%s`\n", rec.Scope.GuildID, rec.Scope.UserID)
	if rec.Action.Kind != "" {
		msg += fmt.Sprintf("Action: `%s`\n", rec.Action)
	}
	if rec.Reason != "" {
		msg += fmt.Sprintf("Reason: %s\n", rec.Reason)
	}
	msg += fmt.Sprintf("Points: `%d`\n", rec.TotalPoints)
	if rec.Error != "" {
		msg += fmt.Sprintf("Error: `%s`\n", strings.TrimSpace(rec.Error))
	}
	return msg
}
