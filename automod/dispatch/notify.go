package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/util"

	"github.com/carlmjohnson/versioninfo"
)

// A user-visible message about a violation. Sent for every violation, whether or not a sanction was applied.
type Notice struct {
	Scope       event.Scope       `json:"scope"`
	ChannelID   string            `json:"channel_id,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Reason      string            `json:"reason"`
	TotalPoints int               `json:"total_points"`
	Action      escalation.Action `json:"action"`
	Text        string            `json:"text"`
}

type Notifier interface {
	Notify(ctx context.Context, n *Notice) error
}

// Renders the reply text for a notice. When the sanction failed, or the ledger could not be updated, the text says so rather than claiming a sanction.
func FormatNotice(userID, reason string, total int, action escalation.Action, sanctionErr error) string {
	var msg string
	switch action.Kind {
	case escalation.KindBan:
		msg = fmt.Sprintf("<@%s> has been banned for violating: %s.", userID, reason)
	case escalation.KindKick:
		msg = fmt.Sprintf("<@%s> has been kicked for violating: %s.", userID, reason)
	case escalation.KindTimeout:
		msg = fmt.Sprintf("<@%s> has been timed out for %s for violating: %s.", userID, humanDuration(action.Duration), reason)
	default:
		msg = fmt.Sprintf("<@%s>, you violated rule: %s.", userID, reason)
	}
	if total > 0 {
		msg += fmt.Sprintf(" Warning points: %d.", total)
	}
	if sanctionErr != nil && action.Sanction() {
		msg += " (moderators have been notified: the action could not be applied)"
	}
	return msg
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return d.String()
	}
}

// Writes notices to the log only.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{Logger: slog.Default().With("system", "notify")}
}

func (ln *LogNotifier) Notify(ctx context.Context, n *Notice) error {
	ln.Logger.Info("user notice", "scope", n.Scope.String(), "channel", n.ChannelID, "text", n.Text)
	noticeCount.WithLabelValues("ok").Inc()
	return nil
}

// POSTs notices, as JSON, to a reply webhook.
type WebhookNotifier struct {
	Client *http.Client
	URL    string
	Token  string
}

func NewWebhookNotifier(url, token string) *WebhookNotifier {
	return &WebhookNotifier{
		Client: util.RobustHTTPClient(),
		URL:    url,
		Token:  token,
	}
}

func (wn *WebhookNotifier) Notify(ctx context.Context, n *Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())
	if wn.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wn.Token)
	}
	resp, err := wn.Client.Do(req)
	if err != nil {
		noticeCount.WithLabelValues("error").Inc()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		noticeCount.WithLabelValues("error").Inc()
		return fmt.Errorf("notice webhook failed: status=%d", resp.StatusCode)
	}
	noticeCount.WithLabelValues("ok").Inc()
	return nil
}
