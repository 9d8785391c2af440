package event

import (
	"fmt"
	"time"
)

// The unit of accumulation for violations: a single user within a single guild (community).
type Scope struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.GuildID, s.UserID)
}

// An attachment on an inbound message. Only image attachments are inspected.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// Inbound user-generated message, as delivered by the event source.
//
// Events are immutable once handed to the engine. The engine never mutates fields of an Event; any state derived from processing is returned in an Outcome.
type Event struct {
	// Platform-specific message identifier (opaque)
	MessageID string `json:"message_id,omitempty"`
	// Platform-specific channel identifier (opaque); used by dispatchers when replying
	ChannelID string       `json:"channel_id,omitempty"`
	Scope     Scope        `json:"scope"`
	Text      string       `json:"text"`
	FromBot   bool         `json:"from_bot,omitempty"`
	Attach    []Attachment `json:"attachments,omitempty"`
	// Time the message was sent. If zero, the engine substitutes the processing time.
	Timestamp time.Time `json:"timestamp"`
}

// Which detection mechanism produced a violation.
type Source string

const (
	SourceRule       Source = "rule"
	SourceClassifier Source = "classifier"
	SourceHeuristic  Source = "heuristic"
)

// Which detector in the precedence chain fired. Finer-grained than Source: flood, spam and attachment are all heuristics.
type Channel string

const (
	ChannelFlood      Channel = "flood"
	ChannelSpam       Channel = "spam"
	ChannelRule       Channel = "rule"
	ChannelClassifier Channel = "classifier"
	ChannelAttachment Channel = "attachment"
)

// A single detected infraction. Immutable once created; appended to the ledger history.
type Violation struct {
	Scope Scope `json:"scope"`
	// Identifier of the rule which fired, if any
	RuleID string `json:"rule_id,omitempty"`
	// Label returned by the classifier, for classifier-sourced violations
	Label          string    `json:"label,omitempty"`
	SeverityPoints int       `json:"severity_points"`
	Instant        bool      `json:"instant,omitempty"`
	Source         Source    `json:"source"`
	Channel        Channel   `json:"channel"`
	Timestamp      time.Time `json:"timestamp"`
}

// Short human-readable reason for the violation, used in notices and audit records.
func (v *Violation) Reason() string {
	switch {
	case v.RuleID != "":
		return v.RuleID
	case v.Label != "":
		return v.Label
	default:
		return string(v.Channel)
	}
}
