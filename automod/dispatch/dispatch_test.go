package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = event.Scope{GuildID: "g1", UserID: "u1"}

func testDecision(a escalation.Action) escalation.Decision {
	return escalation.Decision{Scope: testScope, Action: a, Reason: "Spam (3 points)", TotalPoints: 3}
}

func TestWebhookDispatcher(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var status atomic.Int32
	status.Store(http.StatusOK)
	var last ActionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	wd := NewWebhookDispatcher(srv.URL, "tok", 1000)

	rec, err := wd.Execute(ctx, testDecision(escalation.Timeout(12*time.Hour)))
	require.NoError(t, err)
	assert.True(rec.Success)
	assert.Equal(RecordAction, rec.Type)
	assert.NotEmpty(rec.ID)
	assert.Equal("timeout", last.Action)
	assert.Equal(float64(12*60*60), last.DurationSeconds)
	assert.Equal("u1", last.UserID)

	for code, kind := range map[int]ErrorKind{
		http.StatusForbidden:           ErrPermissionDenied,
		http.StatusNotFound:            ErrNotFound,
		http.StatusTooManyRequests:     ErrRateLimited,
		http.StatusInternalServerError: ErrFailed,
	} {
		status.Store(int32(code))
		rec, err := wd.Execute(ctx, testDecision(escalation.Ban()))
		assert.Error(err)
		assert.Equal(kind, KindOf(err), "status %d", code)
		var de *DispatchError
		if assert.True(errors.As(err, &de)) {
			assert.Equal(code, de.StatusCode)
		}
		// a failed attempt is still audited
		assert.False(rec.Success)
		assert.Equal(kind, rec.ErrorKind)
	}

	wd.Token = "wrong"
	_, err = wd.Execute(ctx, testDecision(escalation.Kick()))
	assert.Equal(ErrPermissionDenied, KindOf(err))
}

func TestLogDispatcher(t *testing.T) {
	rec, err := NewLogDispatcher().Execute(context.Background(), testDecision(escalation.Ban()))
	assert.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, escalation.Ban(), rec.Action)
}

func TestFormatNotice(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("<@u1>, you violated rule: Spam. Warning points: 1.",
		FormatNotice("u1", "Spam", 1, escalation.WarnOnly(), nil))
	assert.Equal("<@u1> has been timed out for 12 hours for violating: Spam. Warning points: 3.",
		FormatNotice("u1", "Spam", 3, escalation.Timeout(12*time.Hour), nil))
	assert.Equal("<@u1> has been timed out for 1 day for violating: Spam. Warning points: 4.",
		FormatNotice("u1", "Spam", 4, escalation.Timeout(24*time.Hour), nil))
	assert.Equal("<@u1> has been banned for violating: Scam.",
		FormatNotice("u1", "Scam", 0, escalation.Ban(), nil))

	msg := FormatNotice("u1", "Scam", 5, escalation.Ban(), errors.New("403"))
	assert.True(strings.Contains(msg, "could not be applied"))
	// a plain warning never mentions failure
	msg = FormatNotice("u1", "Spam", 1, escalation.WarnOnly(), errors.New("x"))
	assert.False(strings.Contains(msg, "could not be applied"))
}

func TestWebhookNotifier(t *testing.T) {
	assert := assert.New(t)

	var got Notice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "")
	n := &Notice{Scope: testScope, ChannelID: "c1", Reason: "Spam", TotalPoints: 1, Text: "hello"}
	assert.NoError(wn.Notify(context.Background(), n))
	assert.Equal("c1", got.ChannelID)
	assert.Equal("hello", got.Text)

	assert.NoError(NewLogNotifier().Notify(context.Background(), n))
}

type recordingSink struct {
	recs []*AuditRecord
	err  error
}

func (rs *recordingSink) Append(ctx context.Context, rec *AuditRecord) error {
	rs.recs = append(rs.recs, rec)
	return rs.err
}

func TestMultiSink(t *testing.T) {
	assert := assert.New(t)

	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b down")}
	c := &recordingSink{}
	ms := MultiSink{a, b, c, NewLogSink()}

	v := &event.Violation{Scope: testScope, RuleID: "Spam", SeverityPoints: 1, Channel: event.ChannelSpam}
	err := ms.Append(context.Background(), ViolationRecord(v, "m1"))
	assert.ErrorContains(err, "b down")
	assert.Equal(1, len(a.recs))
	assert.Equal(1, len(c.recs))
	assert.Equal("Spam", c.recs[0].Reason)
	assert.Equal("m1", c.recs[0].MessageID)
}

func TestSQLAuditSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	sink, err := NewSQLAuditSink(db)
	require.NoError(t, err)

	v := &event.Violation{Scope: testScope, RuleID: "Spam", SeverityPoints: 1, Channel: event.ChannelSpam}
	assert.NoError(sink.Append(ctx, ViolationRecord(v, "m1")))

	rec := NewAuditRecord(RecordAction, testScope)
	rec.Time = rec.Time.Add(time.Second)
	rec.Action = escalation.Timeout(time.Hour)
	rec.Fail(&DispatchError{Kind: ErrPermissionDenied, Scope: testScope, Action: rec.Action, StatusCode: 403})
	assert.NoError(sink.Append(ctx, rec))

	rows, err := sink.Recent(ctx, "g1", 10)
	assert.NoError(err)
	if assert.Equal(2, len(rows)) {
		assert.Equal("action", rows[0].Type)
		assert.Equal(int64(3600), rows[0].DurationSec)
		assert.False(rows[0].Success)
		assert.Equal(string(ErrPermissionDenied), rows[0].ErrorKind)
		assert.Equal("violation", rows[1].Type)
	}

	rows, err = sink.Recent(ctx, "other", 10)
	assert.NoError(err)
	assert.Empty(rows)
}

func TestSlackSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body SlackWebhookBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.Contains(body.Text, "Guild `g1`") {
			posts.Add(1)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ss := NewSlackSink(srv.URL, 2)

	// violations are not posted
	v := &event.Violation{Scope: testScope, RuleID: "Spam", SeverityPoints: 1}
	assert.NoError(ss.Append(ctx, ViolationRecord(v, "")))
	assert.Equal(int32(0), posts.Load())

	for i := 0; i < 4; i++ {
		rec := NewAuditRecord(RecordAction, testScope)
		rec.Action = escalation.Ban()
		rec.Success = true
		assert.NoError(ss.Append(ctx, rec))
	}
	// hourly budget of two
	assert.Equal(int32(2), posts.Load())
}
