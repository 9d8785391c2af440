package consumer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/event"

	"github.com/stretchr/testify/assert"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
}

func (rp *recordingProcessor) ProcessEvent(ctx context.Context, evt *event.Event) (*engine.Outcome, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.seen = append(rp.seen, evt.MessageID)
	if evt.Text == "explode" {
		return nil, errors.New("boom")
	}
	return &engine.Outcome{}, nil
}

func TestStreamConsumer(t *testing.T) {
	assert := assert.New(t)

	stream := strings.Join([]string{
		`{"message_id": "m1", "scope": {"guild_id": "g1", "user_id": "u1"}, "text": "hello"}`,
		``,
		`{not json`,
		`{"message_id": "m2", "scope": {"guild_id": "g1", "user_id": "u2"}, "text": "explode"}`,
		`{"message_id": "m3", "scope": {"guild_id": "g2", "user_id": "u1"}, "text": "bye", "attachments": [{"url": "https://cdn.example.com/a.png"}]}`,
	}, "\n")

	rp := &recordingProcessor{}
	sc := NewStreamConsumer(rp, 4)
	assert.NoError(sc.Run(context.Background(), strings.NewReader(stream)))

	assert.ElementsMatch([]string{"m1", "m2", "m3"}, rp.seen)
	assert.Equal(int64(5), sc.LastLine())
}

func TestStreamConsumerNilEngine(t *testing.T) {
	sc := &StreamConsumer{}
	assert.Error(t, sc.Run(context.Background(), strings.NewReader("")))
}

func TestStreamConsumerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := NewStreamConsumer(&recordingProcessor{}, 1)
	err := sc.Run(ctx, strings.NewReader(`{"message_id": "m1", "scope": {"guild_id": "g1", "user_id": "u1"}}`))
	assert.ErrorIs(t, err, context.Canceled)
}
