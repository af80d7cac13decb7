package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/graphql"
)

// StreamEvent is one occurrence on a conversation's live channel.
// Exactly one field is set.
type StreamEvent struct {
	// Message is a newly created message pushed by the server. Delivery
	// is at-least-once; consumers must dedupe by id.
	Message *Message
	// Reconnected marks the channel re-established after a drop. Nothing
	// missed during the gap is replayed; consumers should refetch history.
	Reconnected bool
	// Err reports a transport interruption while reconnection runs, or a
	// terminal failure right before the stream ends.
	Err error
}

// MessageStream is the live message feed for one conversation.
type MessageStream struct {
	inner *graphql.Stream
	out   chan StreamEvent
	done  chan struct{}
	once  sync.Once
}

// SubscribeMessages opens the live channel for a conversation. The
// returned stream must be closed when the conversation view goes away.
func (c *Client) SubscribeMessages(ctx context.Context, conversationID string) *MessageStream {
	ms := &MessageStream{
		inner: c.subs.Subscribe(ctx, messageAddedDoc, map[string]any{"chatId": conversationID}),
		out:   make(chan StreamEvent, 16),
		done:  make(chan struct{}),
	}
	go ms.pump(c.log)
	return ms
}

// Events returns the channel of live events. It closes when the stream
// ends.
func (ms *MessageStream) Events() <-chan StreamEvent { return ms.out }

// Close detaches the live channel. Safe to call more than once.
func (ms *MessageStream) Close() {
	ms.once.Do(func() { close(ms.done) })
	ms.inner.Close()
}

func (ms *MessageStream) pump(log zerolog.Logger) {
	defer close(ms.out)
	for ev := range ms.inner.Events() {
		var out StreamEvent
		switch {
		case ev.Err != nil:
			out = StreamEvent{Err: ev.Err}
		case ev.Reconnected:
			out = StreamEvent{Reconnected: true}
		default:
			var data struct {
				MessageAdded Message `json:"messageAdded"`
			}
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				log.Warn().Err(err).Msg("malformed subscription payload")
				continue
			}
			msg := data.MessageAdded
			out = StreamEvent{Message: &msg}
		}

		select {
		case ms.out <- out:
		case <-ms.done:
			return
		}
	}
}
