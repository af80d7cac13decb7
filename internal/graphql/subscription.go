package graphql

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/metrics"
)

// graphql-transport-ws frame types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// Every connection carries exactly one subscription.
const subscriptionID = "1"

var (
	// tuning parameters
	writeWait    = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait     = 30 * time.Second    // time allowed to read the next frame from the peer
	pingInterval = (pongWait * 9) / 10 // send pings to peer with this period
	ackTimeout   = 10 * time.Second    // time allowed for dial plus connection_ack
)

type wsFrame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one occurrence on a live channel.
type Event struct {
	// Data is the payload of a delivered "next" frame; nil otherwise.
	Data json.RawMessage
	// Reconnected marks a channel re-established after a drop. Consumers
	// should refetch history: nothing delivered during the gap is replayed.
	Reconnected bool
	// Err reports a transport interruption. Unless the stream ends right
	// after, reconnection is already in progress.
	Err error
}

// Stream is a cancellable live channel. The events channel closes when
// the stream ends, either via Close or a terminal subscription error.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

// Events returns the channel of live events.
func (s *Stream) Events() <-chan Event { return s.events }

// Close tears the channel down. Safe to call more than once.
func (s *Stream) Close() { s.cancel() }

func (s *Stream) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Subscriber opens live channels speaking graphql-transport-ws.
type Subscriber struct {
	url    string
	token  TokenSource
	dialer *websocket.Dialer
	log    zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSubscriber creates a subscriber for the given websocket endpoint.
func NewSubscriber(url string, token TokenSource, log zerolog.Logger) *Subscriber {
	if token == nil {
		token = func() string { return "" }
	}
	return &Subscriber{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: ackTimeout,
			Subprotocols:     []string{"graphql-transport-ws"},
		},
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Subscribe starts a long-lived subscription for the given operation.
// The channel re-establishes itself after transport interruptions until
// Close is called or the server ends the subscription.
func (s *Subscriber) Subscribe(ctx context.Context, query string, variables map[string]any) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go s.run(ctx, st, query, variables)
	return st
}

func (s *Subscriber) run(ctx context.Context, st *Stream, query string, variables map[string]any) {
	defer close(st.events)

	backoff := s.minBackoff
	established := false

	for {
		conn, err := s.connect(ctx, query, variables)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("live channel connect failed")
			st.emit(ctx, Event{Err: Transient(err)})
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.maxBackoff)
			continue
		}

		if established {
			metrics.SubscriptionReconnects.Inc()
			st.emit(ctx, Event{Reconnected: true})
		}
		established = true
		backoff = s.minBackoff

		fatal, err := s.pump(ctx, conn, st)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if fatal {
			if err != nil {
				st.emit(ctx, Event{Err: err})
			}
			return
		}

		s.log.Warn().Err(err).Msg("live channel dropped")
		st.emit(ctx, Event{Err: Transient(err)})
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.maxBackoff)
	}
}

// connect dials, completes the connection_init handshake and registers
// the subscription.
func (s *Subscriber) connect(ctx context.Context, query string, variables map[string]any) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return nil, err
	}

	initPayload := map[string]any{}
	if tok := s.token(); tok != "" {
		initPayload["authorization"] = "Bearer " + tok
	}
	if err := writeFrame(conn, wsFrame{Type: msgConnectionInit, Payload: mustMarshal(initPayload)}); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(ackTimeout))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return nil, err
		}
		if f.Type == msgConnectionAck {
			break
		}
		// servers may ping before acking
		if f.Type == msgPing {
			_ = writeFrame(conn, wsFrame{Type: msgPong})
		}
	}

	sub := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables,omitempty"`
	}{Query: query, Variables: variables}
	if err := writeFrame(conn, wsFrame{ID: subscriptionID, Type: msgSubscribe, Payload: mustMarshal(sub)}); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// pump reads frames until the connection drops or the subscription ends.
// fatal means the stream must not reconnect.
func (s *Subscriber) pump(ctx context.Context, conn *websocket.Conn, st *Stream) (fatal bool, err error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go keepalive(conn, stop)

	// unblock ReadJSON when the stream is closed
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			return false, err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch f.Type {
		case msgNext:
			var payload struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(f.Payload, &payload); err != nil {
				s.log.Warn().Err(err).Msg("malformed next frame")
				continue
			}
			st.emit(ctx, Event{Data: payload.Data})
		case msgPing:
			_ = writeFrame(conn, wsFrame{Type: msgPong})
		case msgError:
			ferr := decodeStreamError(f.Payload)
			if IsTerminal(ferr) || IsValidation(ferr) {
				return true, ferr
			}
			return false, ferr
		case msgComplete:
			return true, nil
		}
	}
}

func keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f wsFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func decodeStreamError(payload json.RawMessage) error {
	var errs []gqlError
	if err := json.Unmarshal(payload, &errs); err != nil || len(errs) == 0 {
		return &Error{Kind: KindTransient, Message: "subscription error"}
	}
	return classify(errs[0].Message, errs[0].Extensions.Code)
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
