package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// subConn is one handshaked subscription connection on the test server.
type subConn struct {
	conn        *websocket.Conn
	initPayload json.RawMessage
	subscribe   wsFrame
}

func (c *subConn) sendNext(t *testing.T, data string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]json.RawMessage{"data": json.RawMessage(data)})
	if err := c.conn.WriteJSON(wsFrame{ID: subscriptionID, Type: msgNext, Payload: payload}); err != nil {
		t.Fatal(err)
	}
}

func (c *subConn) sendError(t *testing.T, message, code string) {
	t.Helper()
	payload, _ := json.Marshal([]map[string]any{
		{"message": message, "extensions": map[string]string{"code": code}},
	})
	if err := c.conn.WriteJSON(wsFrame{ID: subscriptionID, Type: msgError, Payload: payload}); err != nil {
		t.Fatal(err)
	}
}

func (c *subConn) sendComplete(t *testing.T) {
	t.Helper()
	if err := c.conn.WriteJSON(wsFrame{ID: subscriptionID, Type: msgComplete}); err != nil {
		t.Fatal(err)
	}
}

func (c *subConn) drop() { c.conn.Close() }

// newSubServer runs a graphql-transport-ws server that completes the
// handshake for every connection and hands it to the test.
func newSubServer(t *testing.T) (*Subscriber, chan *subConn) {
	t.Helper()
	conns := make(chan *subConn, 4)
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-transport-ws"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var init wsFrame
		if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
			conn.Close()
			return
		}
		if err := conn.WriteJSON(wsFrame{Type: msgConnectionAck}); err != nil {
			conn.Close()
			return
		}
		var sub wsFrame
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != msgSubscribe {
			conn.Close()
			return
		}
		conns <- &subConn{conn: conn, initPayload: init.Payload, subscribe: sub}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewSubscriber(url, func() string { return "tok-1" }, zerolog.Nop())
	s.minBackoff = 10 * time.Millisecond
	s.maxBackoff = 50 * time.Millisecond
	return s, conns
}

func acceptConn(t *testing.T, conns chan *subConn) *subConn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for subscription connection")
		return nil
	}
}

func nextEvent(t *testing.T, st *Stream) Event {
	t.Helper()
	select {
	case ev, ok := <-st.Events():
		if !ok {
			t.Fatal("stream ended unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectClosed(t *testing.T, st *Stream) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-st.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestSubscribeHandshake(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", map[string]any{"chatId": "c1"})
	defer st.Close()

	conn := acceptConn(t, conns)

	var init map[string]string
	if err := json.Unmarshal(conn.initPayload, &init); err != nil {
		t.Fatal(err)
	}
	if init["authorization"] != "Bearer tok-1" {
		t.Fatalf("expected bearer credential in init payload, got %q", init["authorization"])
	}

	var sub struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(conn.subscribe.Payload, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Query != "subscription { messageAdded }" {
		t.Fatalf("unexpected query: %q", sub.Query)
	}
	if sub.Variables["chatId"] != "c1" {
		t.Fatalf("unexpected variables: %v", sub.Variables)
	}
}

func TestSubscribeDeliversEvents(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", nil)
	defer st.Close()

	conn := acceptConn(t, conns)
	conn.sendNext(t, `{"messageAdded":{"_id":"m1"}}`)

	ev := nextEvent(t, st)
	if ev.Err != nil || ev.Reconnected {
		t.Fatalf("expected data event, got %+v", ev)
	}
	var data struct {
		MessageAdded struct {
			ID string `json:"_id"`
		} `json:"messageAdded"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.MessageAdded.ID != "m1" {
		t.Fatalf("expected m1, got %q", data.MessageAdded.ID)
	}
}

func TestSubscribeReconnectsAfterDrop(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", nil)
	defer st.Close()

	conn1 := acceptConn(t, conns)
	conn1.sendNext(t, `{"messageAdded":{"_id":"m1"}}`)
	if ev := nextEvent(t, st); ev.Data == nil {
		t.Fatalf("expected data event, got %+v", ev)
	}

	conn1.drop()

	// the drop surfaces, then the channel comes back
	sawErr, sawReconnect := false, false
	for !sawReconnect {
		ev := nextEvent(t, st)
		switch {
		case ev.Err != nil:
			sawErr = true
		case ev.Reconnected:
			sawReconnect = true
		}
	}
	if !sawErr {
		t.Fatal("expected a transport error before reconnection")
	}

	conn2 := acceptConn(t, conns)
	conn2.sendNext(t, `{"messageAdded":{"_id":"m2"}}`)
	if ev := nextEvent(t, st); ev.Data == nil {
		t.Fatalf("expected data event after reconnect, got %+v", ev)
	}
}

func TestSubscribeCompleteEndsStream(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", nil)
	defer st.Close()

	conn := acceptConn(t, conns)
	conn.sendComplete(t)
	expectClosed(t, st)
}

func TestSubscribeTerminalErrorEndsStream(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", nil)
	defer st.Close()

	conn := acceptConn(t, conns)
	conn.sendError(t, "conversation not visible", "FORBIDDEN")

	var last error
	for ev := range st.Events() {
		if ev.Err != nil {
			last = ev.Err
		}
	}
	if !IsTerminal(last) {
		t.Fatalf("expected terminal error before close, got %v", last)
	}
}

func TestCloseTearsDownStream(t *testing.T) {
	s, conns := newSubServer(t)
	st := s.Subscribe(context.Background(), "subscription { messageAdded }", nil)
	acceptConn(t, conns)

	st.Close()
	expectClosed(t, st)

	// closing twice is fine
	st.Close()
}
