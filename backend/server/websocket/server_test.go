package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/signaling-relay/backend/model"
	"github.com/adwski/signaling-relay/backend/service"
	store "github.com/adwski/signaling-relay/backend/storage/memory"
	sw "github.com/adwski/signaling-relay/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type frame struct {
	Type    model.EventType `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func newTestServer(t *testing.T) (*httptest.Server, *service.Relay) {
	t.Helper()
	logger := zerolog.Nop()
	relay := service.NewRelay(service.Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:           &logger,
		SignalingService: relay,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, relay
}

func dial(t *testing.T, ts *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(typ model.EventType, payload any) {
	c.t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal failed: %v", err)
	}
	if err = c.conn.WriteJSON(model.Inbound{Type: typ, Payload: b}); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

func (c *client) expect(typ model.EventType, v any) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("read failed while waiting for %s: %v", typ, err)
	}
	if f.Type != typ {
		c.t.Fatalf("expected %s, got %s: %s", typ, f.Type, f.Payload)
	}
	if v != nil {
		if err := json.Unmarshal(f.Payload, v); err != nil {
			c.t.Fatalf("cannot decode %s payload: %v", typ, err)
		}
	}
}

func TestSignalingOverWebsocket(t *testing.T) {
	ts, relay := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	var existing []model.Participant
	a.send(model.EventJoinRoom, model.JoinRoom{RoomID: "R1", UserID: "u1", UserName: "Alice"})
	a.expect(model.EventExistingUsers, &existing)
	if len(existing) != 0 {
		t.Fatalf("expected empty room, got %v", existing)
	}

	b.send(model.EventJoinRoom, model.JoinRoom{RoomID: "R1", UserID: "u2", UserName: "Bob"})
	b.expect(model.EventExistingUsers, &existing)
	if len(existing) != 1 || existing[0].UserID != "u1" || existing[0].UserName != "Alice" {
		t.Fatalf("unexpected snapshot %v", existing)
	}
	aliceID := existing[0].ConnID

	var joined model.Participant
	a.expect(model.EventUserJoined, &joined)
	if joined.UserID != "u2" || joined.UserName != "Bob" || joined.ConnID == "" || joined.ConnID == aliceID {
		t.Fatalf("unexpected user-joined %+v", joined)
	}
	bobID := joined.ConnID

	b.send(model.EventOffer, map[string]any{
		"target": aliceID,
		"offer":  map[string]string{"type": "offer", "sdp": "v=0"},
	})
	var relayed struct {
		Offer  map[string]string `json:"offer"`
		Sender string            `json:"sender"`
	}
	a.expect(model.EventOffer, &relayed)
	if relayed.Sender != bobID || relayed.Offer["sdp"] != "v=0" {
		t.Fatalf("unexpected relayed offer %+v", relayed)
	}

	a.send(model.EventChatMessage, map[string]any{"roomId": "R1", "message": "hello"})
	var chat struct {
		Message   string    `json:"message"`
		UserName  string    `json:"userName"`
		UserID    string    `json:"userId"`
		Timestamp time.Time `json:"timestamp"`
	}
	a.expect(model.EventChatMessage, &chat)
	if chat.Message != "hello" || chat.UserName != "Alice" || chat.Timestamp.IsZero() {
		t.Fatalf("unexpected chat %+v", chat)
	}
	b.expect(model.EventChatMessage, &chat)

	_ = b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	var left model.PeerLeft
	a.expect(model.EventUserLeft, &left)
	if left.ConnID != bobID {
		t.Fatalf("unexpected user-left %+v", left)
	}
	if stats := relay.Stats(); stats.Rooms != 1 || stats.Participants != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	ts, _ := newTestServer(t)
	a := dial(t, ts)

	if err := a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	a.send(model.EventJoinRoom, model.JoinRoom{RoomID: "R1"})
	a.expect(model.EventExistingUsers, nil)
}
