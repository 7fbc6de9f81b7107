package _switch

import (
	"testing"

	"github.com/adwski/signaling-relay/backend/model"
	"github.com/rs/zerolog"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func pending(w model.Wire) int {
	return len(w.TX)
}

func TestSend(t *testing.T) {
	sw := newTestSwitch()
	a, b := model.NewWire(4), model.NewWire(4)
	sw.Connect("a", a)
	sw.Connect("b", b)

	if !sw.Send("b", model.Outbound{Type: model.EventOffer}) {
		t.Fatal("expected send to succeed")
	}
	if pending(a) != 0 || pending(b) != 1 {
		t.Fatalf("unexpected delivery a=%d b=%d", pending(a), pending(b))
	}
	if got := <-b.TX; got.Type != model.EventOffer {
		t.Fatalf("unexpected frame %v", got)
	}

	if sw.Send("missing", model.Outbound{Type: model.EventOffer}) {
		t.Fatal("send to unknown endpoint must report false")
	}
}

func TestSendDropsWhenQueueIsFull(t *testing.T) {
	sw := newTestSwitch()
	a := model.NewWire(1)
	sw.Connect("a", a)

	if !sw.Send("a", model.Outbound{Type: model.EventUserJoined}) {
		t.Fatal("first send should be queued")
	}
	if sw.Send("a", model.Outbound{Type: model.EventUserLeft}) {
		t.Fatal("second send should be dropped")
	}
	if pending(a) != 1 {
		t.Fatalf("expected 1 pending frame, got %d", pending(a))
	}
}

func TestGroups(t *testing.T) {
	sw := newTestSwitch()
	a, b, c := model.NewWire(4), model.NewWire(4), model.NewWire(4)
	sw.Connect("a", a)
	sw.Connect("b", b)
	sw.Connect("c", c)

	sw.JoinGroup("g1", "a")
	sw.JoinGroup("g1", "b")
	sw.JoinGroup("g2", "c")
	sw.JoinGroup("g1", "unknown")

	if n := sw.SendGroup("g1", model.Outbound{Type: model.EventNewMessage}); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if pending(a) != 1 || pending(b) != 1 || pending(c) != 0 {
		t.Fatalf("unexpected delivery a=%d b=%d c=%d", pending(a), pending(b), pending(c))
	}

	sw.LeaveGroup("g1", "a")
	sw.LeaveGroup("g1", "a")
	sw.LeaveGroup("nope", "a")
	if n := sw.SendGroup("g1", model.Outbound{Type: model.EventNewMessage}); n != 1 {
		t.Fatalf("expected 1 delivery after leave, got %d", n)
	}
	if pending(a) != 1 || pending(b) != 2 {
		t.Fatalf("unexpected delivery a=%d b=%d", pending(a), pending(b))
	}

	sw.Disconnect("b")
	if n := sw.SendGroup("g1", model.Outbound{Type: model.EventNewMessage}); n != 0 {
		t.Fatalf("expected no deliveries after disconnect, got %d", n)
	}
	if sw.Endpoints() != 2 {
		t.Fatalf("expected 2 endpoints, got %d", sw.Endpoints())
	}

	// reconnecting with the same id does not restore memberships
	sw.Connect("b", b)
	if n := sw.SendGroup("g1", model.Outbound{Type: model.EventNewMessage}); n != 0 {
		t.Fatalf("expected no deliveries after reconnect, got %d", n)
	}
}
