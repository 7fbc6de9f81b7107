package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recorder struct {
	conversations []string
	messages      []string
}

func (r *recorder) NotifyNewMessage(_ context.Context, conversationID string, message json.RawMessage) int {
	r.conversations = append(r.conversations, conversationID)
	r.messages = append(r.messages, string(message))
	return 1
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Event
		wantErr error
	}{
		{
			name: "ok",
			data: `{"conversationId":"c1","message":{"text":"hi"}}`,
			want: Event{ConversationID: "c1", Message: json.RawMessage(`{"text":"hi"}`)},
		},
		{
			name: "no message",
			data: `{"conversationId":"c1"}`,
			want: Event{ConversationID: "c1"},
		},
		{name: "no conversation", data: `{"message":"hi"}`, wantErr: ErrNoConversation},
		{name: "not json", data: `hello`, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got.ConversationID != tt.want.ConversationID || string(got.Message) != string(tt.want.Message) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestDeliver(t *testing.T) {
	logger := zerolog.Nop()
	rec := &recorder{}

	Deliver(context.Background(), rec, []byte(`{"conversationId":"c1","message":"hi"}`), &logger)
	Deliver(context.Background(), rec, []byte(`{"message":"lost"}`), &logger)

	if len(rec.conversations) != 1 || rec.conversations[0] != "c1" || rec.messages[0] != `"hi"` {
		t.Fatalf("unexpected deliveries %+v", rec)
	}
}
