// Package notify turns new-message notifications published by the REST layer
// into relay broadcasts. Broker specific subscribers live in subpackages.
package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
)

var (
	ErrMalformed      = errors.New("malformed notification")
	ErrNoConversation = errors.New("notification has no conversation id")
)

type (
	Notifier interface {
		NotifyNewMessage(ctx context.Context, conversationID string, message json.RawMessage) int
	}

	// Event is a notification published by the REST layer after
	// it has persisted a conversation message.
	Event struct {
		ConversationID string          `json:"conversationId"`
		Message        json.RawMessage `json:"message"`
	}
)

func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, errors.Join(ErrMalformed, err)
	}
	if ev.ConversationID == "" {
		return ev, ErrNoConversation
	}
	return ev, nil
}

// Deliver decodes notification and hands it to the relay.
// Bad notifications are logged and skipped.
func Deliver(ctx context.Context, n Notifier, data []byte, logger *zerolog.Logger) {
	ev, err := Decode(data)
	if err != nil {
		logger.Error().Err(err).Int("size", len(data)).Msg("dropping notification")
		return
	}
	recipients := n.NotifyNewMessage(ctx, ev.ConversationID, ev.Message)
	logger.Debug().
		Str("conversationID", ev.ConversationID).
		Int("recipients", recipients).
		Msg("notification delivered")
}
