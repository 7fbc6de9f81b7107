package model

import (
	"encoding/json"
	"time"
)

type EventType string

// Events sent by clients.
const (
	EventJoinRoom          EventType = "join-room"
	EventLeaveRoom         EventType = "leave-room"
	EventOffer             EventType = "offer"
	EventAnswer            EventType = "answer"
	EventICECandidate      EventType = "ice-candidate"
	EventStartScreenShare  EventType = "start-screen-share"
	EventStopScreenShare   EventType = "stop-screen-share"
	EventToggleMedia       EventType = "toggle-media"
	EventChatMessage       EventType = "chat-message"
	EventJoinConversation  EventType = "join-conversation"
	EventLeaveConversation EventType = "leave-conversation"
)

// Events sent by server.
// EventOffer, EventAnswer, EventICECandidate and EventChatMessage are reused
// in the outbound direction.
const (
	EventExistingUsers     EventType = "existing-users"
	EventUserJoined        EventType = "user-joined"
	EventUserLeft          EventType = "user-left"
	EventUserScreenSharing EventType = "user-screen-sharing"
	EventUserMediaToggle   EventType = "user-media-toggle"
	EventNewMessage        EventType = "new-message"
)

// ConversationGroup is the delivery group name of a conversation channel.
func ConversationGroup(conversationID string) string {
	return "conversation-" + conversationID
}

// Inbound is a frame received from a client. Payload is decoded
// according to Type by the relay.
type Inbound struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a frame sent to a client.
type Outbound struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type Participant struct {
	ConnID   string `json:"socketId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Inbound payloads.
type (
	JoinRoom struct {
		RoomID   string `json:"roomId"`
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	}

	RoomRef struct {
		RoomID string `json:"roomId"`
	}

	// Signal carries an offer, answer or ice candidate. Exactly one of
	// the payload fields is expected to be set depending on event type,
	// but relay does not check it.
	Signal struct {
		Target    string          `json:"target"`
		Offer     json.RawMessage `json:"offer,omitempty"`
		Answer    json.RawMessage `json:"answer,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
	}

	ToggleMedia struct {
		RoomID string `json:"roomId"`
		Video  bool   `json:"video"`
		Audio  bool   `json:"audio"`
	}

	ChatMessage struct {
		RoomID  string          `json:"roomId"`
		Message json.RawMessage `json:"message"`
	}

	ConversationRef struct {
		ConversationID string `json:"conversationId"`
	}
)

// Outbound payloads.
type (
	PeerLeft struct {
		ConnID string `json:"socketId"`
	}

	// Relayed is an offer, answer or ice candidate forwarded to its target.
	Relayed struct {
		Offer     json.RawMessage `json:"offer,omitempty"`
		Answer    json.RawMessage `json:"answer,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
		Sender    string          `json:"sender"`
	}

	ScreenSharing struct {
		ConnID    string `json:"socketId"`
		IsSharing bool   `json:"isSharing"`
	}

	MediaToggle struct {
		ConnID string `json:"socketId"`
		Video  bool   `json:"video"`
		Audio  bool   `json:"audio"`
	}

	RoomChat struct {
		Message   json.RawMessage `json:"message"`
		UserName  string          `json:"userName"`
		UserID    string          `json:"userId"`
		Timestamp time.Time       `json:"timestamp"`
	}

	NewMessage struct {
		Message        json.RawMessage `json:"message"`
		ConversationID string          `json:"conversationId"`
	}
)

// Stats is a point-in-time view of relay state.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Connections  int `json:"connections"`
}

// Wire is the outbound side of a client connection.
type Wire struct {
	TX chan Outbound
}

func NewWire(size int) Wire {
	return Wire{
		TX: make(chan Outbound, size),
	}
}
