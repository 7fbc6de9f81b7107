package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/adwski/signaling-relay/backend/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	unknownUserName = "Unknown"
)

type (
	RoomStore interface {
		JoinRoom(roomID string, p model.Participant) []model.Participant
		LeaveRoom(roomID, connID string) ([]model.Participant, bool)
		LeaveAll(connID string) map[string][]model.Participant
		Participant(roomID, connID string) (model.Participant, bool)
		Participants(roomID string) []model.Participant
		Stats() (rooms int, participants int)
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire)
		Disconnect(endpoint string)
		JoinGroup(group, endpoint string)
		LeaveGroup(group, endpoint string)
		Send(endpoint string, msg model.Outbound) bool
		SendGroup(group string, msg model.Outbound) int
		Endpoints() int
	}

	// Relay owns room membership and forwards signaling between connections.
	// Handlers are serialized, so every registry mutation together with
	// the sends it causes is observed by other handlers as a single step.
	Relay struct {
		store  RoomStore
		sw     Switch
		now    func() time.Time
		logger zerolog.Logger
		mx     sync.Mutex
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
		Clock     func() time.Time
	}
)

func NewRelay(cfg Config) *Relay {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Relay{
		store:  cfg.RoomStore,
		sw:     cfg.Switch,
		now:    clock,
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

func (r *Relay) Connect(connID string, wire model.Wire) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.sw.Connect(connID, wire)
	r.logger.Debug().Str("connID", connID).Msg("connection registered")
}

// Disconnect removes connection from every room it is in,
// notifying remaining participants, and drops its endpoint.
func (r *Relay) Disconnect(connID string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	for roomID, remaining := range r.store.LeaveAll(connID) {
		r.notifyLeft(roomID, connID, remaining)
	}
	r.sw.Disconnect(connID)
	r.logger.Debug().Str("connID", connID).Msg("connection unregistered")
}

// Handle dispatches one client frame.
// Malformed payloads and unknown types are logged and dropped.
func (r *Relay) Handle(_ context.Context, connID string, msg model.Inbound) {
	r.mx.Lock()
	defer r.mx.Unlock()

	logger := r.logger.With().
		Str("connID", connID).
		Str("type", string(msg.Type)).
		Logger()

	var err error
	switch msg.Type {
	case model.EventJoinRoom:
		var req model.JoinRoom
		if err = decode(msg.Payload, &req); err == nil {
			r.joinRoom(connID, req)
		}
	case model.EventLeaveRoom:
		var req model.RoomRef
		if err = decode(msg.Payload, &req); err == nil {
			r.leaveRoom(connID, req.RoomID)
		}
	case model.EventOffer, model.EventAnswer, model.EventICECandidate:
		var req model.Signal
		if err = decode(msg.Payload, &req); err == nil {
			r.relaySignal(connID, msg.Type, req, &logger)
		}
	case model.EventStartScreenShare, model.EventStopScreenShare:
		var req model.RoomRef
		if err = decode(msg.Payload, &req); err == nil {
			r.broadcastOthers(req.RoomID, connID, model.Outbound{
				Type: model.EventUserScreenSharing,
				Payload: model.ScreenSharing{
					ConnID:    connID,
					IsSharing: msg.Type == model.EventStartScreenShare,
				},
			})
		}
	case model.EventToggleMedia:
		var req model.ToggleMedia
		if err = decode(msg.Payload, &req); err == nil {
			r.broadcastOthers(req.RoomID, connID, model.Outbound{
				Type: model.EventUserMediaToggle,
				Payload: model.MediaToggle{
					ConnID: connID,
					Video:  req.Video,
					Audio:  req.Audio,
				},
			})
		}
	case model.EventChatMessage:
		var req model.ChatMessage
		if err = decode(msg.Payload, &req); err == nil {
			r.roomChat(connID, req)
		}
	case model.EventJoinConversation:
		var req model.ConversationRef
		if err = decode(msg.Payload, &req); err == nil {
			r.sw.JoinGroup(model.ConversationGroup(req.ConversationID), connID)
			logger.Debug().Str("conversationID", req.ConversationID).Msg("joined conversation")
		}
	case model.EventLeaveConversation:
		var req model.ConversationRef
		if err = decode(msg.Payload, &req); err == nil {
			r.sw.LeaveGroup(model.ConversationGroup(req.ConversationID), connID)
			logger.Debug().Str("conversationID", req.ConversationID).Msg("left conversation")
		}
	default:
		logger.Warn().Msg("unknown event type")
		if ev := logger.Trace(); ev.Enabled() {
			ev.Msg(spew.Sdump(msg))
		}
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to decode payload")
	}
}

// NotifyNewMessage pushes new-message event to conversation subscribers.
func (r *Relay) NotifyNewMessage(_ context.Context, conversationID string, message json.RawMessage) int {
	r.mx.Lock()
	defer r.mx.Unlock()

	n := r.sw.SendGroup(model.ConversationGroup(conversationID), model.Outbound{
		Type: model.EventNewMessage,
		Payload: model.NewMessage{
			Message:        message,
			ConversationID: conversationID,
		},
	})
	r.logger.Debug().
		Str("conversationID", conversationID).
		Int("recipients", n).
		Msg("new message notification sent")
	return n
}

func (r *Relay) Stats() model.Stats {
	r.mx.Lock()
	defer r.mx.Unlock()

	rooms, participants := r.store.Stats()
	return model.Stats{
		Rooms:        rooms,
		Participants: participants,
		Connections:  r.sw.Endpoints(),
	}
}

func (r *Relay) joinRoom(connID string, req model.JoinRoom) {
	p := model.Participant{
		ConnID:   connID,
		UserID:   req.UserID,
		UserName: req.UserName,
	}
	others := r.store.JoinRoom(req.RoomID, p)

	for _, other := range others {
		r.sw.Send(other.ConnID, model.Outbound{Type: model.EventUserJoined, Payload: p})
	}
	r.sw.Send(connID, model.Outbound{Type: model.EventExistingUsers, Payload: others})

	r.logger.Debug().
		Str("connID", connID).
		Str("roomID", req.RoomID).
		Str("userID", req.UserID).
		Int("others", len(others)).
		Msg("joined room")
}

func (r *Relay) leaveRoom(connID, roomID string) {
	remaining, ok := r.store.LeaveRoom(roomID, connID)
	if !ok {
		return
	}
	r.notifyLeft(roomID, connID, remaining)
}

func (r *Relay) notifyLeft(roomID, connID string, remaining []model.Participant) {
	for _, other := range remaining {
		r.sw.Send(other.ConnID, model.Outbound{
			Type:    model.EventUserLeft,
			Payload: model.PeerLeft{ConnID: connID},
		})
	}
	r.logger.Debug().
		Str("connID", connID).
		Str("roomID", roomID).
		Int("remaining", len(remaining)).
		Msg("left room")
}

func (r *Relay) relaySignal(connID string, typ model.EventType, req model.Signal, logger *zerolog.Logger) {
	relayed := model.Relayed{Sender: connID}
	switch typ {
	case model.EventOffer:
		relayed.Offer = req.Offer
	case model.EventAnswer:
		relayed.Answer = req.Answer
	default:
		relayed.Candidate = req.Candidate
	}
	if !r.sw.Send(req.Target, model.Outbound{Type: typ, Payload: relayed}) {
		logger.Debug().Str("target", req.Target).Msg("signal was not delivered")
	}
}

func (r *Relay) broadcastOthers(roomID, connID string, msg model.Outbound) {
	for _, p := range r.store.Participants(roomID) {
		if p.ConnID != connID {
			r.sw.Send(p.ConnID, msg)
		}
	}
}

func (r *Relay) roomChat(connID string, req model.ChatMessage) {
	sender, ok := r.store.Participant(req.RoomID, connID)
	if !ok {
		sender = model.Participant{
			ConnID:   connID,
			UserID:   connID,
			UserName: unknownUserName,
		}
	}
	msg := model.Outbound{
		Type: model.EventChatMessage,
		Payload: model.RoomChat{
			Message:   req.Message,
			UserName:  sender.UserName,
			UserID:    sender.UserID,
			Timestamp: r.now(),
		},
	}
	for _, p := range r.store.Participants(req.RoomID) {
		r.sw.Send(p.ConnID, msg)
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
