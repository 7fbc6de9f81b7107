package _switch

import (
	"sync"

	"github.com/adwski/signaling-relay/backend/model"
	"github.com/rs/zerolog"
)

// Switch delivers outbound frames to connected endpoints and maintains
// named delivery groups. Delivery is fire-and-forget: frame is dropped
// if endpoint is gone or its queue is full.
type Switch struct {
	logger    zerolog.Logger
	mx        *sync.RWMutex
	endpoints map[string]model.Wire
	groups    map[string]map[string]struct{} // group -> endpoints
	member    map[string]map[string]struct{} // endpoint -> groups
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:    logger.With().Str("component", "switch").Logger(),
		mx:        &sync.RWMutex{},
		endpoints: make(map[string]model.Wire),
		groups:    make(map[string]map[string]struct{}),
		member:    make(map[string]map[string]struct{}),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) {
	sw.mx.Lock()
	sw.endpoints[endpoint] = wire
	sw.mx.Unlock()

	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint connected")
}

// Disconnect removes endpoint and all of its group memberships.
func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	for group := range sw.member[endpoint] {
		sw.removeFromGroup(group, endpoint)
	}
	delete(sw.member, endpoint)
	delete(sw.endpoints, endpoint)
	sw.mx.Unlock()

	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint disconnected")
}

func (sw *Switch) JoinGroup(group, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.endpoints[endpoint]; !ok {
		sw.logger.Debug().
			Str("group", group).
			Str("endpoint", endpoint).
			Msg("cannot join group, endpoint not found")
		return
	}
	members, ok := sw.groups[group]
	if !ok {
		members = make(map[string]struct{})
		sw.groups[group] = members
	}
	members[endpoint] = struct{}{}

	groups, ok := sw.member[endpoint]
	if !ok {
		groups = make(map[string]struct{})
		sw.member[endpoint] = groups
	}
	groups[group] = struct{}{}
}

func (sw *Switch) LeaveGroup(group, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	sw.removeFromGroup(group, endpoint)
	if groups, ok := sw.member[endpoint]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(sw.member, endpoint)
		}
	}
}

func (sw *Switch) removeFromGroup(group, endpoint string) {
	members, ok := sw.groups[group]
	if !ok {
		return
	}
	delete(members, endpoint)
	if len(members) == 0 {
		delete(sw.groups, group)
	}
}

// Send delivers frame to a single endpoint.
func (sw *Switch) Send(endpoint string, msg model.Outbound) bool {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	wire, ok := sw.endpoints[endpoint]
	if !ok {
		sw.logger.Debug().
			Str("dst", endpoint).
			Str("type", string(msg.Type)).
			Msg("cannot forward, dst not found")
		return false
	}
	return send(msg, endpoint, wire.TX, &sw.logger)
}

// SendGroup delivers frame to every member of the group.
// It returns number of endpoints the frame was queued for.
func (sw *Switch) SendGroup(group string, msg model.Outbound) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	var sent int
	for endpoint := range sw.groups[group] {
		wire, ok := sw.endpoints[endpoint]
		if !ok {
			continue
		}
		if send(msg, endpoint, wire.TX, &sw.logger) {
			sent++
		}
	}
	if sent == 0 {
		sw.logger.Debug().
			Str("group", group).
			Str("type", string(msg.Type)).
			Msg("group send did not reach anyone")
	}
	return sent
}

// Endpoints returns number of connected endpoints.
func (sw *Switch) Endpoints() int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	return len(sw.endpoints)
}

func send(msg model.Outbound, dst string, tx chan<- model.Outbound, logger *zerolog.Logger) bool {
	select {
	case tx <- msg:
		logger.Trace().
			Str("dst", dst).
			Str("type", string(msg.Type)).
			Msg("frame is forwarded")
		return true
	default:
		logger.Error().
			Str("dst", dst).
			Str("type", string(msg.Type)).
			Msg("endpoint queue is full, frame dropped")
		return false
	}
}
