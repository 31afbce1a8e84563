// Package relay is a development room authority: it issues room credentials
// and fans websocket payloads out to the other members of a room.
package relay

import (
	"sort"
	"sync"

	"aegisroom/internal/logger"
	"aegisroom/internal/transport"
)

// Auditor mirrors relayed payloads somewhere durable.
type Auditor interface {
	Publish(room, sender string, data []byte)
	Status() string
}

// Hub tracks room membership.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*member]struct{}

	audit  Auditor
	logger *logger.Logger
}

func NewHub(audit Auditor, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		rooms:  make(map[string]map[*member]struct{}),
		audit:  audit,
		logger: log,
	}
}

func (h *Hub) register(m *member) {
	h.mu.Lock()
	members, ok := h.rooms[m.room]
	if !ok {
		members = make(map[*member]struct{})
		h.rooms[m.room] = members
	}
	members[m] = struct{}{}
	count := len(members)
	h.mu.Unlock()

	h.logger.Infof("%s joined %s (%d present)", m.identity, m.room, count)
}

func (h *Hub) unregister(m *member) {
	h.mu.Lock()
	removed := h.removeLocked(m)
	h.mu.Unlock()

	if removed {
		h.logger.Infof("%s left %s", m.identity, m.room)
	}
}

func (h *Hub) removeLocked(m *member) bool {
	members, ok := h.rooms[m.room]
	if !ok {
		return false
	}
	if _, ok := members[m]; !ok {
		return false
	}
	delete(members, m)
	close(m.send)
	if len(members) == 0 {
		delete(h.rooms, m.room)
	}
	return true
}

// relay delivers data to every other member of the sender's room. Members
// whose send buffer is full are dropped; their pumps notice the closed
// channel and hang up.
func (h *Hub) relay(from *member, data []byte) {
	frame, err := transport.EncodeFrame(transport.Frame{Sender: from.identity, Data: data})
	if err != nil {
		h.logger.Errorf("failed to frame payload from %s: %v", from.identity, err)
		return
	}

	var dropped []string
	h.mu.Lock()
	for peer := range h.rooms[from.room] {
		if peer == from {
			continue
		}
		select {
		case peer.send <- frame:
		default:
			h.removeLocked(peer)
			dropped = append(dropped, peer.identity)
		}
	}
	h.mu.Unlock()

	for _, identity := range dropped {
		h.logger.Warnf("dropping slow member %s from %s", identity, from.room)
	}
	if h.audit != nil {
		h.audit.Publish(from.room, from.identity, data)
	}
}

// Rooms reports how many members each room has.
func (h *Hub) Rooms() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		out[room] = len(members)
	}
	return out
}

// Members lists the identities present in a room, sorted.
func (h *Hub) Members(room string) []string {
	h.mu.Lock()
	identities := make([]string, 0, len(h.rooms[room]))
	for m := range h.rooms[room] {
		identities = append(identities, m.identity)
	}
	h.mu.Unlock()

	sort.Strings(identities)
	return identities
}

// CloseAll disconnects every member.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*member
	for _, members := range h.rooms {
		for m := range members {
			all = append(all, m)
		}
	}
	h.mu.Unlock()

	for _, m := range all {
		h.unregister(m)
	}
}

func (h *Hub) auditStatus() string {
	if h.audit == nil {
		return "disabled"
	}
	return h.audit.Status()
}
