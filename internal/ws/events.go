package ws

import (
	"encoding/json"
	"log"

	"github.com/sujalbistaa/classhub/internal/engine"
)

// Server-to-client event types.
const (
	EventNew      = "new"
	EventUpdate   = "update"
	EventDelete   = "delete"
	EventPin      = "pin"
	EventReaction = "reaction"
	EventView     = "view"
	EventError    = "error"
)

// Envelope is the wire format for every server-to-client message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ReactionEvent reports the new aggregate after a reaction mutation.
type ReactionEvent struct {
	AnnouncementID string                 `json:"announcementId"`
	Reactions      []engine.ReactionCount `json:"reactions"`
	TotalReactions int64                  `json:"totalReactions"`
	Action         string                 `json:"action"` // "add" or "remove"
	ReactionType   string                 `json:"reactionType,omitempty"`
}

// ViewEvent reports a view-count change.
type ViewEvent struct {
	AnnouncementID string `json:"announcementId"`
	ViewCount      int    `json:"viewCount"`
}

// PinEvent reports a pin toggle.
type PinEvent struct {
	ID       string `json:"id"`
	IsPinned bool   `json:"isPinned"`
}

func roomFor(announcementID string) string {
	return "announcement:" + announcementID
}

func marshal(event string, data any) ([]byte, bool) {
	raw, err := json.Marshal(Envelope{Type: event, Data: data})
	if err != nil {
		log.Printf("Error marshalling WS message: %v", err)
		return nil, false
	}
	return raw, true
}

// EmitGlobal sends an event to every connected client.
func (h *Hub) EmitGlobal(event string, data any) {
	raw, ok := marshal(event, data)
	if !ok {
		return
	}
	h.send(message{data: raw})
}

// EmitRoom sends an event to clients in one announcement room.
func (h *Hub) EmitRoom(announcementID, event string, data any) {
	raw, ok := marshal(event, data)
	if !ok {
		return
	}
	h.send(message{room: roomFor(announcementID), data: raw})
}

// EmitReaction fans a reaction change out to the global room and the
// announcement's own room.
func (h *Hub) EmitReaction(ev ReactionEvent) {
	h.EmitGlobal(EventReaction, ev)
	h.EmitRoom(ev.AnnouncementID, EventReaction, ev)
}

// EmitView fans a view-count change out to the global room and the
// announcement's own room.
func (h *Hub) EmitView(ev ViewEvent) {
	h.EmitGlobal(EventView, ev)
	h.EmitRoom(ev.AnnouncementID, EventView, ev)
}

// send enqueues without ever blocking the caller; if the hub's buffer is
// full the event is dropped. Broadcast is best-effort by contract.
func (h *Hub) send(msg message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		log.Printf("WebSocket broadcast buffer full, dropping event")
	}
}
