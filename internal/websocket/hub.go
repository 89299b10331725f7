// The hub multiplexes session progress events to WebSocket observers. Each
// session has a room; all observers of a room receive the same events in
// the same order. A single Run goroutine owns all room state.

package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/jaehyun-ko/newsight/internal/models"
)

type event struct {
	sessionID string
	payload   []byte
	terminal  bool
}

// Hub maintains the set of observers per session and fans events out to
// them. Observers that cannot keep up are dropped; the pipeline is never
// gated on observer readiness.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan event
	rooms      map[string]map[*Client]bool

	heartbeat time.Duration

	// OnStop, when set, is invoked for a {"type":"stop"} control message
	// received from an observer. Set it before calling Run.
	OnStop func(sessionID string)
}

// NewHub creates a hub that emits heartbeat events at the given interval.
func NewHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan event, 256),
		rooms:      make(map[string]map[*Client]bool),
		heartbeat:  heartbeat,
	}
}

// Run owns the room state. Call it in its own goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.events:
			h.deliver(ev)

		case <-ticker.C:
			h.sendHeartbeats()
		}
	}
}

// Publish sends a progress event to every observer of the session.
func (h *Hub) Publish(sessionID string, ev models.ProgressEvent) {
	h.enqueue(sessionID, ev, false)
}

// PublishTerminal sends the final event for a session and then closes every
// subscription in the room.
func (h *Hub) PublishTerminal(sessionID string, ev models.ProgressEvent) {
	h.enqueue(sessionID, ev, true)
}

func (h *Hub) enqueue(sessionID string, ev models.ProgressEvent, terminal bool) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Hub: failed to marshal %s event for session %s: %v", ev.Type, sessionID, err)
		return
	}
	h.events <- event{sessionID: sessionID, payload: payload, terminal: terminal}
}

func (h *Hub) addClient(client *Client) {
	room, ok := h.rooms[client.sessionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.sessionID] = room
	}
	room[client] = true

	// The connected greeting goes out before any room event so a late
	// observer always starts from a snapshot.
	client.queue(client.greeting)

	// Re-check the session's terminal state here, on the goroutine that
	// also delivers events. A session that finished between the handler's
	// snapshot and this registration gets its terminal event replayed now
	// instead of leaving the observer attached to a dead room.
	if client.terminal != nil {
		if ev := client.terminal(); ev != nil {
			if payload, err := json.Marshal(ev); err == nil {
				client.queue(payload)
			}
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	room, ok := h.rooms[client.sessionID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	client.closeSend()
	if len(room) == 0 {
		delete(h.rooms, client.sessionID)
	}
}

func (h *Hub) deliver(ev event) {
	room := h.rooms[ev.sessionID]
	for client := range room {
		if !client.queue(ev.payload) {
			// Slow observer: drop it rather than stall the session.
			h.removeClient(client)
		}
	}
	if ev.terminal {
		for client := range room {
			h.removeClient(client)
		}
	}
}

func (h *Hub) sendHeartbeats() {
	for sessionID, room := range h.rooms {
		payload, err := json.Marshal(models.ProgressEvent{
			Type:      models.EventHeartbeat,
			SessionID: sessionID,
		})
		if err != nil {
			continue
		}
		for client := range room {
			if !client.queue(payload) {
				h.removeClient(client)
			}
		}
	}
}
