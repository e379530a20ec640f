// Package ws fans announcement state changes out to connected clients over
// WebSocket. Every client sits in the global room; clients join and leave
// per-announcement rooms with control messages. Emission is fire-and-forget:
// a slow or broken client is dropped, never waited on.
package ws

import (
	"log"
)

type subscription struct {
	client *Client
	room   string
}

type message struct {
	room string // "" targets every connected client
	data []byte
}

// Hub owns the connection and room bookkeeping. A single goroutine in Run
// touches the maps, so no locks are needed.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan subscription
	leave      chan subscription
	broadcast  chan message
	count      chan chan int
	done       chan struct{}

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

// NewHub creates a Hub. Call Run in a goroutine before use.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan subscription),
		leave:      make(chan subscription),
		broadcast:  make(chan message, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Run processes hub commands until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("WebSocket client connected (%d online)", len(h.clients))
		case client := <-h.unregister:
			h.removeClient(client)
		case sub := <-h.join:
			if !h.clients[sub.client] {
				continue
			}
			if h.rooms[sub.room] == nil {
				h.rooms[sub.room] = make(map[*Client]bool)
			}
			h.rooms[sub.room][sub.client] = true
		case sub := <-h.leave:
			h.leaveRoom(sub.client, sub.room)
		case msg := <-h.broadcast:
			h.deliver(msg)
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-h.done:
			for client := range h.clients {
				h.removeClient(client)
			}
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) removeClient(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for room := range h.rooms {
		h.leaveRoom(client, room)
	}
	close(client.send)
	log.Printf("WebSocket client disconnected (%d online)", len(h.clients))
}

func (h *Hub) leaveRoom(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) deliver(msg message) {
	targets := h.clients
	if msg.room != "" {
		targets = h.rooms[msg.room]
	}

	var slow []*Client
	for client := range targets {
		select {
		case client.send <- msg.data:
		default:
			// client is not draining its buffer, drop it
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		log.Printf("Disconnecting slow WebSocket client")
		h.removeClient(client)
	}
}
