package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sujalbistaa/classhub/internal/auth"
	"github.com/sujalbistaa/classhub/internal/engine"
	"github.com/sujalbistaa/classhub/internal/identity"
	"github.com/sujalbistaa/classhub/internal/models"
)

// Client-to-server message types.
const (
	actionJoin           = "join"
	actionLeave          = "leave"
	actionAddReaction    = "addReaction"
	actionRemoveReaction = "removeReaction"
	actionView           = "view"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type announcementRef struct {
	AnnouncementID string `json:"announcementId"`
}

type addReactionPayload struct {
	AnnouncementID string `json:"announcementId"`
	ReactionType   string `json:"reactionType"`
}

// Gateway upgrades connections and routes inbound socket actions through the
// same dedup engine as the REST handlers, so both transports have identical
// semantics.
type Gateway struct {
	hub      *Hub
	engine   *engine.Engine
	auth     *auth.Service
	resolver *identity.Resolver
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, eng *engine.Engine, authSvc *auth.Service, resolver *identity.Resolver, allowedOrigin string) *Gateway {
	return &Gateway{
		hub:      hub,
		engine:   eng,
		auth:     authSvc,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Hub exposes the hub for outbound emission from the REST layer.
func (g *Gateway) Hub() *Hub { return g.hub }

// HandleConnection upgrades the request and registers the client. A missing
// or invalid bearer token means an anonymous connection, never a refusal.
// Cookies are not consulted here; identity falls back to the fingerprint.
func (g *Gateway) HandleConnection(c *gin.Context) {
	var claims *auth.Claims
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c)
	}
	if token != "" {
		parsed, err := g.auth.ParseToken(token)
		if err != nil {
			log.Printf("Invalid WebSocket token, continuing as anonymous: %v", err)
		} else {
			claims = parsed
		}
	}

	var userID *uint
	if claims != nil {
		userID = &claims.UserID
	}
	id := g.resolver.ResolveDirect(c.ClientIP(), c.Request.UserAgent(), userID)

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(g.hub, conn, claims, id)
	g.hub.register <- client

	go client.writePump()
	go client.readPump(g)
}

func (g *Gateway) dispatch(c *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.deliver(EventError, gin.H{"message": "Malformed message"})
		return
	}

	switch msg.Type {
	case actionJoin, actionLeave:
		var ref announcementRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.AnnouncementID == "" {
			c.deliver(EventError, gin.H{"message": "announcementId required"})
			return
		}
		sub := subscription{client: c, room: roomFor(ref.AnnouncementID)}
		if msg.Type == actionJoin {
			g.hub.join <- sub
		} else {
			g.hub.leave <- sub
		}
	case actionAddReaction:
		g.handleAddReaction(c, msg.Data)
	case actionRemoveReaction:
		g.handleRemoveReaction(c, msg.Data)
	case actionView:
		g.handleView(c, msg.Data)
	default:
		c.deliver(EventError, gin.H{"message": "Unknown message type"})
	}
}

func (g *Gateway) handleAddReaction(c *Client, data json.RawMessage) {
	var payload addReactionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.AnnouncementID == "" {
		c.deliver(EventError, gin.H{"message": "announcementId required"})
		return
	}
	if !slices.Contains(models.ReactionTypes, payload.ReactionType) {
		c.deliver(EventError, gin.H{"message": "Invalid reaction type"})
		return
	}

	_, counts, err := g.engine.AddReaction(payload.AnnouncementID, payload.ReactionType, c.identity)
	if err != nil {
		c.deliver(EventError, gin.H{"message": err.Error()})
		return
	}

	g.hub.EmitReaction(ReactionEvent{
		AnnouncementID: payload.AnnouncementID,
		Reactions:      counts,
		TotalReactions: totalReactions(counts),
		Action:         "add",
		ReactionType:   payload.ReactionType,
	})
}

func (g *Gateway) handleRemoveReaction(c *Client, data json.RawMessage) {
	if c.claims == nil {
		c.deliver(EventError, gin.H{"message": "Authentication required"})
		return
	}
	var ref announcementRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.AnnouncementID == "" {
		c.deliver(EventError, gin.H{"message": "announcementId required"})
		return
	}

	counts, err := g.engine.RemoveReaction(ref.AnnouncementID, c.claims.UserID)
	if err != nil {
		c.deliver(EventError, gin.H{"message": err.Error()})
		return
	}

	g.hub.EmitReaction(ReactionEvent{
		AnnouncementID: ref.AnnouncementID,
		Reactions:      counts,
		TotalReactions: totalReactions(counts),
		Action:         "remove",
	})
}

func (g *Gateway) handleView(c *Client, data json.RawMessage) {
	var ref announcementRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.AnnouncementID == "" {
		c.deliver(EventError, gin.H{"message": "announcementId required"})
		return
	}

	isNew, viewCount, err := g.engine.RecordView(ref.AnnouncementID, c.identity)
	if err != nil {
		c.deliver(EventError, gin.H{"message": err.Error()})
		return
	}
	if isNew {
		g.hub.EmitView(ViewEvent{AnnouncementID: ref.AnnouncementID, ViewCount: viewCount})
	}
}

func totalReactions(counts []engine.ReactionCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}
