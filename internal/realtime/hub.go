package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/events"
	"github.com/jobboard/campaign-portal/internal/models"
	"go.uber.org/zap"
)

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Entitlement decides whether a non-cs user may follow a campaign.
type Entitlement interface {
	CanSubscribe(ctx context.Context, user *auth.AuthUser, campaignID uuid.UUID) error
}

const (
	defaultSendBuffer = 32
	pingInterval      = 30 * time.Second
)

// Hub owns the set of live connections of one API process. Events arrive via
// Broadcast (usually fed from the redis campaign channel by Run).
type Hub struct {
	entitlement Entitlement
	log         *zap.Logger
	sendBuffer  int

	mu      sync.RWMutex
	tenants map[uuid.UUID]map[*Client]struct{}
}

func NewHub(entitlement Entitlement, log *zap.Logger) *Hub {
	return &Hub{
		entitlement: entitlement,
		log:         log,
		sendBuffer:  defaultSendBuffer,
		tenants:     make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Run feeds events published by any process into this hub.
func (h *Hub) Run(ctx context.Context, sub events.Subscriber) error {
	return sub.Subscribe(ctx, events.CampaignChannel, h.Broadcast)
}

type Client struct {
	conn Conn
	user auth.AuthUser
	send chan []byte
	done chan struct{}

	mu            sync.RWMutex
	subscriptions map[uuid.UUID]struct{}
}

// wants mirrors HTTP access: a campaign-scoped session only ever sees its
// campaign, and cs otherwise sees the whole tenant.
func (c *Client) wants(campaignID uuid.UUID) bool {
	if c.user.CampaignID != nil && *c.user.CampaignID != campaignID {
		return false
	}
	if c.user.Portal == models.RoleCS {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[campaignID]
	return ok
}

// enqueue never blocks: a slow client loses messages, nobody else waits.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) register(conn Conn, user auth.AuthUser) *Client {
	c := &Client{
		conn:          conn,
		user:          user,
		send:          make(chan []byte, h.sendBuffer),
		done:          make(chan struct{}),
		subscriptions: make(map[uuid.UUID]struct{}),
	}
	h.mu.Lock()
	set, ok := h.tenants[user.TenantID]
	if !ok {
		set = make(map[*Client]struct{})
		h.tenants[user.TenantID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.tenants[c.user.TenantID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.tenants, c.user.TenantID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.tenants {
		n += len(set)
	}
	return n
}

// Broadcast delivers e to connections of e's tenant that are cs or subscribed
// to the campaign, within any campaign scope of their session.
func (h *Hub) Broadcast(e events.Event) {
	at := e.At
	data, err := json.Marshal(ServerMessage{
		Type:       MsgCampaignEvent,
		CampaignID: e.CampaignID.String(),
		EventType:  e.Type,
		Payload:    e.Payload,
		At:         &at,
	})
	if err != nil {
		h.log.Error("failed to marshal campaign event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.tenants[e.TenantID] {
		if !c.wants(e.CampaignID) {
			continue
		}
		if !c.enqueue(data) {
			h.log.Debug("dropped realtime event for slow client",
				zap.String("email", c.user.Email),
				zap.String("campaign_id", e.CampaignID.String()))
		}
	}
}

// Serve runs an authenticated connection until the peer goes away or ctx ends.
// The connection is closed on return.
func (h *Hub) Serve(ctx context.Context, conn Conn, user auth.AuthUser) {
	c := h.register(conn, user)
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(ctx, c)
	}()

	defer func() {
		h.unregister(c)
		close(c.done)
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	h.reply(c, ServerMessage{Type: MsgConnected, User: &user})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(c, ServerMessage{Type: MsgError, Message: "malformed message"})
			continue
		}
		h.handle(ctx, c, msg)
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, msg ClientMessage) {
	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe:
	default:
		h.reply(c, ServerMessage{Type: MsgError, Message: "unknown message type"})
		return
	}

	campaignID, err := uuid.Parse(msg.CampaignID)
	if err != nil {
		h.reply(c, ServerMessage{Type: MsgError, Message: "invalid campaignId"})
		return
	}

	if msg.Type == MsgUnsubscribe {
		c.mu.Lock()
		delete(c.subscriptions, campaignID)
		c.mu.Unlock()
		h.reply(c, ServerMessage{Type: MsgUnsubscribed, CampaignID: campaignID.String()})
		return
	}

	if c.user.Portal != models.RoleCS {
		if err := h.entitlement.CanSubscribe(ctx, &c.user, campaignID); err != nil {
			h.log.Debug("subscription refused",
				zap.String("email", c.user.Email),
				zap.String("campaign_id", campaignID.String()),
				zap.Error(err))
			h.reply(c, ServerMessage{Type: MsgError, CampaignID: campaignID.String(), Message: "not allowed to subscribe to this campaign"})
			return
		}
	}

	c.mu.Lock()
	c.subscriptions[campaignID] = struct{}{}
	c.mu.Unlock()
	h.reply(c, ServerMessage{Type: MsgSubscribed, CampaignID: campaignID.String()})
}

func (h *Hub) reply(c *Client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
