// Package ws is the realtime gateway: it holds this instance's websocket
// clients, their club rooms, and the bus subscriptions that feed them.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"clubimpact/internal/domain"
	"clubimpact/internal/metrics"
	"clubimpact/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
)

// Broker is the bus as the gateway sees it.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// MessageStore persists chat messages before they are relayed.
type MessageStore interface {
	Create(ctx context.Context, m *models.ClubMessage) error
}

type Option func(*Gateway)

// WithBackOff sets the policy used to re-establish dropped subscriptions.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(g *Gateway) { g.newBackOff = newBackOff }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway maps connections to rooms and bridges rooms to bus topics. All
// state is local to the process; other instances are reached only through
// the bus.
type Gateway struct {
	broker     Broker
	store      MessageStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	byUser      map[string]map[*Client]struct{}
	rooms       map[string]map[*Client]struct{}
	clientRooms map[*Client]map[string]struct{}
	subs        map[string]context.CancelFunc
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(broker Broker, store MessageStore, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		broker:      broker,
		store:       store,
		logger:      logger,
		newBackOff:  defaultBackOff,
		clients:     make(map[*Client]struct{}),
		byUser:      make(map[string]map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		clientRooms: make(map[*Client]map[string]struct{}),
		subs:        make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	// Keep trying while the room has members.
	b.MaxElapsedTime = 0
	return b
}

// ErrClosed is returned by Join once Close has begun.
var ErrClosed = fmt.Errorf("%w: gateway closed", domain.ErrUnavailable)

// Start subscribes to the process-wide topics.
func (g *Gateway) Start() {
	topics := []string{domain.TopicMissionProgress, domain.TopicUserGems}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.wg.Add(len(topics))
	g.mu.Unlock()
	for _, topic := range topics {
		g.startSubscription(g.ctx, topic)
	}
	g.logger.Info("gateway started")
}

// Close drops every subscription and disconnects every client. Joins that
// race with Close fail with ErrClosed.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()

	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		g.Leave(c)
	}
	g.logger.Info("gateway closed", slog.Int("clients", len(clients)))
}

// Register tracks a connection for process-wide and per-user delivery.
func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registerLocked(c)
}

func (g *Gateway) registerLocked(c *Client) {
	if _, ok := g.clients[c]; ok {
		return
	}
	g.clients[c] = struct{}{}
	if g.byUser[c.UserID] == nil {
		g.byUser[c.UserID] = make(map[*Client]struct{})
	}
	g.byUser[c.UserID][c] = struct{}{}
	g.metrics.ConnectionOpened()
}

// Join adds c to the club's room. It is idempotent. The first local member
// of a room starts the chat:{clubId} subscription.
func (g *Gateway) Join(c *Client, clubID, userID string) error {
	if clubID == "" {
		return fmt.Errorf("%w: clubId is required", domain.ErrValidation)
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if c.UserID == "" {
		c.UserID = userID
	}
	g.registerLocked(c)
	room := g.rooms[clubID]
	if _, ok := room[c]; ok {
		g.mu.Unlock()
		return nil
	}
	first := room == nil
	if first {
		room = make(map[*Client]struct{})
		g.rooms[clubID] = room
	}
	room[c] = struct{}{}
	if g.clientRooms[c] == nil {
		g.clientRooms[c] = make(map[string]struct{})
	}
	g.clientRooms[c][clubID] = struct{}{}
	var subCtx context.Context
	if first {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithCancel(g.ctx)
		g.subs[clubID] = cancel
		// Counted under mu so Close never waits while a new consumer is added.
		g.wg.Add(1)
	}
	rooms := len(g.rooms)
	g.mu.Unlock()

	g.metrics.SetRooms(rooms)
	if first {
		g.startSubscription(subCtx, domain.ChatTopic(clubID))
	}
	g.logger.Debug("joined room", slog.String("club_id", clubID), slog.String("user_id", c.UserID))
	return nil
}

// LeaveRoom removes c from one room.
func (g *Gateway) LeaveRoom(c *Client, clubID string) {
	g.mu.Lock()
	g.leaveRoomLocked(c, clubID)
	rooms := len(g.rooms)
	g.mu.Unlock()
	g.metrics.SetRooms(rooms)
}

// Leave removes c from every room, unregisters it and closes it. The last
// local member leaving a room stops that room's subscription.
func (g *Gateway) Leave(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; !ok {
		g.mu.Unlock()
		c.Close()
		return
	}
	for clubID := range g.clientRooms[c] {
		g.leaveRoomLocked(c, clubID)
	}
	delete(g.clientRooms, c)
	delete(g.clients, c)
	if m := g.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(g.byUser, c.UserID)
		}
	}
	rooms := len(g.rooms)
	g.mu.Unlock()

	c.Close()
	g.metrics.ConnectionClosed()
	g.metrics.SetRooms(rooms)
}

func (g *Gateway) leaveRoomLocked(c *Client, clubID string) {
	room := g.rooms[clubID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	delete(g.clientRooms[c], clubID)
	if len(room) > 0 {
		return
	}
	delete(g.rooms, clubID)
	if cancel, ok := g.subs[clubID]; ok {
		cancel()
		delete(g.subs, clubID)
	}
}

// InRoom reports whether c has joined clubID.
func (g *Gateway) InRoom(c *Client, clubID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[clubID][c]
	return ok
}

// RoomCount and ClientCount describe this instance only.
func (g *Gateway) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// RelayInbound validates and persists a chat message, then publishes the
// stored row on the club's topic. The message is durable once this returns
// nil, whether or not the publish succeeded.
func (g *Gateway) RelayInbound(ctx context.Context, clubID, senderID, body string) (*models.ClubMessage, error) {
	body = strings.TrimSpace(body)
	switch {
	case clubID == "":
		return nil, fmt.Errorf("%w: clubId is required", domain.ErrValidation)
	case senderID == "":
		return nil, fmt.Errorf("%w: senderId is required", domain.ErrValidation)
	case body == "":
		return nil, fmt.Errorf("%w: message body is empty", domain.ErrValidation)
	case utf8.RuneCountInString(body) > domain.MaxMessageRunes:
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrValidation, domain.MaxMessageRunes)
	}

	msg := &models.ClubMessage{ClubID: clubID, SenderID: senderID, Body: body}
	if err := g.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	g.metrics.MessageRelayed("inbound")

	payload, err := json.Marshal(domain.Envelope{Event: domain.SocketEventClubMessage, Data: msg})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	topic := domain.ChatTopic(clubID)
	if err := g.broker.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
		g.metrics.PublishFailed("chat")
		g.logger.WarnContext(ctx, "chat message stored but not published",
			slog.String("club_id", clubID), slog.Uint64("message_id", uint64(msg.ID)), slog.Any("error", err))
	}
	return msg, nil
}

// RelayOutbound delivers payload verbatim to the local clients that topic
// addresses and returns how many frames were queued.
func (g *Gateway) RelayOutbound(topic string, payload []byte) int {
	var targets []*Client
	switch topic {
	case domain.TopicMissionProgress:
		targets = g.snapshot(func() map[*Client]struct{} { return g.clients })
	case domain.TopicUserGems:
		var env struct {
			Data struct {
				UserID string `json:"userId"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &env); err != nil || env.Data.UserID == "" {
			g.logger.Warn("user:gems payload without userId", slog.Any("error", err))
			return 0
		}
		targets = g.snapshot(func() map[*Client]struct{} { return g.byUser[env.Data.UserID] })
	default:
		clubID, ok := domain.ClubFromTopic(topic)
		if !ok {
			return 0
		}
		targets = g.snapshot(func() map[*Client]struct{} { return g.rooms[clubID] })
	}

	sent := 0
	for _, c := range targets {
		if c.Enqueue(payload) {
			sent++
			g.metrics.MessageRelayed("outbound")
			continue
		}
		g.metrics.FrameDropped()
		g.logger.Debug("frame dropped for slow client", slog.String("topic", topic), slog.String("client_id", c.ID))
	}
	return sent
}

func (g *Gateway) snapshot(set func() map[*Client]struct{}) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := set()
	out := make([]*Client, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// startSubscription subscribes once synchronously so that a caller that
// returns from Join is already receiving, then hands off to consume. The
// caller has already added the consumer to g.wg.
func (g *Gateway) startSubscription(ctx context.Context, topic string) {
	msgs, err := g.broker.Subscribe(ctx, topic)
	if err != nil {
		g.logger.Warn("subscribe failed, retrying", slog.String("topic", topic), slog.Any("error", err))
		msgs = nil
	}
	go g.consume(ctx, topic, msgs)
}

func (g *Gateway) consume(ctx context.Context, topic string, msgs <-chan *message.Message) {
	defer g.wg.Done()
	for {
		if msgs == nil {
			msgs = g.resubscribe(ctx, topic)
			if msgs == nil {
				return
			}
		}
		for msg := range msgs {
			g.RelayOutbound(topic, msg.Payload)
			msg.Ack()
		}
		if ctx.Err() != nil {
			return
		}
		g.logger.Warn("subscription dropped", slog.String("topic", topic))
		msgs = nil
	}
}

// resubscribe retries until it succeeds or ctx ends; nil means ctx ended.
func (g *Gateway) resubscribe(ctx context.Context, topic string) <-chan *message.Message {
	var msgs <-chan *message.Message
	op := func() error {
		m, err := g.broker.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		msgs = m
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("resubscribe failed", slog.String("topic", topic),
			slog.Duration("retry_in", wait), slog.Any("error", err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(g.newBackOff(), ctx), notify); err != nil {
		return nil
	}
	g.metrics.Resubscribed()
	g.logger.Info("resubscribed", slog.String("topic", topic))
	return msgs
}
