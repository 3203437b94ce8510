package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tandemtalk/server/internal/store"
)

// Options tunes hub behaviour.
type Options struct {
	// PersistTimeout bounds each store call made from the hub goroutine.
	PersistTimeout time.Duration
	// HistoryLimit is how many recent messages are sent on join.
	HistoryLimit int
}

func (o *Options) withDefaults() {
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 3 * time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

type pushRequest struct {
	userID int64
	event  *Event
}

// Hub is the connection registry and message router. All shared state
// (clients, presence, room membership) is owned by the goroutine running Run
// and touched from nowhere else; the only operations that block that
// goroutine are store calls, each under PersistTimeout.
type Hub struct {
	store store.Store
	log   *zerolog.Logger
	opts  Options

	register    chan *Client
	unregister  chan *Client
	commands    chan clientCommand
	push        chan pushRequest
	onlineQuery chan chan []int64

	clients  map[string]*Client
	presence *Presence
	rooms    *Rooms
}

// NewHub creates a new chat hub instance.
func NewHub(st store.Store, logger *zerolog.Logger, opts Options) *Hub {
	opts.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:       st,
		log:         logger,
		opts:        opts,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		commands:    make(chan clientCommand, 64),
		push:        make(chan pushRequest, 16),
		onlineQuery: make(chan chan []int64),
		clients:     make(map[string]*Client),
		presence:    NewPresence(),
		rooms:       NewRooms(),
	}
}

// RegisterClient wires an authenticated connection into the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient tears down a connection's state. Safe to call more than
// once; the second call is a no-op.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// PushToUser delivers an event to every live connection of the user.
// Used by the REST layer (chat creation, call signaling).
func (h *Hub) PushToUser(userID int64, ev *Event) {
	h.push <- pushRequest{userID: userID, event: ev}
}

// OnlineUsers returns a point-in-time snapshot of online user ids.
func (h *Hub) OnlineUsers() []int64 {
	reply := make(chan []int64, 1)
	h.onlineQuery <- reply
	return <-reply
}

// Run processes hub traffic until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(ctx, c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case req := <-h.push:
			h.handlePush(req)
		case reply := <-h.onlineQuery:
			reply <- h.presence.OnlineUsers()
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	if _, exists := h.clients[c.ID]; exists {
		return
	}
	h.clients[c.ID] = c
	cameOnline := h.presence.Register(c.UserID, c.ID)

	// Pump client commands into the hub queue so the loop stays the only
	// goroutine touching shared state.
	go func() {
		for {
			select {
			case cmd := <-c.Commands:
				select {
				case h.commands <- clientCommand{client: c, cmd: cmd}:
				case <-c.done:
					return
				}
			case <-c.done:
				return
			}
		}
	}()

	h.log.Info().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")

	if cameOnline {
		h.persistOnlineStatus(ctx, c.UserID, true)
		h.broadcastPresence()
	}
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	if _, exists := h.clients[c.ID]; !exists {
		return
	}
	delete(h.clients, c.ID)

	// Room deregistration happens-before the presence broadcast so members
	// never see activity from a connection already reported offline.
	h.rooms.RemoveClient(c)
	wentOffline := h.presence.Deregister(c.UserID, c.ID)

	close(c.done)
	close(c.Events)

	h.log.Info().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")

	if wentOffline {
		h.persistOnlineStatus(ctx, c.UserID, false)
		h.broadcastPresence()
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	// The pump may deliver a command queued just before disconnect.
	if _, exists := h.clients[c.ID]; !exists {
		return
	}

	switch cmd.Kind {
	case CommandJoinChat:
		h.handleJoin(ctx, c, cmd.ChatID)
	case CommandLeaveChat:
		h.rooms.Leave(cmd.ChatID, c)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandTyping:
		h.handleTyping(c, cmd)
	default:
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

// handleJoin verifies chat participancy against the store before subscribing;
// a client-supplied chat id is never trusted.
func (h *Hub) handleJoin(ctx context.Context, c *Client, chatID int64) {
	if _, cerr := h.lookupChat(ctx, c, chatID); cerr != nil {
		h.sendError(c, cerr)
		return
	}

	if !h.rooms.Join(chatID, c) {
		// Already subscribed; joining twice is a no-op.
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	messages, err := h.store.ListMessages(storeCtx, chatID, h.opts.HistoryLimit, nil)
	if err != nil {
		// Best-effort: the client still joined, it just starts without history.
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("load history failed")
		return
	}
	h.trySend(c, &Event{Kind: EventHistory, ChatID: chatID, Messages: messages})
}

// handleSend runs the send state machine: validate, persist, fan out.
func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		h.sendError(c, coreError(ErrCodeEmptyContent, "message body is empty"))
		return
	}

	chat, cerr := h.lookupChat(ctx, c, cmd.ChatID)
	if cerr != nil {
		h.sendError(c, cerr)
		return
	}

	// Durability before fan-out: a message is never broadcast unless it was
	// recorded, so a reconnecting client always sees a consistent history.
	storeCtx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	msg, err := h.store.InsertMessage(storeCtx, cmd.ChatID, c.UserID, body)
	cancel()
	if err != nil {
		// No retry: a write with unknown completion status must not be
		// repeated, the client decides whether to resend.
		h.log.Error().Err(err).Int64("chat_id", cmd.ChatID).Int64("user_id", c.UserID).Msg("persist message failed")
		h.sendError(c, coreError(ErrCodePersistenceError, "message could not be stored"))
		return
	}

	delivered := 0
	for _, member := range h.rooms.Members(cmd.ChatID) {
		ev := &Event{Kind: EventReceiveMessage, ChatID: cmd.ChatID, Message: msg}
		if member == c {
			ev.Ref = cmd.Ref
		}
		if h.trySend(member, ev) {
			delivered++
		}
	}
	h.log.Debug().Int64("msg_id", msg.ID).Int("delivered", delivered).Msg("message fanned out")

	h.updateChatPreview(ctx, chat, msg)
}

// updateChatPreview refreshes the denormalized last-message snapshot.
// Failures are logged, never propagated as a send failure.
func (h *Hub) updateChatPreview(ctx context.Context, chat *store.Chat, msg *store.Message) {
	snap := store.ChatSnapshot{Body: msg.Body, SenderID: msg.SenderID, SentAt: msg.CreatedAt}

	storeCtx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	if err := h.store.UpdateChatLastMessage(storeCtx, chat.ID, snap); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("update chat preview failed")
	}

	ev := &Event{Kind: EventChatPreview, ChatID: chat.ID, Preview: &snap}
	for _, userID := range []int64{chat.UserAID, chat.UserBID} {
		h.pushToUserLocked(userID, ev)
	}
}

// handleTyping relays a typing indicator to chat members minus the origin.
// Nothing is persisted and the only check is room membership; a stale or
// dropped indicator is acceptable by design of the signal.
func (h *Hub) handleTyping(c *Client, cmd *Command) {
	if !h.rooms.Contains(cmd.ChatID, c) {
		return
	}
	ev := &Event{
		Kind:     EventUserTyping,
		ChatID:   cmd.ChatID,
		UserID:   c.UserID,
		Username: c.Username,
		IsTyping: cmd.IsTyping,
	}
	for _, member := range h.rooms.Members(cmd.ChatID) {
		if member == c {
			continue
		}
		h.trySend(member, ev)
	}
}

func (h *Hub) handlePush(req pushRequest) {
	h.pushToUserLocked(req.userID, req.event)
}

// pushToUserLocked delivers an event to every connection of the user.
// Must run on the hub goroutine.
func (h *Hub) pushToUserLocked(userID int64, ev *Event) {
	for _, connID := range h.presence.Connections(userID) {
		if c, ok := h.clients[connID]; ok {
			h.trySend(c, ev)
		}
	}
}

// lookupChat loads the chat and checks the client is one of its participants.
func (h *Hub) lookupChat(ctx context.Context, c *Client, chatID int64) (*store.Chat, *CoreError) {
	storeCtx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()

	chat, err := h.store.GetChatByID(storeCtx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeChatNotFound, "chat not found")
		}
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("chat lookup failed")
		return nil, coreError(ErrCodePersistenceError, "chat lookup failed")
	}
	if !chat.HasParticipant(c.UserID) {
		return nil, coreError(ErrCodeNotParticipant, "not a participant of this chat")
	}
	return chat, nil
}

// persistOnlineStatus records presence transitions. Best-effort: a storage
// fault must never block in-memory cleanup or the presence broadcast.
func (h *Hub) persistOnlineStatus(ctx context.Context, userID int64, online bool) {
	storeCtx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	if err := h.store.SetUserOnlineStatus(storeCtx, userID, online, time.Now().UTC()); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Bool("online", online).Msg("persist online status failed")
	}
}

// broadcastPresence pushes the online snapshot to every live connection.
// Exactly one broadcast per offline<->online transition.
func (h *Hub) broadcastPresence() {
	ev := &Event{Kind: EventUsersOnline, UserIDs: h.presence.OnlineUsers()}
	for _, c := range h.clients {
		h.trySend(c, ev)
	}
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	h.trySend(c, &Event{Kind: EventError, Error: cerr})
}

// trySend queues an event without blocking the hub; a slow consumer's event
// is dropped rather than stalling fan-out for everyone else.
func (h *Hub) trySend(c *Client, ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		h.log.Warn().Str("conn_id", c.ID).Msg("dropping event for slow consumer")
		return false
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
		close(c.Events)
	}
}
