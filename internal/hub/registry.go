package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/metrics"
)

// ErrUnknownConnection is returned for operations on closed connections.
var ErrUnknownConnection = errors.New("unknown connection")

// Transport delivers frames to one client.
type Transport interface {
	// Send queues an encoded message. It must not block.
	Send(data []byte) error
	// Ping sends a liveness probe; the reply is reported through MarkAlive.
	Ping() error
	Close() error
}

// Options configures a Registry. Zero values take defaults.
type Options struct {
	HeartbeatInterval time.Duration // default 30s
	ReapInterval      time.Duration // default 60s
	IdleTimeout       time.Duration // default 5m
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Connection is a registered client link.
type Connection struct {
	ID        string
	Identity  Identity
	transport Transport

	channels     map[string]struct{}
	rooms        map[string]struct{}
	lastActivity time.Time
	acked        bool
	missed       int
}

// Registry owns connections, channel subscriptions and stream rooms.
type Registry struct {
	auth   Authenticator
	opts   Options
	now    func() time.Time
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(auth Authenticator, opts Options) *Registry {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReapInterval == 0 {
		opts.ReapInterval = 60 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Registry{
		auth:   auth,
		opts:   opts,
		now:    now,
		logger: logging.GetLogger("hub"),
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Connect authenticates token and registers transport. On failure the
// transport is closed and ErrUnauthenticated returned.
func (r *Registry) Connect(ctx context.Context, token string, t Transport) (*Connection, error) {
	id, err := r.auth.Authenticate(ctx, token)
	if err != nil {
		_ = t.Close()
		r.logger.Info("Rejected connection", "error", err)
		if !errors.Is(err, ErrUnauthenticated) {
			err = fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, err
	}

	c := &Connection{
		ID:           uuid.NewString(),
		Identity:     id,
		transport:    t,
		channels:     make(map[string]struct{}),
		rooms:        make(map[string]struct{}),
		lastActivity: r.now(),
		acked:        true,
	}

	r.mu.Lock()
	r.conns[c.ID] = c
	r.updateSizeLocked()
	r.mu.Unlock()

	r.logger.Info("Connection opened", "conn_id", c.ID, "user", id.ID, "role", id.Role)
	return c, nil
}

// Disconnect removes a connection from every room and closes its transport.
// Rooms left empty are deleted. Unknown ids are ignored.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)

	type departure struct {
		streamID string
		count    int
	}
	var left []departure
	for room := range c.rooms {
		members := r.rooms[room]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
		left = append(left, departure{streamID: room[len(roomPrefix):], count: len(members)})
	}
	r.updateSizeLocked()
	r.mu.Unlock()

	for _, d := range left {
		if d.count > 0 {
			r.BroadcastToRoom(RoomName(d.streamID), TypeViewerLeft, ViewerPayload{
				StreamID:    d.streamID,
				ViewerCount: d.count,
				UserID:      c.Identity.ID,
				UserName:    c.Identity.Name,
			}, connID)
		}
	}

	_ = c.transport.Close()
	r.logger.Info("Connection closed", "conn_id", connID, "user", c.Identity.ID)
}

// Subscribe grants each permitted channel and reports the rest as rejected.
func (r *Registry) Subscribe(connID string, channels []string) (SubscribeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return SubscribeResult{}, ErrUnknownConnection
	}

	res := SubscribeResult{Subscribed: []string{}, Rejected: []string{}}
	for _, ch := range channels {
		if CanSubscribe(c.Identity.Role, ch) {
			c.channels[ch] = struct{}{}
			res.Subscribed = append(res.Subscribed, ch)
		} else {
			res.Rejected = append(res.Rejected, ch)
		}
	}
	return res, nil
}

// Unsubscribe removes channels and returns those that were subscribed.
func (r *Registry) Unsubscribe(connID string, channels []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}

	removed := []string{}
	for _, ch := range channels {
		if _, had := c.channels[ch]; had {
			delete(c.channels, ch)
			removed = append(removed, ch)
		}
	}
	return removed, nil
}

// JoinStream adds the connection to the stream's room and tells the other
// members. It returns the room size.
func (r *Registry) JoinStream(connID, streamID string) (int, error) {
	room := RoomName(streamID)

	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return 0, ErrUnknownConnection
	}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	_, already := members[connID]
	members[connID] = struct{}{}
	c.rooms[room] = struct{}{}
	count := len(members)
	r.updateSizeLocked()
	r.mu.Unlock()

	if !already {
		r.BroadcastToRoom(room, TypeViewerJoined, ViewerPayload{
			StreamID:    streamID,
			ViewerCount: count,
			UserID:      c.Identity.ID,
			UserName:    c.Identity.Name,
		}, connID)
	}
	return count, nil
}

// LeaveStream removes the connection from the stream's room, deleting the
// room when it empties. It returns the remaining room size.
func (r *Registry) LeaveStream(connID, streamID string) (int, error) {
	room := RoomName(streamID)

	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return 0, ErrUnknownConnection
	}
	members := r.rooms[room]
	_, was := members[connID]
	delete(members, connID)
	delete(c.rooms, room)
	count := len(members)
	if members != nil && count == 0 {
		delete(r.rooms, room)
	}
	r.updateSizeLocked()
	r.mu.Unlock()

	if was && count > 0 {
		r.BroadcastToRoom(room, TypeViewerLeft, ViewerPayload{
			StreamID:    streamID,
			ViewerCount: count,
			UserID:      c.Identity.ID,
			UserName:    c.Identity.Name,
		}, connID)
	}
	return count, nil
}

// Broadcast sends to every connection. It returns the number of successful
// deliveries.
func (r *Registry) Broadcast(msgType string, payload any) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	return r.deliver(targets, msgType, payload)
}

// BroadcastToRoom sends to every room member except exclude.
func (r *Registry) BroadcastToRoom(room, msgType string, payload any, exclude string) int {
	r.mu.RLock()
	members := r.rooms[room]
	targets := make([]*Connection, 0, len(members))
	for id := range members {
		if id == exclude {
			continue
		}
		if c, ok := r.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, msgType, payload)
}

// BroadcastToChannelSubscribers sends to connections subscribed to channel.
func (r *Registry) BroadcastToChannelSubscribers(channel, msgType string, payload any) int {
	r.mu.RLock()
	var targets []*Connection
	for _, c := range r.conns {
		if _, ok := c.channels[channel]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, msgType, payload)
}

// deliver encodes once and sends to each target. A failed send is logged and
// does not affect the others.
func (r *Registry) deliver(targets []*Connection, msgType string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload, Timestamp: nowStamp(r.now())})
	if err != nil {
		r.logger.Error("Failed to encode message", "type", msgType, "error", err)
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if err := c.transport.Send(data); err != nil {
			metrics.IncHubSendFailure()
			r.logger.Debug("Send failed", "conn_id", c.ID, "type", msgType, "error", err)
			continue
		}
		metrics.IncHubMessage(msgType)
		delivered++
	}
	return delivered
}

// reply sends a message to a single connection.
func (r *Registry) reply(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("Failed to encode reply", "error", err)
		return
	}
	if err := c.transport.Send(data); err != nil {
		metrics.IncHubSendFailure()
		r.logger.Debug("Reply failed", "conn_id", c.ID, "error", err)
	}
}

func (r *Registry) replyError(c *Connection, code, message, requestID string) {
	r.reply(c, ErrorReply{Type: TypeError, Code: code, Message: message, RequestID: requestID})
}

// HandleMessage processes one inbound frame. Malformed or unknown messages
// are answered with an error reply to the sender only.
func (r *Registry) HandleMessage(connID string, data []byte) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		c.lastActivity = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		r.replyError(c, CodeInvalidMessage, "message is not valid JSON", "")
		return
	}
	stamp := nowStamp(r.now())

	switch msg.Type {
	case MsgSubscribe:
		if len(msg.Channels) == 0 {
			r.replyError(c, CodeInvalidMessage, "channels required", msg.RequestID)
			return
		}
		res, err := r.Subscribe(connID, msg.Channels)
		if err != nil {
			return
		}
		r.reply(c, Envelope{Type: TypeSubscribed, Payload: res, RequestID: msg.RequestID, Timestamp: stamp})

	case MsgUnsubscribe:
		if len(msg.Channels) == 0 {
			r.replyError(c, CodeInvalidMessage, "channels required", msg.RequestID)
			return
		}
		removed, err := r.Unsubscribe(connID, msg.Channels)
		if err != nil {
			return
		}
		r.reply(c, Envelope{Type: TypeUnsubscribed, Payload: map[string][]string{"unsubscribed": removed}, RequestID: msg.RequestID, Timestamp: stamp})

	case MsgJoinStream, MsgLeaveStream:
		if !validStreamID(msg.StreamID) {
			r.replyError(c, CodeInvalidStream, "invalid streamId", msg.RequestID)
			return
		}
		var (
			count int
			err   error
		)
		if msg.Type == MsgJoinStream {
			count, err = r.JoinStream(connID, msg.StreamID)
		} else {
			count, err = r.LeaveStream(connID, msg.StreamID)
		}
		if err != nil {
			return
		}
		r.reply(c, Envelope{Type: TypeViewerCount, Payload: ViewerPayload{StreamID: msg.StreamID, ViewerCount: count},
			RequestID: msg.RequestID, Timestamp: stamp})

	case MsgPing:
		r.reply(c, Envelope{Type: TypePong, RequestID: msg.RequestID, Timestamp: stamp})

	case "":
		r.replyError(c, CodeInvalidMessage, "type required", msg.RequestID)

	default:
		r.replyError(c, CodeUnknownType, fmt.Sprintf("unknown message type %q", msg.Type), msg.RequestID)
	}
}

// MarkAlive acknowledges the last heartbeat ping. It keeps the connection
// open through Heartbeat but does not count as activity for Reap; only
// messages through HandleMessage do.
func (r *Registry) MarkAlive(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.acked = true
		c.missed = 0
	}
}

// Heartbeat pings every connection. A connection that did not acknowledge
// the previous ping is marked dead; dead twice in a row closes it.
func (r *Registry) Heartbeat() {
	var dead, ping []*Connection

	r.mu.Lock()
	for _, c := range r.conns {
		if !c.acked {
			c.missed++
		} else {
			c.missed = 0
		}
		if c.missed >= 2 {
			dead = append(dead, c)
			continue
		}
		c.acked = false
		ping = append(ping, c)
	}
	r.mu.Unlock()

	for _, c := range dead {
		r.logger.Info("Closing unresponsive connection", "conn_id", c.ID)
		r.Disconnect(c.ID)
	}
	for _, c := range ping {
		if err := c.transport.Ping(); err != nil {
			r.logger.Debug("Ping failed", "conn_id", c.ID, "error", err)
		}
	}
}

// Reap closes connections idle past the idle timeout and drops empty rooms.
func (r *Registry) Reap() {
	cutoff := r.now().Add(-r.opts.IdleTimeout)
	var idle []string

	r.mu.Lock()
	for id, c := range r.conns {
		if c.lastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	for room, members := range r.rooms {
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	r.updateSizeLocked()
	r.mu.Unlock()

	for _, id := range idle {
		r.logger.Info("Closing idle connection", "conn_id", id)
		r.Disconnect(id)
	}
}

// Run drives the heartbeat and reaper until ctx is cancelled, then closes
// every connection.
func (r *Registry) Run(ctx context.Context) {
	heartbeat := time.NewTicker(r.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	reaper := time.NewTicker(r.opts.ReapInterval)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-heartbeat.C:
			r.Heartbeat()
		case <-reaper.C:
			r.Reap()
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
}

// ConnectionCount returns the number of open connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Rooms returns the non-empty room names, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// ViewerCount returns the number of connections in a stream's room.
func (r *Registry) ViewerCount(streamID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[RoomName(streamID)])
}

// Channels returns the channels a connection is subscribed to, sorted.
func (r *Registry) Channels(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) updateSizeLocked() {
	metrics.SetHubSize(len(r.conns), len(r.rooms))
}
