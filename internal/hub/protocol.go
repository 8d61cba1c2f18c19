package hub

import (
	"strings"
	"time"
)

// Channels.
const (
	ChannelAdminAlerts  = "admin:alerts"
	ChannelAdminSystem  = "admin:system"
	ChannelStreams      = "streams"
	ChannelDashboard    = "dashboard"
	ChannelSystemStatus = "system:status"
)

// Outbound wire event types.
const (
	TypeStreamStarted   = "stream:started"
	TypeStreamStopped   = "stream:stopped"
	TypeStreamEnded     = "stream:ended"
	TypeStreamError     = "stream:error"
	TypeViewerJoined    = "viewer:joined"
	TypeViewerLeft      = "viewer:left"
	TypeViewerCount     = "viewer:count"
	TypeSystemAlert     = "system:alert"
	TypeDashboardUpdate = "dashboard:update"
	TypeSystemStatus    = "system:status"

	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Inbound message types.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgJoinStream  = "join_stream"
	MsgLeaveStream = "leave_stream"
	MsgPing        = "ping"
)

// Error codes sent in error replies.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeInvalidStream  = "INVALID_STREAM"
)

// roomPrefix names stream rooms.
const roomPrefix = "stream:"

// channelRoles maps channels to the roles allowed to subscribe. A nil entry
// admits every authenticated role.
var channelRoles = map[string][]string{
	ChannelAdminAlerts:  {RoleAdmin},
	ChannelAdminSystem:  {RoleAdmin},
	ChannelStreams:      nil,
	ChannelDashboard:    nil,
	ChannelSystemStatus: nil,
}

// CanSubscribe reports whether role may subscribe to channel. Stream rooms
// are never subscribable, they are entered through join_stream.
func CanSubscribe(role, channel string) bool {
	roles, known := channelRoles[channel]
	if !known {
		return false
	}
	if roles == nil {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoomName returns the room of a stream.
func RoomName(streamID string) string {
	return roomPrefix + streamID
}

// Inbound is a client message.
type Inbound struct {
	Type      string   `json:"type"`
	Channels  []string `json:"channels,omitempty"`
	StreamID  string   `json:"streamId,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// Envelope is a server message.
type Envelope struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorReply is sent to the originator of a bad message.
type ErrorReply struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// SubscribeResult lists granted and rejected channels.
type SubscribeResult struct {
	Subscribed []string `json:"subscribed"`
	Rejected   []string `json:"rejected"`
}

// ViewerPayload is sent on room membership changes.
type ViewerPayload struct {
	StreamID    string `json:"streamId"`
	ViewerCount int    `json:"viewerCount"`
	UserID      string `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
}

func validStreamID(id string) bool {
	return id != "" && len(id) <= 64 && !strings.ContainsAny(id, " /:")
}

func nowStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
