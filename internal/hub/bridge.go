package hub

import (
	"github.com/smazurov/camfleet/internal/events"
)

// Subscriber is the subscribing half of the event bus.
type Subscriber interface {
	Subscribe(handler any) func()
}

// StreamPayload is the body of stream:* events.
type StreamPayload struct {
	StreamID   string `json:"streamId"`
	State      string `json:"state"`
	Reason     string `json:"reason"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retryCount"`
	Terminal   bool   `json:"terminal,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// DashboardPayload is the body of dashboard:update events.
type DashboardPayload struct {
	Kind    string `json:"kind"`
	Session any    `json:"session,omitempty"`
	Metrics any    `json:"metrics,omitempty"`
	Health  any    `json:"health,omitempty"`
}

// streamTypes maps transition reasons to wire event types. Intermediate
// transitions only surface on the dashboard.
var streamTypes = map[string]string{
	events.ReasonStarted: TypeStreamStarted,
	events.ReasonStopped: TypeStreamStopped,
	events.ReasonEnded:   TypeStreamEnded,
	events.ReasonError:   TypeStreamError,
}

// Bridge forwards bus events to connected clients.
type Bridge struct {
	registry *Registry
}

// NewBridge creates a bridge delivering through registry.
func NewBridge(registry *Registry) *Bridge {
	return &Bridge{registry: registry}
}

// Attach subscribes to bus and returns a function that detaches.
func (b *Bridge) Attach(bus Subscriber) func() {
	unsubs := []func(){
		bus.Subscribe(b.onSessionState),
		bus.Subscribe(b.onSessionMetrics),
		bus.Subscribe(b.onHealthSummary),
		bus.Subscribe(b.onAlert),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *Bridge) onSessionState(e events.SessionStateChangedEvent) {
	if wire, ok := streamTypes[e.Reason]; ok {
		payload := StreamPayload{
			StreamID:   e.SessionID,
			State:      e.NewState,
			Reason:     e.Reason,
			ExitCode:   e.ExitCode,
			Error:      e.Error,
			RetryCount: e.RetryCount,
			Terminal:   e.Terminal,
			Timestamp:  e.Timestamp,
		}
		b.registry.BroadcastToRoom(RoomName(e.SessionID), wire, payload, "")
		b.registry.BroadcastToChannelSubscribers(ChannelStreams, wire, payload)
	}
	b.registry.BroadcastToChannelSubscribers(ChannelDashboard, TypeDashboardUpdate,
		DashboardPayload{Kind: "session", Session: e})
}

func (b *Bridge) onSessionMetrics(e events.SessionMetricsEvent) {
	b.registry.BroadcastToChannelSubscribers(ChannelDashboard, TypeDashboardUpdate,
		DashboardPayload{Kind: "metrics", Metrics: e})
}

func (b *Bridge) onHealthSummary(e events.HealthSummaryEvent) {
	b.registry.BroadcastToChannelSubscribers(ChannelDashboard, TypeDashboardUpdate,
		DashboardPayload{Kind: "health", Health: e})
	b.registry.BroadcastToChannelSubscribers(ChannelSystemStatus, TypeSystemStatus, map[string]any{
		"overall":        e.Overall,
		"activeSessions": e.ActiveSessions,
		"failedSessions": e.FailedSessions,
		"timestamp":      e.Timestamp,
	})
	if len(e.System) > 0 {
		b.registry.BroadcastToChannelSubscribers(ChannelAdminSystem, TypeSystemStatus, e)
	}
}

func (b *Bridge) onAlert(e events.AlertEvent) {
	b.registry.BroadcastToChannelSubscribers(ChannelAdminAlerts, TypeSystemAlert, e)
}
