package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camfleet/internal/events"
)

const sseKeepalive = 15 * time.Second

// registerEventRoutes exposes the bus as a server-sent event stream for
// clients that do not speak the websocket protocol.
func (s *Server) registerEventRoutes() {
	if s.options.Bus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event Stream",
		Description: "Session transitions, throughput, health summaries and alerts as server-sent events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-state":   events.SessionStateChangedEvent{},
		"session-metrics": events.SessionMetricsEvent{},
		"health-snapshot": events.HealthSnapshotEvent{},
		"health-summary":  events.HealthSummaryEvent{},
		"alert":           events.AlertEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ch := make(chan any, 32)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.options.Bus, ch),
			events.SubscribeToChannel[events.SessionMetricsEvent](s.options.Bus, ch),
			events.SubscribeToChannel[events.HealthSnapshotEvent](s.options.Bus, ch),
			events.SubscribeToChannel[events.HealthSummaryEvent](s.options.Bus, ch),
			events.SubscribeToChannel[events.AlertEvent](s.options.Bus, ch),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		keepalive := time.NewTicker(sseKeepalive)
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if err := send.Data(ev); err != nil {
					return
				}
			case <-keepalive.C:
				if s.options.Health == nil {
					continue
				}
				if err := send.Data(events.HealthSummaryEvent{
					Overall:   s.options.Health.Overall(),
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				}); err != nil {
					return
				}
			}
		}
	})
}
