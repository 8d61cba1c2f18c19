package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camfleet/internal/events"
)

func hasType(tr *fakeTransport, msgType string) func() bool {
	return func() bool {
		for _, m := range tr.messages() {
			if m.Type == msgType {
				return true
			}
		}
		return false
	}
}

func TestBridgeSessionEvents(t *testing.T) {
	bus := events.New()
	r := NewRegistry(testUsers, Options{})
	detach := NewBridge(r).Attach(bus)
	defer detach()

	watcher, watcherTr := connect(t, r, "viewer-token")
	fleet, fleetTr := connect(t, r, "bob-token")
	_, err := r.JoinStream(watcher.ID, "cam1")
	require.NoError(t, err)
	_, err = r.Subscribe(fleet.ID, []string{ChannelStreams, ChannelDashboard})
	require.NoError(t, err)

	bus.Publish(events.SessionStateChangedEvent{
		SessionID: "cam1", OldState: "starting", NewState: "active", Reason: events.ReasonStarted,
	})

	assert.Eventually(t, hasType(watcherTr, TypeStreamStarted), 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, hasType(fleetTr, TypeStreamStarted), 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, hasType(fleetTr, TypeDashboardUpdate), 2*time.Second, 10*time.Millisecond)
	assert.False(t, hasType(watcherTr, TypeDashboardUpdate)())
}

func TestBridgeStartingOnlyReachesDashboard(t *testing.T) {
	bus := events.New()
	r := NewRegistry(testUsers, Options{})
	defer NewBridge(r).Attach(bus)()

	c, tr := connect(t, r, "viewer-token")
	_, err := r.JoinStream(c.ID, "cam1")
	require.NoError(t, err)
	_, err = r.Subscribe(c.ID, []string{ChannelDashboard})
	require.NoError(t, err)

	bus.Publish(events.SessionStateChangedEvent{SessionID: "cam1", NewState: "starting", Reason: events.ReasonStarting})

	require.Eventually(t, hasType(tr, TypeDashboardUpdate), 2*time.Second, 10*time.Millisecond)
	for _, m := range tr.messages() {
		assert.NotEqual(t, TypeStreamStarted, m.Type)
	}
}

func TestBridgeAlertsGoToAdmins(t *testing.T) {
	bus := events.New()
	r := NewRegistry(testUsers, Options{})
	defer NewBridge(r).Attach(bus)()

	admin, adminTr := connect(t, r, "admin-token")
	viewer, viewerTr := connect(t, r, "viewer-token")
	_, err := r.Subscribe(admin.ID, []string{ChannelAdminAlerts})
	require.NoError(t, err)
	res, err := r.Subscribe(viewer.ID, []string{ChannelAdminAlerts, ChannelSystemStatus})
	require.NoError(t, err)
	require.Equal(t, []string{ChannelSystemStatus}, res.Subscribed)

	bus.Publish(events.AlertEvent{AlertType: "cpu_high", Severity: "warning", Value: 91, Threshold: 80})
	bus.Publish(events.HealthSummaryEvent{Overall: "warning"})

	assert.Eventually(t, hasType(adminTr, TypeSystemAlert), 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, hasType(viewerTr, TypeSystemStatus), 2*time.Second, 10*time.Millisecond)
	assert.False(t, hasType(viewerTr, TypeSystemAlert)())
}
