package ws

import (
	"context"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// Relay forwards pipeline events from the bus to the hub. It runs until
// the context is canceled or both subscriptions close.
type Relay struct {
	hub *Hub
	bus *pipeline.EventBus
}

// NewRelay creates a relay between the bus and the hub
func NewRelay(hub *Hub, bus *pipeline.EventBus) *Relay {
	return &Relay{hub: hub, bus: bus}
}

// Run consumes bus subscriptions and broadcasts each event. Blocking;
// callers run it in a goroutine.
func (r *Relay) Run(ctx context.Context) {
	alerts, cancelAlerts := r.bus.SubscribeAlerts()
	defer cancelAlerts()
	statuses, cancelStatuses := r.bus.SubscribeStatus()
	defer cancelStatuses()

	for alerts != nil || statuses != nil {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			r.hub.BroadcastAlert(NewAlertMessage(event))
		case update, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			r.hub.BroadcastStatus(NewStatusMessage(update))
		}
	}
}
