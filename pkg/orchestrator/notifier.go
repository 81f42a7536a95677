package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stratagem-ai/stratagem/pkg/bus"
	"github.com/stratagem-ai/stratagem/pkg/telemetry"
)

// Notifier fans run events out to the in-process telemetry hub and, when a
// bus is configured, to external subscribers. Delivery is best effort and
// never blocks or fails the run.
type Notifier struct {
	Hub *telemetry.Hub
	Bus bus.MessageBus
}

// Emit publishes one event.
func (n *Notifier) Emit(event telemetry.Event) {
	if n == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if n.Hub != nil {
		n.Hub.Publish(event)
	}
	if n.Bus == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if event.ConversationID != "" {
		_ = n.Bus.Publish(ctx, bus.RunSubject(event.ConversationID), data)
	}
	switch event.Type {
	case telemetry.EventApprovalRequested:
		_ = n.Bus.Publish(ctx, bus.SubjectApprovalPending, data)
	case telemetry.EventApprovalResolved, telemetry.EventApprovalTimedOut:
		_ = n.Bus.Publish(ctx, bus.SubjectApprovalResolved, data)
	}
}

// event is a convenience constructor for run-scoped events.
func (n *Notifier) event(t telemetry.EventType, conversationID, callID string, data map[string]any) {
	n.Emit(telemetry.Event{
		Type:           t,
		ConversationID: conversationID,
		CallID:         callID,
		Data:           data,
	})
}
