// Package bus provides the message bus the orchestration service publishes
// run and approval notifications on. The default implementation uses NATS,
// with an in-memory option for tests and single-process deployments.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// Subjects carrying orchestration notifications. Run events append the
// conversation id as the final token, so "stratagem.run.>" receives every
// run's stream.
const (
	SubjectRunPrefix        = "stratagem.run"
	SubjectApprovalPending  = "stratagem.approval.pending"
	SubjectApprovalResolved = "stratagem.approval.resolved"
)

// RunSubject returns the subject for one conversation's run events.
func RunSubject(conversationID string) string {
	return SubjectRunPrefix + "." + conversationID
}

// MessageBus fans orchestration notifications out to interested consumers.
// Implementations must be safe for concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// It returns without waiting for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Subjects support NATS wildcards: "*" for one token, ">" for the rest.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(msg *Message)

// Message is a delivered bus message.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL. Empty selects the in-memory bus.
	URL string

	// Name is a client identifier for debugging and monitoring.
	Name string

	// Timeout is the connect timeout for remote buses.
	Timeout time.Duration
}

// New creates a bus from config: NATS when a URL is set, in-memory otherwise.
func New(cfg Config) (MessageBus, error) {
	if cfg.URL == "" {
		return NewMemoryBus(), nil
	}
	return NewNATSBus(cfg)
}
