// Package approval implements the human gate for side-effecting tool calls.
// A run blocks on the gate until an operator decides, the timeout fires, or
// the run's context is cancelled.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stratagem-ai/stratagem/pkg/logging"
)

// Status is the resolution state of an approval request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusTimedOut Status = "TIMED_OUT"
)

// DefaultTimeout bounds how long a run waits for a decision.
const DefaultTimeout = 10 * time.Minute

// Request describes a pending approval as shown to operators.
type Request struct {
	CallID         string         `json:"call_id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	ToolName       string         `json:"tool_name"`
	ToolLabel      string         `json:"tool_label"`
	Params         map[string]any `json:"params,omitempty"`
	RequestedAt    time.Time      `json:"requested_at"`
}

// Decision is an operator's resolution of a request. An approval may carry
// parameter overrides that the caller merges into the tool's execution
// payload.
type Decision struct {
	Status    Status         `json:"status"`
	DecidedBy string         `json:"decided_by,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}

type record struct {
	req      Request
	decision chan Decision
	once     sync.Once
}

// Gate tracks pending approval requests in memory. Requests do not survive a
// restart; a restarted process has no goroutine left to resume anyway.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*record
	timeout time.Duration
	logger  *logging.Logger
}

// NewGate creates a gate with the given decision timeout. A non-positive
// timeout falls back to DefaultTimeout.
func NewGate(timeout time.Duration, logger *logging.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Gate{
		pending: make(map[string]*record),
		timeout: timeout,
		logger:  logger,
	}
}

// Submit registers the request and blocks until it is resolved, times out,
// or ctx is cancelled. Context cancellation is reported as an error; the
// other outcomes are decisions.
func (g *Gate) Submit(ctx context.Context, req Request) (Decision, error) {
	if req.CallID == "" {
		return Decision{}, fmt.Errorf("approval request needs a call id")
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	rec := &record{req: req, decision: make(chan Decision, 1)}

	g.mu.Lock()
	if _, exists := g.pending[req.CallID]; exists {
		g.mu.Unlock()
		return Decision{}, fmt.Errorf("approval already pending for call %s", req.CallID)
	}
	g.pending[req.CallID] = rec
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, req.CallID)
		g.mu.Unlock()
	}()

	g.logger.Info(logging.CategoryApproval, "approval_requested", "waiting for operator decision", map[string]any{
		"call_id": req.CallID,
		"tool":    req.ToolName,
		"user_id": req.UserID,
	})

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case d := <-rec.decision:
		return d, nil
	case <-timer.C:
		// First writer wins; a racing Resolve that already landed a
		// decision takes precedence over the timeout.
		d := g.settle(rec, Decision{Status: StatusTimedOut, Reason: "approval timed out", DecidedAt: time.Now()})
		return d, nil
	case <-ctx.Done():
		g.settle(rec, Decision{Status: StatusTimedOut, Reason: "run cancelled", DecidedAt: time.Now()})
		return Decision{}, ctx.Err()
	}
}

// settle records d unless a decision already landed, then returns whichever
// decision won.
func (g *Gate) settle(rec *record, d Decision) Decision {
	rec.once.Do(func() {
		rec.decision <- d
	})
	return <-rec.decision
}

// Resolve delivers an operator decision for a pending request. Only the
// first resolution takes effect; later calls for the same request return an
// error so double-clicking an approve button stays harmless.
func (g *Gate) Resolve(callID string, d Decision) error {
	if d.Status != StatusApproved && d.Status != StatusRejected {
		return fmt.Errorf("invalid decision status %q", d.Status)
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}

	g.mu.Lock()
	rec, ok := g.pending[callID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval for call %s", callID)
	}

	delivered := false
	rec.once.Do(func() {
		rec.decision <- d
		delivered = true
	})
	if !delivered {
		return fmt.Errorf("approval for call %s already resolved", callID)
	}

	g.logger.Info(logging.CategoryApproval, "approval_resolved", "operator decision recorded", map[string]any{
		"call_id":    callID,
		"status":     string(d.Status),
		"decided_by": d.DecidedBy,
	})
	return nil
}

// Pending lists requests still waiting for a decision, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	reqs := make([]Request, 0, len(g.pending))
	for _, rec := range g.pending {
		reqs = append(reqs, rec.req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.Before(reqs[j].RequestedAt) })
	return reqs
}
