package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratagem-ai/stratagem/pkg/logging"
)

func submitAsync(g *Gate, ctx context.Context, req Request) (<-chan Decision, <-chan error) {
	decisions := make(chan Decision, 1)
	errs := make(chan error, 1)
	go func() {
		d, err := g.Submit(ctx, req)
		decisions <- d
		errs <- err
	}()
	return decisions, errs
}

func waitPending(t *testing.T, g *Gate) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if len(g.Pending()) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("request never became pending")
}

func TestGateApprove(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	decisions, errs := submitAsync(g, context.Background(), Request{CallID: "c1", ToolName: "save_strategy"})

	waitPending(t, g)
	require.NoError(t, g.Resolve("c1", Decision{Status: StatusApproved, DecidedBy: "alice"}))

	d := <-decisions
	require.NoError(t, <-errs)
	assert.Equal(t, StatusApproved, d.Status)
	assert.Equal(t, "alice", d.DecidedBy)
	assert.Empty(t, g.Pending(), "resolved request must leave the pending list")
}

func TestGateReject(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	decisions, errs := submitAsync(g, context.Background(), Request{CallID: "c1"})

	waitPending(t, g)
	require.NoError(t, g.Resolve("c1", Decision{Status: StatusRejected, Reason: "nope"}))

	d := <-decisions
	require.NoError(t, <-errs)
	assert.Equal(t, StatusRejected, d.Status)
	assert.Equal(t, "nope", d.Reason)
}

func TestGateTimeout(t *testing.T) {
	g := NewGate(20*time.Millisecond, logging.Nop())

	d, err := g.Submit(context.Background(), Request{CallID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, d.Status)
}

func TestGateContextCancellation(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	decisions, errs := submitAsync(g, ctx, Request{CallID: "c1"})
	waitPending(t, g)
	cancel()

	<-decisions
	err := <-errs
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateResolveIsIdempotent(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	decisions, errs := submitAsync(g, context.Background(), Request{CallID: "c1"})

	waitPending(t, g)
	require.NoError(t, g.Resolve("c1", Decision{Status: StatusApproved}))
	// Second resolve races request cleanup; either "already resolved" or
	// "no pending" is acceptable, never a second delivery.
	err := g.Resolve("c1", Decision{Status: StatusRejected})
	assert.Error(t, err)

	d := <-decisions
	require.NoError(t, <-errs)
	assert.Equal(t, StatusApproved, d.Status, "first decision wins")
}

func TestGateResolveUnknownCall(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	err := g.Resolve("ghost", Decision{Status: StatusApproved})
	assert.Error(t, err)
}

func TestGateRejectsInvalidStatus(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	err := g.Resolve("c1", Decision{Status: StatusTimedOut})
	assert.Error(t, err, "operators cannot hand-deliver a timeout")
}

func TestGateDuplicateSubmit(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	_, errsA := submitAsync(g, context.Background(), Request{CallID: "c1"})
	waitPending(t, g)

	_, err := g.Submit(context.Background(), Request{CallID: "c1"})
	assert.Error(t, err)

	require.NoError(t, g.Resolve("c1", Decision{Status: StatusApproved}))
	require.NoError(t, <-errsA)
}

func TestGatePendingOrderedByAge(t *testing.T) {
	g := NewGate(time.Minute, logging.Nop())
	base := time.Now()

	var wg sync.WaitGroup
	for i, id := range []string{"b", "a", "c"} {
		wg.Add(1)
		req := Request{CallID: id, RequestedAt: base.Add(time.Duration(i) * time.Second)}
		go func() {
			defer wg.Done()
			_, _ = g.Submit(context.Background(), req)
		}()
	}

	for i := 0; i < 200; i++ {
		if len(g.Pending()) == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	pending := g.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "b", pending[0].CallID)
	assert.Equal(t, "a", pending[1].CallID)
	assert.Equal(t, "c", pending[2].CallID)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.Resolve(id, Decision{Status: StatusRejected}))
	}
	wg.Wait()
}
