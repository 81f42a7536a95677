package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

func TestFinalizeIsDeterministic(t *testing.T) {
	state := &RunState{Iterations: 3}
	a := finalize(&Reply{Content: "  hello  ", Action: ActionCompleted}, state)
	b := finalize(&Reply{Content: "  hello  ", Action: ActionCompleted}, state)
	assert.Equal(t, a, b)
	assert.Equal(t, "hello", a.Content)
	assert.Equal(t, 3, a.Iterations)
}

func TestFinalizeMaxIterationsFallback(t *testing.T) {
	reply := finalize(&Reply{Action: ActionMaxIterations}, &RunState{Iterations: 6})
	assert.Equal(t, maxIterationsReply, reply.Content)
}

func TestFinalizeMaxIterationsSummarizesArtifacts(t *testing.T) {
	state := &RunState{
		Iterations: 6,
		Plan:       &strategy.Plan{Name: "golden cross", Symbol: "BTCUSDT", Timeframe: "1h"},
		Verdict:    &Verdict{Passed: true, Trades: 5, MinTrades: 3, ReturnPct: 1.8},
		SavedID:    "01ARZ",
	}
	reply := finalize(&Reply{Action: ActionMaxIterations}, state)
	assert.Contains(t, reply.Content, "golden cross")
	assert.Contains(t, reply.Content, "BTCUSDT")
	assert.Contains(t, reply.Content, "5 trade(s)")
	assert.Contains(t, reply.Content, "01ARZ")
}

func TestFinalizeAppendsAdvisoryOnFailedValidation(t *testing.T) {
	state := &RunState{
		Verdict: &Verdict{Passed: false, Trades: 1, MinTrades: 3},
	}
	reply := finalize(&Reply{Content: "saved your strategy", Action: ActionCompleted}, state)
	assert.Contains(t, reply.Content, "saved your strategy")
	assert.Contains(t, reply.Content, "not statistically meaningful")
	assert.Same(t, state.Verdict, reply.Validation)
}

func TestFinalizeSkipsAdvisoryOnPassedValidation(t *testing.T) {
	state := &RunState{
		Verdict: &Verdict{Passed: true, Trades: 10, MinTrades: 3, ReturnPct: 4.2},
	}
	reply := finalize(&Reply{Content: "saved", Action: ActionCompleted}, state)
	assert.Equal(t, "saved", reply.Content)
}

func TestFinalizeUnprofitableAdvisory(t *testing.T) {
	state := &RunState{
		Verdict: &Verdict{Passed: false, Trades: 8, MinTrades: 3, ReturnPct: -2.5},
	}
	reply := finalize(&Reply{Content: "saved", Action: ActionCompleted}, state)
	assert.Contains(t, reply.Content, "unprofitable")
}
