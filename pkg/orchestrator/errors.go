package orchestrator

import (
	"errors"
	"fmt"
)

// ErrRunCancelled reports that the run's context ended before completion.
var ErrRunCancelled = errors.New("run cancelled")

// UnknownToolError reports a planner request for a tool that is not
// registered. The planner's view of the world is wrong, so the run ends
// rather than looping on a call that can never succeed.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool %q", e.Tool) }
