package agent

import "errors"

var (
	// errEmptyToolName marks a tool call whose JSON decoded but named
	// no tool. Surfaced through ParseResult.Err, never thrown.
	errEmptyToolName = errors.New("tool call has empty name")

	// ErrIterationLimit tags the soft failure of hitting the loop's
	// iteration cap. The loop resolves it to a best-effort result and
	// a warning; it is exported so callers can test for degraded runs.
	ErrIterationLimit = errors.New("iteration limit reached")
)
