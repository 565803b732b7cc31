package agent

import (
	"encoding/json"
	"strings"
)

// Sentinel marks a tool-call request embedded in the model's output.
// The contract with the model allows at most one per response; only
// the first occurrence is honored.
const Sentinel = "TOOL_CALL:"

// ParseStatus classifies a model response.
type ParseStatus int

// Parse outcomes. All three are values, never errors: a malformed
// tool call must not crash the loop, it degrades to "no call".
const (
	// ParseNotFound means the response contains no sentinel; the text
	// is the final answer.
	ParseNotFound ParseStatus = iota
	// ParseFound means a well-formed tool call was extracted.
	ParseFound
	// ParseMalformed means the sentinel is present but the payload is
	// not a usable invocation. The loop logs it and treats the
	// response as an unparseable final answer.
	ParseMalformed
)

// String returns the string representation of the parse status.
func (s ParseStatus) String() string {
	switch s {
	case ParseNotFound:
		return "not_found"
	case ParseFound:
		return "found"
	case ParseMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ToolCall is one structured invocation request extracted from a
// model response. It lives for a single loop iteration.
type ToolCall struct {
	Name       string
	Parameters map[string]any
}

// ParseResult is the three-way tagged result of ParseToolCall.
type ParseResult struct {
	Status ParseStatus
	Call   ToolCall // valid only when Status == ParseFound
	Pre    string   // text preceding the sentinel: optional interim status
	Err    error    // parse failure detail when Status == ParseMalformed
}

// ParseToolCall extracts a tool-call request from model output text.
// Pure function: no logging, no side effects, never panics.
//
// The payload after the sentinel is decoded as a single JSON object
// {"name": ..., "parameters": {...}}; trailing prose after the object
// is tolerated and ignored.
func ParseToolCall(text string) ParseResult {
	idx := strings.Index(text, Sentinel)
	if idx < 0 {
		return ParseResult{Status: ParseNotFound}
	}

	pre := strings.TrimSpace(text[:idx])
	payload := text[idx+len(Sentinel):]

	var raw struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&raw); err != nil {
		return ParseResult{Status: ParseMalformed, Pre: pre, Err: err}
	}
	if raw.Name == "" {
		return ParseResult{Status: ParseMalformed, Pre: pre, Err: errEmptyToolName}
	}

	params := raw.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return ParseResult{
		Status: ParseFound,
		Call:   ToolCall{Name: raw.Name, Parameters: params},
		Pre:    pre,
	}
}
