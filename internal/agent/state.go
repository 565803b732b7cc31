package agent

import "time"

// Role identifies who produced a conversation turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ToolResult records one tool invocation's outcome within a run.
type ToolResult struct {
	Tool    string
	Content string
	IsError bool
}

// State is the working state of a single loop execution. It is
// created at loop entry, mutated append-only while the loop runs, and
// discarded at loop exit; persistence is the caller's concern.
type State struct {
	Input       string
	Turns       []Turn
	Done        bool
	Output      string
	ToolResults []ToolResult
}

// newState seeds the conversation with any prior history followed by
// the user's input. The history slice is copied, never aliased.
func newState(history []Turn, input string) *State {
	s := &State{Input: input}
	s.Turns = append(s.Turns, history...)
	s.append(RoleUser, input)
	return s
}

// append adds a turn to the history. History is append-only within
// one execution: turns are never mutated in place.
func (s *State) append(role Role, content string) {
	s.Turns = append(s.Turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// lastAssistant returns the content of the most recent assistant
// turn, or the empty string if the model never answered.
func (s *State) lastAssistant() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i].Content
		}
	}
	return ""
}
