package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toddbot/todd/internal/backend"
)

// buildSystemPrompt renders the system prompt from the discovered
// tool catalog. The prompt pins the tool-call contract the parser
// expects: at most one sentinel per response, parameters as a JSON
// object, plain text for the final answer.
func buildSystemPrompt(tools []backend.ToolDescriptor) string {
	var b strings.Builder

	b.WriteString("You are todd, a terminal assistant that manages the user's task list.\n")
	b.WriteString("You can call the tools listed below against the task backend.\n\n")

	if len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			if t.InputSchema != nil {
				if schema, err := json.Marshal(t.InputSchema); err == nil {
					fmt.Fprintf(&b, "  input schema: %s\n", schema)
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("To call a tool, respond with exactly one line of the form:\n")
	b.WriteString(`  ` + Sentinel + ` {"name": "<tool name>", "parameters": {...}}` + "\n")
	b.WriteString("You may put a short status note for the user before the marker.\n")
	b.WriteString("At most one tool call per response. Tool results arrive as the\n")
	b.WriteString("next conversation turn; a failed tool call is reported the same\n")
	b.WriteString("way so you can adjust and retry or answer without it.\n")
	b.WriteString("When no tool is needed, answer the user directly in plain text\n")
	b.WriteString("with no marker.\n")

	return b.String()
}
