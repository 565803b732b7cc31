package backend

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// callAsUser satisfies one Invoke by opening a fresh sub-session
// authenticated as the acting user, issuing exactly one CallTool, and
// closing the sub-session in all cases before returning. Concurrent
// invocations for different users each get their own sub-session and
// never contend on the shared base session.
func (m *Manager) callAsUser(ctx context.Context, tool string, params map[string]any, user *UserContext) (string, error) {
	sub, err := m.dialer.Dial(ctx, Credential{
		Token:    user.Token,
		Database: user.Database,
	})
	if err != nil {
		return "", classifyTransport("dial", err)
	}
	defer func() {
		if closeErr := sub.Close(); closeErr != nil {
			m.logger.Debug("closing user sub-session", "error", closeErr)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	m.logger.Debug("invoking tool",
		"tool", tool,
		"user", user.Username,
		"database", user.Database)

	result, err := sub.CallTool(callCtx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: params,
	})
	if err != nil {
		return "", classifyTransport("call", err)
	}

	text := textContent(result)
	if result.IsError {
		return "", &ToolError{Tool: tool, Message: text}
	}
	return text, nil
}
