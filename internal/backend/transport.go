package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Credential carries what a single dial needs to authenticate.
// The base session dials with the service token and no database; a
// per-user sub-session dials with the user's bearer token and their
// namespace.
type Credential struct {
	Token    string
	Database string
}

// Session is the subset of an MCP client session the Manager uses.
// *mcp.ClientSession satisfies it; tests substitute scripted fakes.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens authenticated MCP sessions against the backend.
type Dialer interface {
	Dial(ctx context.Context, cred Credential) (Session, error)
}

// HTTPDialer dials the backend's streamable HTTP MCP endpoint.
type HTTPDialer struct {
	Endpoint       string
	ConnectTimeout time.Duration
	ClientName     string
	ClientVersion  string
}

// databaseHeader carries the acting user's namespace on every request.
const databaseHeader = "X-Todd-Database"

// Dial opens one MCP session authenticated with cred. The bearer
// credential travels in the Authorization header of every request the
// session makes, injected by a wrapping RoundTripper.
func (d *HTTPDialer) Dial(ctx context.Context, cred Credential) (Session, error) {
	if d.Endpoint == "" {
		return nil, &PreconditionError{Reason: "dialer endpoint is empty"}
	}

	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    d.ClientName,
		Version: d.ClientVersion,
	}, nil)

	transport := &mcp.StreamableClientTransport{
		Endpoint: d.Endpoint,
		HTTPClient: &http.Client{
			Transport: &bearerTransport{cred: cred, base: http.DefaultTransport},
		},
	}

	session, err := client.Connect(dialCtx, transport, nil)
	if err != nil {
		return nil, classifyTransport("dial", fmt.Errorf("connecting to %s: %w", d.Endpoint, err))
	}
	return session, nil
}

// bearerTransport injects the bearer credential (and the user's
// namespace, when set) into every outgoing request, and converts
// credential rejections into typed AuthErrors at the transport
// boundary so callers classify them with errors.As.
type bearerTransport struct {
	cred Credential
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Per RoundTripper contract, the request must not be mutated.
	clone := req.Clone(req.Context())
	if t.cred.Token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.cred.Token)
	}
	if t.cred.Database != "" {
		clone.Header.Set(databaseHeader, t.cred.Database)
	}

	resp, err := t.base.RoundTrip(clone)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		status := resp.StatusCode
		_ = resp.Body.Close()
		return nil, &AuthError{Status: status}
	}
	return resp, nil
}
