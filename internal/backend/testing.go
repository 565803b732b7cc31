package backend

import (
	"context"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Test doubles shared by the package tests.

// fakeSession is a scripted Session. Zero value serves an empty
// catalog and echoes calls back successfully.
type fakeSession struct {
	mu sync.Mutex

	tools     []*mcp.Tool
	listErr   error
	callErr   error
	result    *mcp.CallToolResult
	listCalls int
	callCalls int
	closed    bool
}

func (s *fakeSession) ListTools(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &mcp.ListToolsResult{Tools: s.tools}, nil
}

func (s *fakeSession) CallTool(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCalls++
	if s.callErr != nil {
		return nil, s.callErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "ok: " + params.Name}},
	}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) setListErr(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func (s *fakeSession) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer returns scripted sessions in sequence. Once the script is
// exhausted it keeps returning the last entry (or error).
type fakeDialer struct {
	mu     sync.Mutex
	script []dialResult
	dials  []Credential
}

type dialResult struct {
	session *fakeSession
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, cred Credential) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, cred)
	if len(d.script) == 0 {
		return &fakeSession{}, nil
	}
	next := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.session, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dialCredentials() []Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	creds := make([]Credential, len(d.dials))
	copy(creds, d.dials)
	return creds
}
