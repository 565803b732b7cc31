// Package devserver is a self-contained task backend for local
// development and tests. It speaks MCP over the streamable HTTP
// transport, authenticates bearer credentials, and keeps tasks in
// memory partitioned by user database, so a full todd stack can run
// without the production backend.
package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toddbot/todd/internal/backend"
)

// databaseHeader names the request header carrying the acting user's
// namespace.
const databaseHeader = "X-Todd-Database"

// defaultNamespace holds tasks for requests that carry no database
// header, such as the shared base session.
const defaultNamespace = "default"

// TokenVerifier validates a user bearer credential. *auth.Provider
// satisfies it.
type TokenVerifier interface {
	Verify(token string) (*backend.UserContext, error)
}

// Config holds devserver construction parameters.
type Config struct {
	Name         string
	Version      string
	ServiceToken string        // always-accepted credential for the base session
	Verifier     TokenVerifier // optional; accepts per-user tokens when set
	Logger       *slog.Logger
}

// Server exposes the task tools over MCP. Each namespace gets its own
// *mcp.Server instance sharing one TaskStore, so sessions for
// different users are isolated without separate processes.
type Server struct {
	name         string
	version      string
	serviceToken string
	verifier     TokenVerifier
	logger       *slog.Logger
	store        *TaskStore

	mu      sync.Mutex
	servers map[string]*mcp.Server
}

// NewServer creates a devserver.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.ServiceToken == "" {
		return nil, errors.New("service token is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		name:         cfg.Name,
		version:      cfg.Version,
		serviceToken: cfg.ServiceToken,
		verifier:     cfg.Verifier,
		logger:       logger,
		store:        NewTaskStore(),
		servers:      make(map[string]*mcp.Server),
	}, nil
}

// Store returns the shared task store, used by tests to seed state.
func (s *Server) Store() *TaskStore {
	return s.store
}

// MCPServer returns the MCP server for one namespace, creating and
// registering its tools on first use. Useful directly with in-memory
// transports in tests; HTTP traffic goes through Handler.
func (s *Server) MCPServer(namespace string) *mcp.Server {
	if namespace == "" {
		namespace = defaultNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if srv, ok := s.servers[namespace]; ok {
		return srv
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    s.name,
		Version: s.version,
	}, nil)
	registerTaskTools(srv, s.store, namespace)
	s.servers[namespace] = srv

	s.logger.Debug("created namespace server", "namespace", namespace)
	return srv
}

// Handler returns the HTTP handler: bearer authentication wrapping the
// streamable MCP transport, routed to the namespace server named by
// the database header.
func (s *Server) Handler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.MCPServer(req.Header.Get(databaseHeader))
	}, nil)

	return s.authenticate(streamable)
}

// authenticate rejects requests without an acceptable bearer
// credential. The service token is always accepted; user JWTs are
// accepted when a verifier is configured, and their database claim
// must match the database header when both are present.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.reject(w, "missing bearer credential")
			return
		}

		if token == s.serviceToken {
			next.ServeHTTP(w, r)
			return
		}

		if s.verifier == nil {
			s.reject(w, "unknown credential")
			return
		}
		user, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			s.reject(w, "invalid credential")
			return
		}
		if ns := r.Header.Get(databaseHeader); ns != "" && ns != user.Database {
			s.reject(w, "database mismatch")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) reject(w http.ResponseWriter, reason string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="todd"`)
	http.Error(w, reason, http.StatusUnauthorized)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
