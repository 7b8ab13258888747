// Package service hosts the ruleset engine's MCP server over stdio or HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/platform/timeouts"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/louisbranch/wfrp3e/internal/ruleset/initiative"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/netutil"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "WFRP3e Ruleset MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
	// defaultHTTPAddr binds the HTTP transport to localhost.
	defaultHTTPAddr = "localhost:8081"
	// defaultMaxConnections caps concurrent HTTP connections.
	defaultMaxConnections = 64
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves MCP over streamable HTTP.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	HTTPAddr  string // HTTP server address (e.g., "localhost:8081").
	// MaxConnections caps concurrent HTTP connections; zero uses the default.
	MaxConnections int
}

// Engine bundles the ruleset services exposed as tools.
type Engine struct {
	Docs       storage.DocumentStore
	Messages   storage.MessageStore
	Checks     *check.Service
	Initiative *initiative.Roller
	// Catalog renders warnings; nil uses the base locale.
	Catalog *i18n.Catalog
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server for the engine.
func New(engine Engine) (*Server, error) {
	if engine.Docs == nil || engine.Messages == nil || engine.Checks == nil || engine.Initiative == nil {
		return nil, fmt.Errorf("engine is not fully configured")
	}
	if engine.Catalog == nil {
		engine.Catalog = i18n.GetCatalog(i18n.BaseLocale)
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerDocumentTools(mcpServer, engine)
	registerCheckTools(mcpServer, engine)
	registerEffectTools(mcpServer, engine)
	registerInitiativeTools(mcpServer, engine)
	registerMessageTools(mcpServer, engine)
	return &Server{mcpServer: mcpServer}, nil
}

// Run creates and serves the MCP server until the context ends.
func Run(ctx context.Context, cfg Config, engine Engine) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	server, err := New(engine)
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		ln, err := listen(cfg.HTTPAddr, cfg.MaxConnections)
		if err != nil {
			return err
		}
		return server.serveHTTP(ctx, ln)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler for the streamable transport and health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil))
	mux.HandleFunc("/mcp/health", handleHealth)
	return mux
}

// listen binds addr and caps its concurrent connections.
func listen(addr string, maxConns int) (net.Listener, error) {
	if addr == "" {
		addr = defaultHTTPAddr
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return netutil.LimitListener(ln, maxConns), nil
}

// serveHTTP serves the streamable HTTP transport on ln until ctx ends.
func (s *Server) serveHTTP(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	log.Printf("Starting MCP HTTP server on %s", ln.Addr())
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// handleHealth handles GET /mcp/health.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
