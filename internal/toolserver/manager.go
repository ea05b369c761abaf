package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/confirm"
	"github.com/toolgate/toolgate/internal/tracing"
)

// Manager owns the connected tool servers and routes gated invocations
// through the confirmation coordinator before calling out.
type Manager struct {
	mu          sync.RWMutex
	servers     map[string]*Server
	coordinator *confirm.Coordinator
	logger      *slog.Logger
	version     string
}

// NewManager creates a manager with no connected servers.
func NewManager(coordinator *confirm.Coordinator, logger *slog.Logger, version string) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		servers:     make(map[string]*Server),
		coordinator: coordinator,
		logger:      logger.With("component", "toolserver"),
		version:     version,
	}
}

// Connect dials, initializes, and registers every configured server.
// Servers that fail to connect are skipped with a logged error; one bad
// server must not take the gateway down.
func (m *Manager) Connect(ctx context.Context, configs []config.ServerConfig) {
	for _, cfg := range configs {
		client, err := dial(cfg)
		if err != nil {
			m.logger.Error("dial tool server failed", "server", cfg.Name, "error", err)
			continue
		}
		srv, err := connect(ctx, cfg, client, m.version)
		if err != nil {
			m.logger.Error("connect tool server failed", "server", cfg.Name, "error", err)
			continue
		}
		m.add(srv)
		m.logger.Info("tool server connected",
			"server", srv.name,
			"tools", len(srv.tools),
			"confirm_all", srv.confirmAll,
		)
	}
}

// add registers a connected server, replacing any previous connection with
// the same name.
func (m *Manager) add(srv *Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.servers[srv.name]; ok {
		_ = old.client.Close()
	}
	m.servers[srv.name] = srv
}

// Server returns the connected server with the given name.
func (m *Manager) Server(name string) (*Server, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[name]
	return srv, ok
}

// Names returns the names of all connected servers.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}

// Close disconnects all servers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, srv := range m.servers {
		if err := srv.client.Close(); err != nil {
			m.logger.Debug("close tool server", "server", name, "error", err)
		}
		delete(m.servers, name)
	}
}

// Invoke calls toolName on serverName. Gated tools first go through the
// confirmation coordinator; the call proceeds only when the settlement
// allows it. Awaiting the decision is bounded by ctx: cancelling ctx
// denies the pending confirmation.
func (m *Manager) Invoke(ctx context.Context, serverName, toolName string, args map[string]any) (string, error) {
	srv, ok := m.Server(serverName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServerNotFound, serverName)
	}

	ctx, span := tracing.StartSpan(ctx, "toolserver.invoke",
		attribute.String("server", serverName),
		attribute.String("tool", toolName),
	)
	defer span.End()

	if srv.Gated(toolName) {
		result, err := m.requestConfirmation(ctx, srv, toolName, args)
		if err != nil {
			return "", err
		}
		span.SetAttributes(attribute.String("confirmation", string(result)))
		if !result.Allowed() {
			return "", fmt.Errorf("%w: %s on %s", ErrConfirmationDenied, toolName, serverName)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	result, err := srv.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("toolserver: call %s on %s: %w", toolName, serverName, err)
	}
	text := flattenText(result)
	if result.IsError {
		return "", fmt.Errorf("%w: %s on %s: %s", ErrToolFailed, toolName, serverName, text)
	}
	return text, nil
}

// requestConfirmation registers the gated tool with the coordinator and
// awaits the shared settlement for this server.
func (m *Manager) requestConfirmation(ctx context.Context, srv *Server, toolName string, args map[string]any) (confirm.Result, error) {
	id, err := correlationID()
	if err != nil {
		return "", fmt.Errorf("toolserver: correlation id: %w", err)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("toolserver: marshal arguments: %w", err)
	}

	fut := m.coordinator.Request(ctx, srv.name, []confirm.ToolRequest{{
		ID:          id,
		Name:        toolName,
		Description: describeTool(srv, toolName),
		Arguments:   raw,
	}})

	result, err := fut.Await(ctx)
	if err != nil {
		return "", fmt.Errorf("toolserver: awaiting confirmation for %s: %w", srv.name, err)
	}
	return result, nil
}

func describeTool(srv *Server, toolName string) string {
	for _, t := range srv.tools {
		if t.Name == toolName {
			return t.Description
		}
	}
	return ""
}

// flattenText concatenates the text content blocks of a tool result.
func flattenText(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if c, ok := content.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += c.Text
		}
	}
	return out
}
