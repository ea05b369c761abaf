// Package toolserver manages connections to remote MCP tool servers and
// gates their tool invocations behind the confirmation coordinator.
package toolserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolgate/toolgate/internal/config"
)

var (
	// ErrConfirmationDenied is returned when the user denies a gated tool
	// invocation.
	ErrConfirmationDenied = errors.New("tool invocation denied")

	// ErrServerNotFound is returned for invocations on an unknown server.
	ErrServerNotFound = errors.New("tool server not found")

	// ErrToolFailed is returned when the remote server reports a tool error.
	ErrToolFailed = errors.New("tool execution failed")
)

const initTimeout = 30 * time.Second

// rpcClient is the subset of the MCP client used by this package.
// *client.Client satisfies it; tests substitute a fake.
type rpcClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Server is one connected tool server.
type Server struct {
	name       string
	client     rpcClient
	tools      []mcp.Tool
	confirm    map[string]struct{}
	confirmAll bool
}

// Name returns the server's configured name.
func (s *Server) Name() string { return s.name }

// Tools returns the tool inventory fetched at connect time.
func (s *Server) Tools() []mcp.Tool { return s.tools }

// Gated reports whether toolName requires user confirmation.
func (s *Server) Gated(toolName string) bool {
	if s.confirmAll {
		return true
	}
	_, ok := s.confirm[toolName]
	return ok
}

// dial creates the MCP client for a server config. Transport validity is
// checked by config.Validate.
func dial(cfg config.ServerConfig) (rpcClient, error) {
	switch cfg.Transport {
	case "stdio":
		c, err := mcpclient.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("toolserver: start %s: %w", cfg.Name, err)
		}
		return c, nil
	case "http":
		c, err := mcpclient.NewStreamableHttpClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("toolserver: connect %s: %w", cfg.Name, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("toolserver: %s: unknown transport %q", cfg.Name, cfg.Transport)
	}
}

// connect initializes the MCP session and fetches the tool inventory.
func connect(ctx context.Context, cfg config.ServerConfig, client rpcClient, version string) (*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "toolgate", Version: version}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("toolserver: initialize %s: %w", cfg.Name, err)
	}

	listed, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("toolserver: list tools on %s: %w", cfg.Name, err)
	}

	confirm := make(map[string]struct{}, len(cfg.Confirm))
	for _, name := range cfg.Confirm {
		confirm[name] = struct{}{}
	}

	return &Server{
		name:       cfg.Name,
		client:     client,
		tools:      listed.Tools,
		confirm:    confirm,
		confirmAll: cfg.ConfirmAll,
	}, nil
}

// correlationID returns a random identifier for one gated tool request.
// IDs key the coordinator's tool index and must be unique across all
// pending confirmations.
func correlationID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
