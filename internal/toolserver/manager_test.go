package toolserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolgate/toolgate/internal/confirm"
)

// fakeClient implements rpcClient and records calls.
type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	result  *mcp.CallToolResult
	callErr error
	closed  bool
}

func (f *fakeClient) Initialize(_ context.Context, _ mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, nil
}

func (f *fakeClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{}, nil
}

func (f *fakeClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Params.Name)
	f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok"}}}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testManager(t *testing.T, srv *Server) (*Manager, *confirm.Coordinator) {
	t.Helper()
	coordinator := confirm.NewCoordinator(nil)
	m := NewManager(coordinator, nil, "test")
	m.add(srv)
	return m, coordinator
}

func gatedServer(client rpcClient, gated ...string) *Server {
	confirmSet := make(map[string]struct{}, len(gated))
	for _, name := range gated {
		confirmSet[name] = struct{}{}
	}
	return &Server{
		name:    "files",
		client:  client,
		confirm: confirmSet,
		tools: []mcp.Tool{
			{Name: "read_file", Description: "Read a file"},
			{Name: "delete_file", Description: "Delete a file"},
		},
	}
}

func TestServer_Gated(t *testing.T) {
	t.Parallel()

	srv := gatedServer(&fakeClient{}, "delete_file")
	if srv.Gated("read_file") {
		t.Error("read_file should not be gated")
	}
	if !srv.Gated("delete_file") {
		t.Error("delete_file should be gated")
	}

	all := &Server{name: "x", confirmAll: true}
	if !all.Gated("anything") {
		t.Error("confirm_all should gate every tool")
	}
}

func TestManager_InvokeUngated(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, coordinator := testManager(t, gatedServer(client, "delete_file"))

	out, err := m.Invoke(context.Background(), "files", "read_file", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("output: got %q, want ok", out)
	}
	if client.callCount() != 1 {
		t.Errorf("calls: got %d, want 1", client.callCount())
	}
	if len(coordinator.Pending()) != 0 {
		t.Error("ungated invocation must not touch the coordinator")
	}
}

func TestManager_InvokeGatedApproved(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, coordinator := testManager(t, gatedServer(client, "delete_file"))

	// Approve as soon as the confirmation shows up.
	go func() {
		for range 200 {
			if coordinator.Resolve("files", confirm.ResultApproved) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out, err := m.Invoke(context.Background(), "files", "delete_file", map[string]any{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("output: got %q", out)
	}
	if client.callCount() != 1 {
		t.Errorf("calls: got %d, want 1", client.callCount())
	}
}

func TestManager_InvokeGatedDenied(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, coordinator := testManager(t, gatedServer(client, "delete_file"))

	go func() {
		for range 200 {
			if coordinator.Cancel("files") {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, err := m.Invoke(context.Background(), "files", "delete_file", nil)
	if !errors.Is(err, ErrConfirmationDenied) {
		t.Fatalf("expected ErrConfirmationDenied, got %v", err)
	}
	if client.callCount() != 0 {
		t.Error("denied invocation must not reach the server")
	}
}

func TestManager_InvokeGatedCancelledContext(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, coordinator := testManager(t, gatedServer(client, "delete_file"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := m.Invoke(ctx, "files", "delete_file", nil)
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if client.callCount() != 0 {
		t.Error("cancelled invocation must not reach the server")
	}
	waitForEmpty(t, coordinator)
}

func TestManager_SingleFlightAcrossInvocations(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, coordinator := testManager(t, gatedServer(client, "delete_file"))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = m.Invoke(context.Background(), "files", "delete_file", nil)
		}()
	}

	// Wait until the first invocation registers, then confirm there is
	// exactly one pending entry despite two callers.
	waitForPending(t, coordinator, "files")
	time.Sleep(20 * time.Millisecond)
	if got := len(coordinator.Pending()); got != 1 {
		t.Errorf("pending entries: got %d, want 1", got)
	}

	coordinator.Resolve("files", confirm.ResultAllowOnce)
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("invocation %d: %v", i, err)
		}
	}
	if client.callCount() != 2 {
		t.Errorf("calls: got %d, want 2", client.callCount())
	}
}

func TestManager_InvokeUnknownServer(t *testing.T) {
	t.Parallel()

	m, _ := testManager(t, gatedServer(&fakeClient{}))
	_, err := m.Invoke(context.Background(), "ghost", "read_file", nil)
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("expected ErrServerNotFound, got %v", err)
	}
}

func TestManager_ToolError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "disk full"}},
	}}
	m, _ := testManager(t, gatedServer(client))

	_, err := m.Invoke(context.Background(), "files", "read_file", nil)
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, _ := testManager(t, gatedServer(client))
	m.Close()

	client.mu.Lock()
	closed := client.closed
	client.mu.Unlock()
	if !closed {
		t.Error("close must disconnect clients")
	}
	if len(m.Names()) != 0 {
		t.Error("no servers should remain after close")
	}
}

func waitForPending(t *testing.T, c *confirm.Coordinator, serverID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsPending(serverID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("confirmation never became pending")
}

func waitForEmpty(t *testing.T, c *confirm.Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Pending()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("coordinator registry never drained")
}
