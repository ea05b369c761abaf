// Package confirm implements the confirmation coordinator: a process-wide
// registry of pending user-authorization requests for tool invocations,
// keyed by tool server. Concurrent requests for the same server are
// deduplicated into a single outstanding prompt, and every associated
// structure is torn down exactly once on settlement.
package confirm

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// ToolRequest describes one tool awaiting approval. The coordinator treats
// it as an opaque payload; only ID participates in bookkeeping.
type ToolRequest struct {
	// ID uniquely identifies this request across all pending confirmations.
	ID string `json:"id"`

	// Name is the tool name as exposed by its server.
	Name string `json:"name"`

	// Description is a human-readable summary of what the tool will do.
	Description string `json:"description,omitempty"`

	// Arguments are the raw JSON arguments the tool will be invoked with.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Pending is a read-only snapshot of one pending confirmation.
type Pending struct {
	ServerID    string        `json:"server_id"`
	Tools       []ToolRequest `json:"tools"`
	ToolIDs     []string      `json:"tool_ids"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Observer is notified when confirmations are requested and settled.
// Callbacks run outside the registry lock, on the goroutine that triggered
// the transition; implementations must not block for long.
type Observer interface {
	ConfirmationRequested(p Pending)
	ConfirmationSettled(p Pending, result Result)
}

// entry is the registry record for one pending confirmation.
type entry struct {
	serverID    string
	tools       []ToolRequest
	toolIDs     []string
	future      *Future
	requestedAt time.Time

	// stop detaches the cancellation watcher on settlement through any
	// path, so a signal firing after manual resolution finds nothing to do.
	stop chan struct{}
}

func (e *entry) snapshot() Pending {
	return Pending{
		ServerID:    e.serverID,
		Tools:       e.tools,
		ToolIDs:     e.toolIDs,
		RequestedAt: e.requestedAt,
	}
}

// Coordinator is the registry of pending confirmations. It maintains three
// maps (pending entries by server, shared futures by server, and a reverse
// tool-to-server index) mutated together under one lock so that no partial
// state is ever observable.
//
// Per server the lifecycle is: unregistered → pending → unregistered.
// A server that requests confirmation again after settlement gets a fresh,
// independent entry.
type Coordinator struct {
	mu        sync.Mutex
	pending   map[string]*entry
	futures   map[string]*Future
	toolIndex map[string]string // tool ID → server ID

	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		pending:   make(map[string]*entry),
		futures:   make(map[string]*Future),
		toolIndex: make(map[string]string),
		logger:    logger.With("component", "confirm"),
		now:       time.Now,
	}
}

// AddObserver registers an observer. Must be called before the coordinator
// is shared between goroutines.
func (c *Coordinator) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Request asks for user confirmation of the given tools on serverID and
// returns a future that settles when the request is resolved, cancelled,
// or the context is cancelled. It never blocks.
//
// If a confirmation is already pending for serverID the existing future is
// returned unchanged and tools are ignored: at most one human-facing
// prompt exists per server at any time. If ctx is already cancelled at
// call time the returned future is settled to denied and nothing is
// registered.
func (c *Coordinator) Request(ctx context.Context, serverID string, tools []ToolRequest) *Future {
	if serverID == "" {
		c.logger.Warn("confirmation requested with empty server id")
		return settledFuture(ResultDenied)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if _, exists := c.pending[serverID]; exists {
		fut, ok := c.futures[serverID]
		c.mu.Unlock()
		if !ok {
			// A pending entry without a registered future should be
			// structurally unreachable. Settle denied rather than leave
			// the caller awaiting forever.
			c.logger.Warn("pending confirmation has no registered future",
				"server", serverID,
			)
			return settledFuture(ResultDenied)
		}
		return fut
	}

	if ctx.Err() != nil {
		c.mu.Unlock()
		c.logger.Debug("confirmation requested with cancelled context",
			"server", serverID,
		)
		return settledFuture(ResultDenied)
	}

	e := &entry{
		serverID:    serverID,
		tools:       tools,
		toolIDs:     toolIDs(tools),
		future:      newFuture(),
		requestedAt: c.now(),
		stop:        make(chan struct{}),
	}
	c.pending[serverID] = e
	c.futures[serverID] = e.future
	for _, id := range e.toolIDs {
		c.toolIndex[id] = serverID
	}
	c.mu.Unlock()

	if ctx.Done() != nil {
		go c.watchCancellation(ctx, e)
	}

	snap := e.snapshot()
	for _, o := range c.observers {
		o.ConfirmationRequested(snap)
	}
	return e.future
}

// Resolve settles the pending confirmation for serverID with result and
// removes all associated bookkeeping. An empty result defaults to
// ResultAllowOnce. Resolving a server with no pending confirmation is
// tolerated: a diagnostic is logged and false is returned.
func (c *Coordinator) Resolve(serverID string, result Result) bool {
	if result == "" {
		result = ResultAllowOnce
	}

	c.mu.Lock()
	e, ok := c.pending[serverID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("resolve for unknown server", "server", serverID)
		return false
	}
	c.settleLocked(e, result)
	c.mu.Unlock()

	snap := e.snapshot()
	for _, o := range c.observers {
		o.ConfirmationSettled(snap, result)
	}
	return true
}

// Cancel denies the pending confirmation for serverID. Equivalent to
// Resolve(serverID, ResultDenied).
func (c *Coordinator) Cancel(serverID string) bool {
	return c.Resolve(serverID, ResultDenied)
}

// ResolveTool settles the confirmation that owns toolID.
//
// Deprecated: legacy alias for callers that only know the tool ID. New call
// sites should look up the server and use Resolve directly.
func (c *Coordinator) ResolveTool(toolID string, result Result) bool {
	c.mu.Lock()
	serverID, ok := c.toolIndex[toolID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("resolve for unknown tool", "tool", toolID)
		return false
	}
	return c.Resolve(serverID, result)
}

// Pending returns a snapshot of all pending confirmations. Iteration order
// is unspecified; callers must not rely on it.
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pending, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e.snapshot())
	}
	return out
}

// IsPending reports whether serverID has a pending confirmation.
func (c *Coordinator) IsPending(serverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[serverID]
	return ok
}

// ServerForTool returns the server that owns the pending tool ID.
func (c *Coordinator) ServerForTool(toolID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	serverID, ok := c.toolIndex[toolID]
	return serverID, ok
}

// settleLocked settles e's future and removes the entry, its tool-index
// rows, and its cancellation watcher in one step. Callers hold c.mu.
func (c *Coordinator) settleLocked(e *entry, result Result) {
	e.future.settle(result)
	delete(c.pending, e.serverID)
	delete(c.futures, e.serverID)
	for _, id := range e.toolIDs {
		delete(c.toolIndex, id)
	}
	close(e.stop)
}

// watchCancellation denies the entry when the caller's context is
// cancelled. The entry identity check makes the watcher generation-safe:
// a signal firing after settlement is a no-op, even if the same server
// already has a fresh pending entry.
func (c *Coordinator) watchCancellation(ctx context.Context, e *entry) {
	select {
	case <-e.stop:
		return
	case <-ctx.Done():
	}

	c.mu.Lock()
	cur, ok := c.pending[e.serverID]
	if !ok || cur != e {
		c.mu.Unlock()
		return
	}
	c.settleLocked(e, ResultDenied)
	c.mu.Unlock()

	c.logger.Debug("confirmation cancelled by signal", "server", e.serverID)
	snap := e.snapshot()
	for _, o := range c.observers {
		o.ConfirmationSettled(snap, ResultDenied)
	}
}

func toolIDs(tools []ToolRequest) []string {
	ids := make([]string, 0, len(tools))
	for _, t := range tools {
		ids = append(ids, t.ID)
	}
	return ids
}
