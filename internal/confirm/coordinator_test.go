package confirm

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

func testTools(ids ...string) []ToolRequest {
	tools := make([]ToolRequest, 0, len(ids))
	for _, id := range ids {
		tools = append(tools, ToolRequest{ID: id, Name: "tool-" + id})
	}
	return tools
}

// recordingObserver captures notifications for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	requested []Pending
	settled   []Pending
	results   []Result
}

func (r *recordingObserver) ConfirmationRequested(p Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested = append(r.requested, p)
}

func (r *recordingObserver) ConfirmationSettled(p Pending, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, p)
	r.results = append(r.results, result)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	first := c.Request(context.Background(), "s1", testTools("t1", "t2"))
	second := c.Request(context.Background(), "s1", testTools("t3"))

	if first != second {
		t.Fatal("concurrent requests for one server must share the same future")
	}

	// The pending snapshot carries the first batch only.
	pending := c.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending: got %d entries, want 1", len(pending))
	}
	if pending[0].ServerID != "s1" {
		t.Errorf("server: got %q, want s1", pending[0].ServerID)
	}
	if !slices.Equal(pending[0].ToolIDs, []string{"t1", "t2"}) {
		t.Errorf("tool ids: got %v, want [t1 t2]", pending[0].ToolIDs)
	}
	if _, ok := c.ServerForTool("t3"); ok {
		t.Error("second batch must not be indexed")
	}

	if !c.Resolve("s1", ResultApproved) {
		t.Fatal("resolve should find the pending entry")
	}

	for i, fut := range []*Future{first, second} {
		got, ok := fut.Result()
		if !ok {
			t.Fatalf("future %d not settled", i)
		}
		if got != ResultApproved {
			t.Errorf("future %d: got %q, want %q", i, got, ResultApproved)
		}
	}
	if c.IsPending("s1") {
		t.Error("s1 should not be pending after resolve")
	}
}

func TestCoordinator_ResolveTearsDownIndex(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.Request(context.Background(), "s1", testTools("t1", "t2"))

	if srv, ok := c.ServerForTool("t1"); !ok || srv != "s1" {
		t.Fatalf("ServerForTool(t1): got %q, %v", srv, ok)
	}

	c.Resolve("s1", ResultAllowOnce)

	for _, id := range []string{"t1", "t2"} {
		if _, ok := c.ServerForTool(id); ok {
			t.Errorf("tool %s still indexed after resolve", id)
		}
	}
	if len(c.Pending()) != 0 {
		t.Error("registry should be empty after resolve")
	}
}

func TestCoordinator_ResolveUnknownServer(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.Request(context.Background(), "s1", testTools("t1"))

	if c.Resolve("nope", ResultApproved) {
		t.Error("resolving an unknown server should return false")
	}
	if !c.IsPending("s1") {
		t.Error("unrelated pending entry must be untouched")
	}
}

func TestCoordinator_ResolveDefaultsToAllowOnce(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	fut := c.Request(context.Background(), "s1", testTools("t1"))
	c.Resolve("s1", "")

	got, ok := fut.Result()
	if !ok {
		t.Fatal("future not settled")
	}
	if got != ResultAllowOnce {
		t.Errorf("got %q, want %q", got, ResultAllowOnce)
	}
}

func TestCoordinator_CancelIsDeny(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	fut := c.Request(context.Background(), "s1", testTools("t1"))

	if !c.Cancel("s1") {
		t.Fatal("cancel should find the pending entry")
	}
	got, ok := fut.Result()
	if !ok {
		t.Fatal("future not settled")
	}
	if got != ResultDenied {
		t.Errorf("got %q, want %q", got, ResultDenied)
	}
}

func TestCoordinator_ResolveTool(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	fut := c.Request(context.Background(), "s1", testTools("t1", "t2"))

	if !c.ResolveTool("t2", ResultApproved) {
		t.Fatal("ResolveTool should find the owning server")
	}
	got, _ := fut.Result()
	if got != ResultApproved {
		t.Errorf("got %q, want %q", got, ResultApproved)
	}
	if c.IsPending("s1") {
		t.Error("s1 should not be pending after ResolveTool")
	}
}

func TestCoordinator_ResolveToolUnknown(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.Request(context.Background(), "s1", testTools("t1"))

	if c.ResolveTool("ghost", ResultApproved) {
		t.Error("resolving an unknown tool should return false")
	}
	if !c.IsPending("s1") {
		t.Error("registry state must be unchanged")
	}
}

func TestCoordinator_PreCancelledContext(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fut := c.Request(ctx, "s2", testTools("t1"))

	got, ok := fut.Result()
	if !ok {
		t.Fatal("future should be settled synchronously")
	}
	if got != ResultDenied {
		t.Errorf("got %q, want %q", got, ResultDenied)
	}
	if c.IsPending("s2") {
		t.Error("nothing must be registered for a pre-cancelled request")
	}
	if _, ok := c.ServerForTool("t1"); ok {
		t.Error("tool index must be empty")
	}
}

func TestCoordinator_ContextCancellationDenies(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	fut := c.Request(ctx, "s1", testTools("t1"))

	cancel()

	got, err := fut.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ResultDenied {
		t.Errorf("got %q, want %q", got, ResultDenied)
	}

	// Teardown mirrors manual resolution.
	waitFor(t, func() bool { return !c.IsPending("s1") })
	if _, ok := c.ServerForTool("t1"); ok {
		t.Error("tool index must be cleared on signal-driven cancellation")
	}
}

func TestCoordinator_SignalAfterResolveIsNoop(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	fut := c.Request(ctx, "s1", testTools("t1"))

	c.Resolve("s1", ResultApproved)
	cancel()

	// A fresh request for the same server must not be affected by the
	// stale watcher.
	fresh := c.Request(context.Background(), "s1", testTools("t9"))
	time.Sleep(20 * time.Millisecond)

	if got, _ := fut.Result(); got != ResultApproved {
		t.Errorf("first future: got %q, want %q", got, ResultApproved)
	}
	if _, ok := fresh.Result(); ok {
		t.Error("successor entry must not be settled by the stale signal")
	}
	if !c.IsPending("s1") {
		t.Error("successor entry should still be pending")
	}
}

func TestCoordinator_ConcurrentSettlementRace(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	for range 50 {
		fut := c.Request(context.Background(), "s1", testTools("t1"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Resolve("s1", ResultApproved)
		}()
		go func() {
			defer wg.Done()
			c.Cancel("s1")
		}()
		wg.Wait()

		got, ok := fut.Result()
		if !ok {
			t.Fatal("future must be settled")
		}
		if got != ResultApproved && got != ResultDenied {
			t.Fatalf("unexpected result %q", got)
		}
		if c.IsPending("s1") {
			t.Fatal("registry must be clean after the race")
		}
	}
}

func TestCoordinator_FreshEntryAfterSettlement(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	first := c.Request(context.Background(), "s1", testTools("t1"))
	c.Resolve("s1", ResultDenied)

	second := c.Request(context.Background(), "s1", testTools("t2"))
	if first == second {
		t.Fatal("post-settlement request must get a fresh future")
	}
	if _, ok := second.Result(); ok {
		t.Error("fresh future must be unsettled")
	}
	if srv, ok := c.ServerForTool("t2"); !ok || srv != "s1" {
		t.Errorf("ServerForTool(t2): got %q, %v", srv, ok)
	}
}

func TestCoordinator_EmptyServerID(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	fut := c.Request(context.Background(), "", testTools("t1"))

	got, ok := fut.Result()
	if !ok || got != ResultDenied {
		t.Errorf("empty server id: got %q (settled=%v), want denied", got, ok)
	}
	if len(c.Pending()) != 0 {
		t.Error("nothing must be registered")
	}
}

// A pending entry without a registered future is structurally unreachable via
// the public API; observing it would be an invariant violation. The
// coordinator still answers with a settled deny so no caller hangs forever.
func TestCoordinator_PendingWithoutFutureDeniesDefensively(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.Request(context.Background(), "s1", testTools("t1"))

	c.mu.Lock()
	delete(c.futures, "s1")
	c.mu.Unlock()

	fut := c.Request(context.Background(), "s1", testTools("t2"))
	got, ok := fut.Result()
	if !ok || got != ResultDenied {
		t.Errorf("got %q (settled=%v), want an immediately-denied future", got, ok)
	}
}

func TestCoordinator_Observers(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	obs := &recordingObserver{}
	c.AddObserver(obs)

	c.Request(context.Background(), "s1", testTools("t1", "t2"))
	c.Resolve("s1", ResultApproved)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.requested) != 1 {
		t.Fatalf("requested notifications: got %d, want 1", len(obs.requested))
	}
	if obs.requested[0].ServerID != "s1" {
		t.Errorf("requested server: got %q", obs.requested[0].ServerID)
	}
	if len(obs.settled) != 1 || obs.results[0] != ResultApproved {
		t.Fatalf("settled notifications: got %d (%v)", len(obs.settled), obs.results)
	}
	if !slices.Equal(obs.settled[0].ToolIDs, []string{"t1", "t2"}) {
		t.Errorf("settled tool ids: got %v", obs.settled[0].ToolIDs)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
