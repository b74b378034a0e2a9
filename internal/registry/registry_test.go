package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortex-voice/internal/mcp"
)

// fakeBackend is an in-memory Backend for registry and router tests.
type fakeBackend struct {
	name  string
	alive bool

	mu    sync.Mutex
	calls []string
	reply func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error)
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{
		name:  name,
		alive: true,
		reply: func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
			return &mcp.ToolOutcome{Content: []mcp.ContentBlock{{Type: "text", Text: "ok"}}}, nil
		},
	}
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Alive() bool  { return f.alive }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	return f.reply(ctx, name, args)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func caps(names ...string) []Capability {
	out := make([]Capability, 0, len(names))
	for _, n := range names {
		out = append(out, Capability{Name: n})
	}
	return out
}

func TestRegisterAndResolve(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")

	added := reg.Register(a, caps("agent_launch", "agent_status"))
	require.Equal(t, 2, added)

	c, err := reg.Resolve("agent_status")
	require.NoError(t, err)
	assert.Equal(t, "ralph", c.Backend.Name())

	_, err = reg.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestDuplicateNameFirstWins(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	b := newFakeBackend("other")

	reg.Register(a, caps("agent_launch"))
	added := reg.Register(b, caps("agent_launch", "extra"))

	// Only the non-colliding capability lands.
	assert.Equal(t, 1, added)

	c, err := reg.Resolve("agent_launch")
	require.NoError(t, err)
	assert.Equal(t, "ralph", c.Backend.Name(), "first owner must be kept")

	c, err = reg.Resolve("extra")
	require.NoError(t, err)
	assert.Equal(t, "other", c.Backend.Name())
}

func TestClaimSurvivesUnregister(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	b := newFakeBackend("other")

	reg.Register(a, caps("agent_launch"))
	reg.Unregister("ralph")

	// The name stays claimed for its first owner even after the owner
	// goes away.
	added := reg.Register(b, caps("agent_launch"))
	assert.Equal(t, 0, added)
	_, err := reg.Resolve("agent_launch")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestListSnapshotIsStable(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	reg.Register(a, caps("b_cap", "a_cap"))

	snap := reg.List()
	require.Len(t, snap.Capabilities, 2)
	assert.Equal(t, "a_cap", snap.Capabilities[0].Name, "snapshot must be sorted")

	v1 := snap.Version
	reg.Unregister("ralph")
	snap2 := reg.List()

	// The old snapshot is untouched by later mutation.
	assert.Len(t, snap.Capabilities, 2)
	assert.Empty(t, snap2.Capabilities)
	assert.Greater(t, snap2.Version, v1)
}

func TestUnregisterUnknownBackendIsNoop(t *testing.T) {
	reg := New()
	v := reg.List().Version
	reg.Unregister("ghost")
	assert.Equal(t, v, reg.List().Version)
}

func TestDeclarationsFollowSnapshot(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	reg.Register(a, []Capability{
		{Name: "agent_status", Description: "Check agents"},
		{Name: "agent_launch", Description: "Start agents"},
	})

	decls := reg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "agent_launch", decls[0].Name)
	assert.Equal(t, "Start agents", decls[0].Description)
	assert.Nil(t, decls[0].Parameters)
}

func TestRouterUnknownCapability(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-1",
		Capability: "not_a_tool",
	})

	assert.Equal(t, "call-1", res.CallID)
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnknownCapability.Error(), res.Err)
	assert.Zero(t, a.callCount(), "no backend may be contacted for an unknown name")
}

func TestRouterBackendUnavailable(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	a.alive = false
	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-2",
		Capability: "agent_status",
	})

	assert.Equal(t, ErrBackendUnavailable.Error(), res.Err)

	// The dead backend's capabilities are gone from the next snapshot.
	assert.Empty(t, reg.List().Capabilities)
	_, err := reg.Resolve("agent_status")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestRouterSessionDeathDuringCall(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	a.reply = func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
		return nil, mcp.ErrSessionClosed
	}
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-3",
		Capability: "agent_status",
	})

	assert.Equal(t, ErrBackendUnavailable.Error(), res.Err)
	assert.Empty(t, reg.List().Capabilities)
}

func TestRouterTimeout(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	a.reply = func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg.Register(a, caps("agent_logs"))
	router := NewRouter(reg, 20*time.Millisecond)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-4",
		Capability: "agent_logs",
	})

	assert.Equal(t, ErrInvocationTimeout.Error(), res.Err)
}

func TestRouterToolErrorIsNotSuccess(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	a.reply = func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
		return &mcp.ToolOutcome{
			IsError: true,
			Content: []mcp.ContentBlock{{Type: "text", Text: "no such project"}},
		}, nil
	}
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-5",
		Capability: "agent_status",
	})

	assert.False(t, res.Success)
	assert.Equal(t, "no such project", res.Err)
}

func TestRouterSuccess(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-6",
		Capability: "agent_status",
		Arguments:  map[string]any{"project_dir": "/tmp/p"},
	})

	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.Payload)
	assert.Empty(t, res.Err)
	assert.Equal(t, 1, a.callCount())
}

func TestRouterConcurrentBackends(t *testing.T) {
	reg := New()
	slow := newFakeBackend("slow")
	release := make(chan struct{})
	slow.reply = func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
		select {
		case <-release:
			return &mcp.ToolOutcome{Content: []mcp.ContentBlock{{Type: "text", Text: "slow done"}}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fast := newFakeBackend("fast")

	reg.Register(slow, caps("slow_op"))
	reg.Register(fast, caps("fast_op"))
	router := NewRouter(reg, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.Invoke(context.Background(), InvocationRequest{CallID: "c-slow", Capability: "slow_op"})
	}()

	// A call to another backend must not queue behind the slow one.
	done := make(chan InvocationResult, 1)
	go func() {
		done <- router.Invoke(context.Background(), InvocationRequest{CallID: "c-fast", Capability: "fast_op"})
	}()

	select {
	case res := <-done:
		assert.True(t, res.Success)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("fast backend blocked behind slow backend")
	}

	close(release)
	wg.Wait()
}

func TestRouterUnexpectedError(t *testing.T) {
	reg := New()
	a := newFakeBackend("ralph")
	a.reply = func(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error) {
		return nil, errors.New("marshal blew up")
	}
	reg.Register(a, caps("agent_status"))
	router := NewRouter(reg, 0)

	res := router.Invoke(context.Background(), InvocationRequest{
		CallID:     "call-7",
		Capability: "agent_status",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "marshal blew up")
	// Plain failures do not unregister a live backend.
	assert.Len(t, reg.List().Capabilities, 1)
}
