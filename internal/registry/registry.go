// Package registry aggregates the capabilities advertised by every
// connected backend into one namespace and routes invocations to the
// owning backend. Capability names are claimed first-come: a later
// backend advertising an already-claimed name is rejected and logged,
// never silently overwritten.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/mcp"
	"github.com/normanking/cortex-voice/internal/schema"
)

var (
	// ErrUnknownCapability means no backend has claimed the name.
	ErrUnknownCapability = errors.New("registry: unknown capability")

	// ErrBackendUnavailable means the owning backend's process is gone.
	ErrBackendUnavailable = errors.New("registry: backend unavailable")

	// ErrInvocationTimeout means the backend did not answer within the
	// per-call deadline.
	ErrInvocationTimeout = errors.New("registry: invocation timed out")
)

// Backend is the slice of a backend session the registry needs.
// *mcp.Session satisfies it.
type Backend interface {
	Name() string
	Alive() bool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolOutcome, error)
	Close() error
}

// Capability describes one invocable tool and the backend that owns
// it. Immutable once registered.
type Capability struct {
	Name        string
	Description string
	Schema      *schema.Node
	Backend     Backend
}

// Snapshot is an immutable view of the registry at one version. Two
// snapshots with the same version are identical.
type Snapshot struct {
	Version      uint64
	Capabilities []Capability
}

// Registry is the capability namespace. A single mutex guards all
// writes; reads hand out copies, never live maps.
type Registry struct {
	mu      sync.Mutex
	caps    map[string]Capability
	owners  map[string][]string // backend name -> claimed capability names
	claims  map[string]string   // capability name -> first owner, never cleared
	version uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		caps:   make(map[string]Capability),
		owners: make(map[string][]string),
		claims: make(map[string]string),
	}
}

// Register claims names for a backend. The first backend to advertise
// a name owns it for the life of the process; rejected duplicates are
// logged and skipped, and do not fail the rest of the batch. Returns
// the number of capabilities actually registered.
func (r *Registry) Register(backend Backend, caps []Capability) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, c := range caps {
		if owner, taken := r.claims[c.Name]; taken && owner != backend.Name() {
			log.Warn().
				Str("capability", c.Name).
				Str("owner", owner).
				Str("rejected", backend.Name()).
				Msg("registry: duplicate capability name, keeping first owner")
			continue
		}
		c.Backend = backend
		r.claims[c.Name] = backend.Name()
		r.caps[c.Name] = c
		r.owners[backend.Name()] = append(r.owners[backend.Name()], c.Name)
		added++
	}

	if added > 0 {
		r.version++
		log.Info().
			Str("backend", backend.Name()).
			Int("capabilities", added).
			Uint64("version", r.version).
			Msg("registry: backend registered")
	}
	return added
}

// Unregister removes every capability owned by the named backend. The
// name claims stay: a capability lost this way is not up for grabs by
// another backend later.
func (r *Registry) Unregister(backendName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := r.owners[backendName]
	if len(names) == 0 {
		return
	}
	for _, n := range names {
		delete(r.caps, n)
	}
	delete(r.owners, backendName)
	r.version++

	log.Warn().
		Str("backend", backendName).
		Int("capabilities", len(names)).
		Uint64("version", r.version).
		Msg("registry: backend unregistered")
}

// Resolve looks up a capability by name.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caps[name]
	if !ok {
		return Capability{}, ErrUnknownCapability
	}
	return c, nil
}

// List returns a point-in-time snapshot, sorted by capability name.
func (r *Registry) List() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Snapshot{Version: r.version, Capabilities: out}
}

// Declarations translates the current snapshot into peer function
// declarations, in snapshot order.
func (r *Registry) Declarations() []schema.Declaration {
	snap := r.List()
	decls := make([]schema.Declaration, 0, len(snap.Capabilities))
	for _, c := range snap.Capabilities {
		decls = append(decls, schema.NewDeclaration(c.Name, c.Description, c.Schema))
	}
	return decls
}
