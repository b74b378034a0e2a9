package registry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/mcp"
)

// DefaultInvokeTimeout bounds one backend call when the router is
// built with no explicit timeout.
const DefaultInvokeTimeout = 30 * time.Second

// InvocationRequest is one tool call from the peer, correlated by
// CallID.
type InvocationRequest struct {
	CallID     string
	Capability string
	Arguments  map[string]any
}

// InvocationResult is the outcome relayed back to the peer. Exactly
// one result exists per CallID; failures travel in Err, never as a Go
// error past the router boundary.
type InvocationResult struct {
	CallID     string
	Capability string
	Success    bool
	Payload    string
	Err        string
}

// Router dispatches invocations to the owning backend. It serializes
// nothing itself: calls to different backends run concurrently, and
// per-turn serialization is the orchestrator's concern.
type Router struct {
	reg     *Registry
	timeout time.Duration
}

// NewRouter builds a router over the registry. A non-positive timeout
// selects DefaultInvokeTimeout.
func NewRouter(reg *Registry, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	return &Router{reg: reg, timeout: timeout}
}

// Invoke resolves the capability and calls its backend. The returned
// result always carries the request's CallID; every failure mode is
// folded into it:
//
//   - unknown capability: no backend is contacted
//   - dead backend: the backend is unregistered and the call fails
//   - deadline exceeded: mapped to ErrInvocationTimeout
//   - backend-reported tool error: Success=false with the tool's text
func (r *Router) Invoke(ctx context.Context, req InvocationRequest) InvocationResult {
	res := InvocationResult{CallID: req.CallID, Capability: req.Capability}

	cap, err := r.reg.Resolve(req.Capability)
	if err != nil {
		log.Warn().
			Str("call_id", req.CallID).
			Str("capability", req.Capability).
			Msg("router: unknown capability")
		res.Err = ErrUnknownCapability.Error()
		return res
	}

	if !cap.Backend.Alive() {
		r.dropBackend(cap.Backend.Name())
		res.Err = ErrBackendUnavailable.Error()
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := cap.Backend.CallTool(callCtx, req.Capability, req.Arguments)
	elapsed := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().
			Str("call_id", req.CallID).
			Str("capability", req.Capability).
			Dur("elapsed", elapsed).
			Msg("router: invocation timed out")
		res.Err = ErrInvocationTimeout.Error()
		return res
	case errors.Is(err, mcp.ErrSessionClosed):
		r.dropBackend(cap.Backend.Name())
		res.Err = ErrBackendUnavailable.Error()
		return res
	default:
		log.Error().
			Str("call_id", req.CallID).
			Str("capability", req.Capability).
			Err(err).
			Msg("router: invocation failed")
		res.Err = err.Error()
		return res
	}

	log.Debug().
		Str("call_id", req.CallID).
		Str("capability", req.Capability).
		Bool("tool_error", out.IsError).
		Dur("elapsed", elapsed).
		Msg("router: invocation complete")

	if out.IsError {
		res.Err = out.Text()
		return res
	}
	res.Success = true
	res.Payload = out.Text()
	return res
}

// dropBackend removes a dead backend's capabilities so the next
// snapshot no longer advertises them.
func (r *Router) dropBackend(name string) {
	log.Warn().Str("backend", name).Msg("router: backend lost, unregistering")
	r.reg.Unregister(name)
}
