// Package tools provides a read-only registry view (C2) over the tool set
// carried in an AgentContext.
package tools

import agent "github.com/flowcore-ai/agentloop"

// Registry is a read-only adapter over the tools carried in an AgentContext.
// Ordering matches the order tools were supplied to NewRegistry; presentation
// order to the model is stable across turns unless the caller changes the
// underlying tool set.
type Registry struct {
	order []agent.AgentTool
	byName map[string]agent.AgentTool
}

// NewRegistry builds a Registry over ts, preserving declaration order. If
// two tools share a name, the first one wins and later duplicates are
// dropped from ByName lookups but retained in All's ordering, since the spec
// requires tool names to be unique within a run and duplicate detection is
// the caller's responsibility; Registry does not fail fast on duplicates so
// it stays a pure read-only view.
func NewRegistry(ts []agent.AgentTool) *Registry {
	r := &Registry{
		order:  make([]agent.AgentTool, len(ts)),
		byName: make(map[string]agent.AgentTool, len(ts)),
	}
	copy(r.order, ts)
	for _, t := range ts {
		if _, exists := r.byName[t.Name()]; !exists {
			r.byName[t.Name()] = t
		}
	}
	return r
}

// ByName returns the tool registered under name, if any.
func (r *Registry) ByName(name string) (agent.AgentTool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns the tools in declaration order.
func (r *Registry) All() []agent.AgentTool {
	out := make([]agent.AgentTool, len(r.order))
	copy(out, r.order)
	return out
}
