package compiler

import "github.com/graphforge/core/pkg/engine/registry"

// SourceRef identifies where a mapped input value comes from: an
// upstream node's output handle.
type SourceRef struct {
	SourceRef    string `json:"sourceRef"`
	SourceHandle string `json:"sourceHandle"`
}

// Action is one compiled node: the canonical, orchestrator-ready unit
// of scheduling (spec §4.1 step 6). Ref equals the originating node's
// ID; DependsOn is the distinct set of source refs of all inbound
// edges, independent of how many edges or ports connect the same pair.
type Action struct {
	Ref         string
	ComponentID string
	Label       string

	Params         map[string]any
	InputOverrides map[string]any

	// InputMappings is keyed by target-handle; a handle maps to one or
	// more sources (more than one only when the target port is
	// list-typed and fed by a fan-in, §4.6).
	InputMappings map[string][]SourceRef

	DependsOn []string

	JoinStrategy   JoinStrategy
	StreamID       string
	GroupID        string
	MaxConcurrency int

	// Incoming records, for every inbound edge, the edge kind and
	// its source — the orchestrator needs this to resolve success vs.
	// failure routing and join semantics without re-reading raw edges.
	Incoming []IncomingEdge

	// Outgoing mirrors Incoming from the source side, one entry per
	// edge leaving this action, so the orchestrator can walk
	// successor routing without rescanning the whole edge list.
	Outgoing []OutgoingEdge

	IsEntrypoint bool
}

// IncomingEdge is one inbound connection to an action.
type IncomingEdge struct {
	SourceRef    string
	SourceHandle string
	TargetHandle string
	Kind         EdgeKind
}

// OutgoingEdge is one outbound connection from an action.
type OutgoingEdge struct {
	TargetRef    string
	TargetHandle string
	SourceHandle string
	Kind         EdgeKind
}

// JoinStrategy governs fan-in dispatch timing (spec §4.6).
type JoinStrategy string

const (
	JoinAll   JoinStrategy = "all"
	JoinAny   JoinStrategy = "any"
	JoinFirst JoinStrategy = "first"
)

// EffectiveJoinStrategy defaults an action's configured strategy to
// "all" per spec §4.6.
func (a *Action) EffectiveJoinStrategy() JoinStrategy {
	if a.JoinStrategy == "" {
		return JoinAll
	}
	return a.JoinStrategy
}

// Definition is the canonical, compiled workflow: the output of
// Compile and the input to the orchestrator (spec §4.1).
type Definition struct {
	Name        string
	Description string

	// Actions are ordered topologically: an action never appears
	// before any action listed in its DependsOn.
	Actions []Action

	EntrypointRef string

	// DependencyCounts mirrors len(Action.DependsOn) at compile time;
	// the orchestrator copies this into a per-run mutable counter
	// rather than mutating the compiled definition itself, since one
	// Definition is shared read-only across concurrent runs.
	DependencyCounts map[string]int
	TotalActions     int
}

// ActionByRef returns the action with the given ref, if any.
func (d *Definition) ActionByRef(ref string) (*Action, bool) {
	for i := range d.Actions {
		if d.Actions[i].Ref == ref {
			return &d.Actions[i], true
		}
	}
	return nil, false
}

// resolvedPorts bundles the effective input/output port specs computed
// for one node, after resolvePorts (if any) has run.
type resolvedPorts struct {
	inputs  []registry.PortSpec
	outputs []registry.PortSpec
}
