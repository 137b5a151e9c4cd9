package compiler

import (
	"fmt"
	"sort"

	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
)

const maxIDLength = 128

// Compile validates a submitted Graph against reg and lowers it into a
// canonical Definition, per spec §4.1. It performs component
// resolution, port-compatibility checking, cycle detection, entrypoint
// selection, and topological ordering in a single deterministic pass.
func Compile(g Graph, reg *registry.Registry) (*Definition, error) {
	if len(g.Nodes) == 0 {
		return nil, &CompileError{Kind: EntrypointMissing, Detail: "graph has no nodes"}
	}

	nodeByID := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if len(n.ID) == 0 || len(n.ID) > maxIDLength {
			return nil, &CompileError{Kind: ComponentNotRegistered, NodeRef: n.ID, Detail: "node id must be 1-128 chars"}
		}
		if _, dup := nodeByID[n.ID]; dup {
			return nil, &CompileError{Kind: ComponentNotRegistered, NodeRef: n.ID, Detail: "duplicate node id"}
		}
		nodeByID[n.ID] = n
	}

	// Step 1-2: resolve each node's component and effective ports.
	resolved := make(map[string]resolvedPorts, len(g.Nodes))
	defs := make(map[string]*registry.Definition, len(g.Nodes))
	for _, n := range g.Nodes {
		def, err := reg.Get(n.ComponentID)
		if err != nil {
			return nil, &CompileError{Kind: ComponentNotRegistered, NodeRef: n.ID, Detail: err.Error()}
		}
		inputs, outputs, err := def.EffectivePorts(n.Data.Config.Params)
		if err != nil {
			return nil, &CompileError{Kind: ComponentNotRegistered, NodeRef: n.ID, Detail: fmt.Sprintf("resolvePorts: %v", err)}
		}
		defs[n.ID] = def
		resolved[n.ID] = resolvedPorts{inputs: inputs, outputs: outputs}
	}

	// Step 3: validate edges, build adjacency and per-target inbound
	// mapping, enforcing the single-inbound-edge-per-scalar-port rule.
	inboundCount := make(map[string]map[string]int) // targetRef -> targetHandle -> count
	incomingByTarget := make(map[string][]IncomingEdge)
	outgoingBySource := make(map[string][]OutgoingEdge)
	adjacency := make(map[string][]string) // source -> distinct successor refs (any kind), for cycle detection

	for _, e := range g.Edges {
		if len(e.ID) > maxIDLength {
			return nil, &CompileError{Kind: ComponentNotRegistered, EdgeID: e.ID, Detail: "edge id must be at most 128 chars"}
		}
		srcNode, ok := nodeByID[e.Source]
		if !ok {
			return nil, &CompileError{Kind: ComponentNotRegistered, EdgeID: e.ID, Detail: fmt.Sprintf("unknown source node %q", e.Source)}
		}
		tgtNode, ok := nodeByID[e.Target]
		if !ok {
			return nil, &CompileError{Kind: ComponentNotRegistered, EdgeID: e.ID, Detail: fmt.Sprintf("unknown target node %q", e.Target)}
		}

		srcPorts := resolved[srcNode.ID].outputs
		tgtPorts := resolved[tgtNode.ID].inputs

		srcPort, ok := registry.PortByHandle(srcPorts, e.SourceHandle)
		if !ok {
			return nil, &CompileError{Kind: PortTypeMismatch, EdgeID: e.ID, Detail: fmt.Sprintf("source node %q has no output handle %q", srcNode.ID, e.SourceHandle)}
		}
		tgtPort, ok := registry.PortByHandle(tgtPorts, e.TargetHandle)
		if !ok {
			return nil, &CompileError{Kind: PortTypeMismatch, EdgeID: e.ID, Detail: fmt.Sprintf("target node %q has no input handle %q", tgtNode.ID, e.TargetHandle)}
		}
		if !ports.Compatible(srcPort.Schema, tgtPort.Schema) {
			return nil, &CompileError{Kind: PortTypeMismatch, EdgeID: e.ID, Detail: fmt.Sprintf("%s -> %s: %s not compatible with %s", srcPort.Handle, tgtPort.Handle, srcPort.Schema, tgtPort.Schema)}
		}

		if inboundCount[tgtNode.ID] == nil {
			inboundCount[tgtNode.ID] = make(map[string]int)
		}
		inboundCount[tgtNode.ID][e.TargetHandle]++
		if inboundCount[tgtNode.ID][e.TargetHandle] > 1 && tgtPort.Schema.Kind != ports.KindList {
			return nil, &CompileError{Kind: MultipleEdgesToPort, EdgeID: e.ID, Detail: fmt.Sprintf("target %q port %q already has an inbound edge", tgtNode.ID, e.TargetHandle)}
		}

		kind := e.EffectiveKind()
		incomingByTarget[tgtNode.ID] = append(incomingByTarget[tgtNode.ID], IncomingEdge{
			SourceRef:    srcNode.ID,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Kind:         kind,
		})
		outgoingBySource[srcNode.ID] = append(outgoingBySource[srcNode.ID], OutgoingEdge{
			TargetRef:    tgtNode.ID,
			TargetHandle: e.TargetHandle,
			SourceHandle: e.SourceHandle,
			Kind:         kind,
		})
		adjacency[srcNode.ID] = appendDistinct(adjacency[srcNode.ID], tgtNode.ID)
	}

	// Step 4: cycle detection via three-colour DFS.
	if cyclePath, ok := detectCycle(nodeByID, adjacency); ok {
		return nil, &CompileError{Kind: WorkflowGraphContainsCycle, NodeRef: cyclePath, Detail: "cycle detected"}
	}

	// Step 5: entrypoint selection.
	entrypointRef, err := selectEntrypoint(g.Nodes, incomingByTarget)
	if err != nil {
		return nil, err
	}

	// Step 6: topological order.
	order, err := topologicalOrder(nodeByID, adjacency)
	if err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(order))
	dependencyCounts := make(map[string]int, len(order))
	for _, ref := range order {
		n := nodeByID[ref]
		incoming := incomingByTarget[ref]

		dependsOn := distinctSources(incoming)
		mappings := make(map[string][]SourceRef)
		for _, in := range incoming {
			mappings[in.TargetHandle] = append(mappings[in.TargetHandle], SourceRef{
				SourceRef:    in.SourceRef,
				SourceHandle: in.SourceHandle,
			})
		}

		actions = append(actions, Action{
			Ref:            ref,
			ComponentID:    n.ComponentID,
			Label:          n.Data.Label,
			Params:         n.Data.Config.Params,
			InputOverrides: n.Data.Config.InputOverrides,
			InputMappings:  mappings,
			DependsOn:      dependsOn,
			JoinStrategy:   JoinStrategy(n.Data.Config.JoinStrategy),
			StreamID:       n.Data.Config.StreamID,
			GroupID:        n.Data.Config.GroupID,
			MaxConcurrency: n.Data.Config.MaxConcurrency,
			Incoming:       incoming,
			Outgoing:       outgoingBySource[ref],
			IsEntrypoint:   ref == entrypointRef,
		})
		dependencyCounts[ref] = len(dependsOn)
	}

	return &Definition{
		Name:             g.Name,
		Description:      g.Description,
		Actions:          actions,
		EntrypointRef:    entrypointRef,
		DependencyCounts: dependencyCounts,
		TotalActions:     len(actions),
	}, nil
}

func appendDistinct(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func distinctSources(incoming []IncomingEdge) []string {
	seen := make(map[string]bool, len(incoming))
	out := make([]string, 0, len(incoming))
	for _, in := range incoming {
		if seen[in.SourceRef] {
			continue
		}
		seen[in.SourceRef] = true
		out = append(out, in.SourceRef)
	}
	sort.Strings(out)
	return out
}

// colour marks a node's DFS visitation state for cycle detection:
// white = unvisited, gray = on the current recursion stack, black = done.
type colour int

const (
	white colour = iota
	gray
	black
)

func detectCycle(nodeByID map[string]*Node, adjacency map[string][]string) (string, bool) {
	colours := make(map[string]colour, len(nodeByID))

	ids := make([]string, 0, len(nodeByID))
	for id := range nodeByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(ref string) (string, bool)
	visit = func(ref string) (string, bool) {
		colours[ref] = gray
		for _, next := range adjacency[ref] {
			switch colours[next] {
			case gray:
				return next, true
			case white:
				if back, found := visit(next); found {
					return back, found
				}
			}
		}
		colours[ref] = black
		return "", false
	}

	for _, id := range ids {
		if colours[id] == white {
			if back, found := visit(id); found {
				return back, found
			}
		}
	}
	return "", false
}

func topologicalOrder(nodeByID map[string]*Node, adjacency map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(nodeByID))
	for id := range nodeByID {
		indegree[id] = 0
	}
	for _, successors := range adjacency {
		for _, s := range successors {
			indegree[s]++
		}
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodeByID))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		successors := append([]string(nil), adjacency[next]...)
		sort.Strings(successors)
		for _, s := range successors {
			indegree[s]--
			if indegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	if len(order) != len(nodeByID) {
		return nil, &CompileError{Kind: WorkflowGraphContainsCycle, Detail: "topological sort could not order all nodes"}
	}
	return order, nil
}

func selectEntrypoint(nodes []Node, incomingByTarget map[string][]IncomingEdge) (string, error) {
	var explicit []string
	for _, n := range nodes {
		if isEntrypointComponent(n.ComponentID) {
			explicit = append(explicit, n.ID)
		}
	}
	if len(explicit) == 1 {
		return explicit[0], nil
	}
	if len(explicit) > 1 {
		sort.Strings(explicit)
		return "", &CompileError{Kind: EntrypointAmbiguous, Detail: fmt.Sprintf("multiple entrypoint nodes: %v", explicit)}
	}

	var inputless []string
	for _, n := range nodes {
		if len(incomingByTarget[n.ID]) == 0 {
			inputless = append(inputless, n.ID)
		}
	}
	if len(inputless) == 1 {
		return inputless[0], nil
	}
	if len(inputless) == 0 {
		return "", &CompileError{Kind: EntrypointMissing, Detail: "no entrypoint component and no input-less node"}
	}
	sort.Strings(inputless)
	return "", &CompileError{Kind: EntrypointAmbiguous, Detail: fmt.Sprintf("no explicit entrypoint and multiple input-less nodes: %v", inputless)}
}
