package compiler_test

import (
	"context"
	"testing"

	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()

	noop := func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
		return registry.ActivityOutput{}, nil
	}

	must(t, r.Register(&registry.Definition{
		ID:      "core.workflow.entrypoint",
		Outputs: []registry.PortSpec{{Handle: "out", Schema: ports.Prim(ports.PrimitiveJSON)}},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: noop,
	}))
	must(t, r.Register(&registry.Definition{
		ID:      "core.text.upper",
		Inputs:  []registry.PortSpec{{Handle: "text", Schema: ports.Prim(ports.PrimitiveText)}},
		Outputs: []registry.PortSpec{{Handle: "text", Schema: ports.Prim(ports.PrimitiveText)}},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: noop,
	}))
	must(t, r.Register(&registry.Definition{
		ID:      "core.text.concat",
		Inputs:  []registry.PortSpec{{Handle: "parts", Schema: ports.List(ports.Prim(ports.PrimitiveText))}},
		Outputs: []registry.PortSpec{{Handle: "text", Schema: ports.Prim(ports.PrimitiveText)}},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: noop,
	}))
	must(t, r.Register(&registry.Definition{
		ID:      "core.number.add",
		Inputs:  []registry.PortSpec{{Handle: "n", Schema: ports.Prim(ports.PrimitiveNumber)}},
		Outputs: []registry.PortSpec{{Handle: "n", Schema: ports.Prim(ports.PrimitiveNumber)}},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: noop,
	}))
	r.Build()
	return r
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func TestCompileLinearGraph(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Name: "linear",
		Nodes: []compiler.Node{
			{ID: "start", ComponentID: "core.workflow.entrypoint"},
			{ID: "upper", ComponentID: "core.text.upper"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "start", Target: "upper", SourceHandle: "out", TargetHandle: "text"},
		},
	}

	def, err := compiler.Compile(g, r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if def.EntrypointRef != "start" {
		t.Errorf("EntrypointRef = %q, want start", def.EntrypointRef)
	}
	if len(def.Actions) != 2 {
		t.Fatalf("len(Actions) = %d, want 2", len(def.Actions))
	}
	if def.Actions[0].Ref != "start" || def.Actions[1].Ref != "upper" {
		t.Errorf("unexpected topological order: %+v", def.Actions)
	}
	if def.DependencyCounts["upper"] != 1 {
		t.Errorf("DependencyCounts[upper] = %d, want 1", def.DependencyCounts["upper"])
	}
	if def.DependencyCounts["start"] != 0 {
		t.Errorf("DependencyCounts[start] = %d, want 0", def.DependencyCounts["start"])
	}
}

func TestCompileImplicitEntrypoint(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "a", ComponentID: "core.number.add"},
		},
	}
	def, err := compiler.Compile(g, r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if def.EntrypointRef != "a" {
		t.Errorf("EntrypointRef = %q, want a (only input-less node)", def.EntrypointRef)
	}
}

func TestCompileAmbiguousEntrypoint(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "e1", ComponentID: "core.workflow.entrypoint"},
			{ID: "e2", ComponentID: "core.workflow.entrypoint"},
		},
	}
	_, err := compiler.Compile(g, r)
	ce, ok := err.(*compiler.CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T (%v)", err, err)
	}
	if ce.Kind != compiler.EntrypointAmbiguous {
		t.Errorf("Kind = %v, want EntrypointAmbiguous", ce.Kind)
	}
}

func TestCompileUnknownComponent(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{{ID: "a", ComponentID: "does.not.exist"}},
	}
	_, err := compiler.Compile(g, r)
	ce, ok := err.(*compiler.CompileError)
	if !ok || ce.Kind != compiler.ComponentNotRegistered {
		t.Fatalf("expected ComponentNotRegistered, got %v", err)
	}
}

func TestCompilePortTypeMismatch(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "start", ComponentID: "core.workflow.entrypoint"},
			{ID: "add", ComponentID: "core.number.add"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "start", Target: "add", SourceHandle: "out", TargetHandle: "n"},
		},
	}
	_, err := compiler.Compile(g, r)
	ce, ok := err.(*compiler.CompileError)
	if !ok || ce.Kind != compiler.PortTypeMismatch {
		t.Fatalf("expected PortTypeMismatch (json -> number, no coercion table), got %v", err)
	}
}

func TestCompileMultipleEdgesToScalarPortRejected(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "a", ComponentID: "core.text.upper"},
			{ID: "b", ComponentID: "core.text.upper"},
			{ID: "c", ComponentID: "core.text.upper"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "a", Target: "c", SourceHandle: "text", TargetHandle: "text"},
			{ID: "e2", Source: "b", Target: "c", SourceHandle: "text", TargetHandle: "text"},
		},
	}
	_, err := compiler.Compile(g, r)
	ce, ok := err.(*compiler.CompileError)
	if !ok || ce.Kind != compiler.MultipleEdgesToPort {
		t.Fatalf("expected MultipleEdgesToPort, got %v", err)
	}
}

func TestCompileFanInToListPortAllowed(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "a", ComponentID: "core.text.upper"},
			{ID: "b", ComponentID: "core.text.upper"},
			{ID: "c", ComponentID: "core.text.concat"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "a", Target: "c", SourceHandle: "text", TargetHandle: "parts"},
			{ID: "e2", Source: "b", Target: "c", SourceHandle: "text", TargetHandle: "parts"},
		},
	}
	def, err := compiler.Compile(g, r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	action, ok := def.ActionByRef("c")
	if !ok {
		t.Fatal("action c not found")
	}
	if len(action.InputMappings["parts"]) != 2 {
		t.Errorf("expected 2 fan-in sources on parts, got %d", len(action.InputMappings["parts"]))
	}
	if len(action.DependsOn) != 2 {
		t.Errorf("expected DependsOn to have both predecessors, got %v", action.DependsOn)
	}
}

func TestCompileCycleRejected(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "a", ComponentID: "core.text.upper"},
			{ID: "b", ComponentID: "core.text.upper"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "a", Target: "b", SourceHandle: "text", TargetHandle: "text"},
			{ID: "e2", Source: "b", Target: "a", SourceHandle: "text", TargetHandle: "text"},
		},
	}
	_, err := compiler.Compile(g, r)
	ce, ok := err.(*compiler.CompileError)
	if !ok || ce.Kind != compiler.WorkflowGraphContainsCycle {
		t.Fatalf("expected WorkflowGraphContainsCycle, got %v", err)
	}
}

func TestCompileFailureEdgeRouting(t *testing.T) {
	r := testRegistry(t)
	g := compiler.Graph{
		Nodes: []compiler.Node{
			{ID: "start", ComponentID: "core.workflow.entrypoint"},
			{ID: "risky", ComponentID: "core.text.upper"},
			{ID: "onFail", ComponentID: "core.text.upper"},
		},
		Edges: []compiler.Edge{
			{ID: "e1", Source: "start", Target: "risky", SourceHandle: "out", TargetHandle: "text"},
			{ID: "e2", Source: "risky", Target: "onFail", SourceHandle: "text", TargetHandle: "text", Kind: compiler.EdgeFailure},
		},
	}
	def, err := compiler.Compile(g, r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	risky, _ := def.ActionByRef("risky")
	if len(risky.Outgoing) != 1 || risky.Outgoing[0].Kind != compiler.EdgeFailure {
		t.Errorf("expected one failure-kind outgoing edge, got %+v", risky.Outgoing)
	}
}

func TestCompileEmptyGraphRejected(t *testing.T) {
	r := testRegistry(t)
	_, err := compiler.Compile(compiler.Graph{}, r)
	if err == nil {
		t.Fatal("expected error for empty graph")
	}
}
