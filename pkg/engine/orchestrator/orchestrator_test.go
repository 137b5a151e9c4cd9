package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/orchestrator"
	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/runtime"
	"github.com/graphforge/core/pkg/engine/store"
)

func textPort(handle string) registry.PortSpec {
	return registry.PortSpec{Handle: handle, Schema: ports.Prim(ports.PrimitiveText)}
}

func sourceComponent(id, value string) *registry.Definition {
	return &registry.Definition{
		ID:      id,
		Outputs: []registry.PortSpec{textPort("value")},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			return registry.ActivityOutput{Outputs: map[string]any{"value": value}}, nil
		},
	}
}

func passthroughComponent(id string) *registry.Definition {
	return &registry.Definition{
		ID:      id,
		Inputs:  []registry.PortSpec{textPort("in")},
		Outputs: []registry.PortSpec{textPort("out")},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			return registry.ActivityOutput{Outputs: map[string]any{"out": in.Inputs["in"]}}, nil
		},
	}
}

func joinComponent(id string) *registry.Definition {
	return &registry.Definition{
		ID:      id,
		Inputs:  []registry.PortSpec{textPort("left"), textPort("right")},
		Outputs: []registry.PortSpec{textPort("sum")},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			left, _ := in.Inputs["left"].(string)
			right, _ := in.Inputs["right"].(string)
			return registry.ActivityOutput{Outputs: map[string]any{"sum": left + "+" + right}}, nil
		},
	}
}

func alwaysFailsComponent(id string) *registry.Definition {
	return &registry.Definition{
		ID:      id,
		Inputs:  []registry.PortSpec{textPort("in")},
		Outputs: []registry.PortSpec{textPort("out")},
		Runner:  registry.Runner{Kind: registry.RunnerInline},
		RetryPolicy: registry.RetryPolicy{
			MaxAttempts:     1,
			InitialInterval: time.Millisecond,
		},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			return registry.ActivityOutput{}, &runtime.ActivityError{Kind: errkind.ServiceError, Message: "upstream unavailable"}
		},
	}
}

func newTestOrchestrator(t *testing.T, defs ...*registry.Definition) (*orchestrator.Orchestrator, *store.MemoryStore) {
	t.Helper()
	reg := registry.New()
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register(%s): %v", d.ID, err)
		}
	}
	reg.Build()

	st := store.NewMemoryStore()
	rt := runtime.New(reg, st)
	return orchestrator.New(st, rt), st
}

func TestRunLinearSucceeds(t *testing.T) {
	orc, _ := newTestOrchestrator(t,
		sourceComponent("core.test.source", "hello"),
		passthroughComponent("core.test.passthrough"),
	)

	def := &compiler.Definition{
		Name: "linear",
		Actions: []compiler.Action{
			{
				Ref: "a", ComponentID: "core.test.source", IsEntrypoint: true,
				Outgoing: []compiler.OutgoingEdge{{TargetRef: "b", TargetHandle: "in", SourceHandle: "value", Kind: compiler.EdgeSuccess}},
			},
			{
				Ref: "b", ComponentID: "core.test.passthrough", DependsOn: []string{"a"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "a", SourceHandle: "value"}}},
			},
		},
		EntrypointRef:    "a",
		DependencyCounts: map[string]int{"a": 0, "b": 1},
		TotalActions:     2,
	}

	result, err := orc.Run(context.Background(), def, store.RunDescriptor{RunID: "run-linear", WorkflowID: "wf-linear"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Run.Status != store.RunSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", result.Run.Status)
	}
	if result.Outputs["out"] != "hello" {
		t.Errorf("Outputs[out] = %v, want hello", result.Outputs["out"])
	}
}

func TestRunFanInJoinAllMerges(t *testing.T) {
	orc, _ := newTestOrchestrator(t,
		sourceComponent("core.test.source", "x"),
		passthroughComponent("core.test.passthrough"),
		joinComponent("core.test.join"),
	)

	def := &compiler.Definition{
		Name: "fan-in",
		Actions: []compiler.Action{
			{
				Ref: "a", ComponentID: "core.test.source", IsEntrypoint: true,
				Outgoing: []compiler.OutgoingEdge{
					{TargetRef: "b", TargetHandle: "in", SourceHandle: "value", Kind: compiler.EdgeSuccess},
					{TargetRef: "c", TargetHandle: "in", SourceHandle: "value", Kind: compiler.EdgeSuccess},
				},
			},
			{
				Ref: "b", ComponentID: "core.test.passthrough", DependsOn: []string{"a"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "a", SourceHandle: "value"}}},
				Outgoing:      []compiler.OutgoingEdge{{TargetRef: "d", TargetHandle: "left", SourceHandle: "out", Kind: compiler.EdgeSuccess}},
			},
			{
				Ref: "c", ComponentID: "core.test.passthrough", DependsOn: []string{"a"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "a", SourceHandle: "value"}}},
				Outgoing:      []compiler.OutgoingEdge{{TargetRef: "d", TargetHandle: "right", SourceHandle: "out", Kind: compiler.EdgeSuccess}},
			},
			{
				Ref: "d", ComponentID: "core.test.join", DependsOn: []string{"b", "c"},
				InputMappings: map[string][]compiler.SourceRef{
					"left":  {{SourceRef: "b", SourceHandle: "out"}},
					"right": {{SourceRef: "c", SourceHandle: "out"}},
				},
			},
		},
		EntrypointRef:    "a",
		DependencyCounts: map[string]int{"a": 0, "b": 1, "c": 1, "d": 2},
		TotalActions:     4,
	}

	result, err := orc.Run(context.Background(), def, store.RunDescriptor{RunID: "run-fanin", WorkflowID: "wf-fanin"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Run.Status != store.RunSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", result.Run.Status)
	}
	if result.Outputs["sum"] != "x+x" {
		t.Errorf("Outputs[sum] = %v, want x+x", result.Outputs["sum"])
	}
}

func TestRunFailureEdgeReroutesAndSucceeds(t *testing.T) {
	orc, _ := newTestOrchestrator(t,
		sourceComponent("core.test.source", "x"),
		alwaysFailsComponent("core.test.failer"),
		passthroughComponent("core.test.passthrough"),
	)

	def := &compiler.Definition{
		Name: "failure-reroute",
		Actions: []compiler.Action{
			{
				Ref: "a", ComponentID: "core.test.source", IsEntrypoint: true,
				Outgoing: []compiler.OutgoingEdge{{TargetRef: "risky", TargetHandle: "in", SourceHandle: "value", Kind: compiler.EdgeSuccess}},
			},
			{
				Ref: "risky", ComponentID: "core.test.failer", DependsOn: []string{"a"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "a", SourceHandle: "value"}}},
				Outgoing:      []compiler.OutgoingEdge{{TargetRef: "onFail", TargetHandle: "in", SourceHandle: "out", Kind: compiler.EdgeFailure}},
			},
			{
				Ref: "onFail", ComponentID: "core.test.passthrough", DependsOn: []string{"risky"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "risky", SourceHandle: "out"}}},
			},
		},
		EntrypointRef:    "a",
		DependencyCounts: map[string]int{"a": 0, "risky": 1, "onFail": 1},
		TotalActions:     3,
	}

	result, err := orc.Run(context.Background(), def, store.RunDescriptor{RunID: "run-reroute", WorkflowID: "wf-reroute"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Run.Status != store.RunSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED (failure routed via failure edge)", result.Run.Status)
	}
}

func TestRunUnhandledFailureFailsRun(t *testing.T) {
	orc, _ := newTestOrchestrator(t,
		sourceComponent("core.test.source", "x"),
		alwaysFailsComponent("core.test.failer"),
	)

	def := &compiler.Definition{
		Name: "unhandled-failure",
		Actions: []compiler.Action{
			{
				Ref: "a", ComponentID: "core.test.source", IsEntrypoint: true,
				Outgoing: []compiler.OutgoingEdge{{TargetRef: "risky", TargetHandle: "in", SourceHandle: "value", Kind: compiler.EdgeSuccess}},
			},
			{
				Ref: "risky", ComponentID: "core.test.failer", DependsOn: []string{"a"},
				InputMappings: map[string][]compiler.SourceRef{"in": {{SourceRef: "a", SourceHandle: "value"}}},
			},
		},
		EntrypointRef:    "a",
		DependencyCounts: map[string]int{"a": 0, "risky": 1},
		TotalActions:     2,
	}

	result, err := orc.Run(context.Background(), def, store.RunDescriptor{RunID: "run-fails", WorkflowID: "wf-fails"})
	if err == nil {
		t.Fatal("expected a run-level error for an unhandled action failure")
	}
	if result == nil || result.Run.Status != store.RunFailed {
		t.Fatalf("Status = %+v, want FAILED", result)
	}
	if result.Run.Failure == nil || result.Run.Failure.Reason == "" {
		t.Error("expected a populated Failure reason on the terminal run record")
	}
}
