// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/store"
)

// TraceSink is the durable side of the trace channel the runtime
// appends STARTED/PROGRESS/COMPLETED/FAILED events to (spec §4.4 step
// 6). pkg/engine/store.EventStore satisfies this directly; callers
// that also want live fan-out wrap it with a type that also publishes
// to pkg/engine/tracebus.
type TraceSink interface {
	AppendEvents(ctx context.Context, runID string, events []store.Event) (uint64, error)
}

// InvokeRequest is one activity dispatch: a single compiled action,
// its runtime input bindings, and the attempt to resume from (1 for a
// fresh dispatch; the orchestrator may resume a replay at a later
// attempt after a crash, spec §4.5 "replay-safe").
type InvokeRequest struct {
	RunID          string
	NodeRef        string
	ComponentID    string
	Params         map[string]any
	MappedInputs   map[string]any
	InputOverrides map[string]any
	Metadata       map[string]any
	Attempt        int
}

// InvokeResult is the outcome of Invoke: the final outputs (on
// success), the attempt count actually used, and any non-fatal
// coercion warnings accumulated along the way.
type InvokeResult struct {
	Outputs  map[string]any
	Attempts int
	Warnings []string
}

// Runtime is the activity runtime (spec §4.4, C6): it resolves a
// component's effective ports, applies input routing/coercion, records
// trace events, dispatches through the configured Runner, and enforces
// the component's retry policy with exponential backoff.
type Runtime struct {
	registry *registry.Registry
	trace    TraceSink
	runners  map[registry.RunnerKind]Runner

	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *Metrics
	tracer  oteltrace.Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a Runtime against the given (already-built) component
// registry and trace sink, with a default inline runner registered and
// every optional collaborator left unset, matching the teacher's
// NewExecutor-plus-With*-setters construction style.
func New(reg *registry.Registry, trace TraceSink) *Runtime {
	return &Runtime{
		registry: reg,
		trace:    trace,
		runners:  map[registry.RunnerKind]Runner{registry.RunnerInline: inlineRunner{}},
		logger:   slog.Default(),
		tracer:   otel.Tracer("graphforge/engine/runtime"),
		sleep:    ctxSleep,
	}
}

// WithRunner registers (or replaces) the dispatcher used for a given
// RunnerKind, e.g. the container adapter from pkg/engine/runner.
func (rt *Runtime) WithRunner(kind registry.RunnerKind, r Runner) *Runtime {
	rt.runners[kind] = r
	return rt
}

// WithLogger sets a custom logger for the runtime.
func (rt *Runtime) WithLogger(logger *slog.Logger) *Runtime {
	rt.logger = logger
	return rt
}

// WithLimiter paces activity dispatch attempts (including retries)
// through a shared token bucket, preventing a hot retry loop across
// many runs from overwhelming downstream services.
func (rt *Runtime) WithLimiter(limiter *rate.Limiter) *Runtime {
	rt.limiter = limiter
	return rt
}

// WithMetrics attaches Prometheus collectors for per-attempt duration
// and retry counts.
func (rt *Runtime) WithMetrics(m *Metrics) *Runtime {
	rt.metrics = m
	return rt
}

// WithTracer overrides the OpenTelemetry tracer used for invocation
// spans (defaults to the global tracer provider's "graphforge/engine/runtime").
func (rt *Runtime) WithTracer(tracer oteltrace.Tracer) *Runtime {
	rt.tracer = tracer
	return rt
}

// Invoke runs one component to completion, applying retries per its
// EffectiveRetryPolicy (spec §4.4 steps 1-7). An unknown component, a
// failing resolvePorts or a failed limiter wait returns a nil result;
// otherwise the result carries the number of attempts actually made.
// On failure after exhausting retries (or on a non-retryable kind), the
// returned error is an *ActivityError, Outputs reflect the last attempt
// and Warnings hold the warnings of every attempt.
func (rt *Runtime) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	ctx, span := rt.tracer.Start(ctx, "activity.invoke",
		oteltrace.WithAttributes(
			attribute.String("graphforge.run_id", req.RunID),
			attribute.String("graphforge.node_ref", req.NodeRef),
			attribute.String("graphforge.component_id", req.ComponentID),
		))
	defer span.End()

	def, err := rt.registry.Get(req.ComponentID)
	if err != nil {
		return nil, err
	}

	inputSpecs, outputSpecs, err := def.EffectivePorts(req.Params)
	if err != nil {
		return nil, &ActivityError{
			ComponentRef: req.ComponentID,
			NodeRef:      req.NodeRef,
			Kind:         errkind.ValidationError,
			Message:      fmt.Sprintf("resolvePorts: %v", err),
			Cause:        err,
		}
	}

	policy := def.EffectiveRetryPolicy()
	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}

	var lastOutputs map[string]any
	var lastErr error
	var warnings []string

	for ; attempt <= policy.MaxAttempts; attempt++ {
		if rt.limiter != nil {
			if err := rt.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rt.emitStarted(ctx, req, attempt)

		attemptStart := time.Now()
		out, attemptWarnings, attemptErr := rt.invokeOnce(ctx, def, inputSpecs, outputSpecs, req, attempt)
		elapsed := time.Since(attemptStart).Seconds()
		warnings = append(warnings, attemptWarnings...)

		if attemptErr == nil {
			rt.emitCompleted(ctx, req, attempt, out)
			rt.metrics.observeDuration(req.ComponentID, "succeeded", elapsed)
			return &InvokeResult{Outputs: out, Attempts: attempt, Warnings: warnings}, nil
		}

		lastErr = attemptErr
		lastOutputs = out
		kind := Classify(attemptErr)
		rt.emitFailed(ctx, req, attempt, attemptErr, kind)
		rt.metrics.observeDuration(req.ComponentID, "failed", elapsed)

		if policy.IsNonRetryable(kind) || attempt == policy.MaxAttempts {
			break
		}

		rt.metrics.countRetry(req.ComponentID, string(kind))
		delay := policy.NextDelay(attempt + 1)
		if sleepErr := rt.sleep(ctx, delay); sleepErr != nil {
			return &InvokeResult{Outputs: lastOutputs, Attempts: attempt, Warnings: warnings}, sleepErr
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return &InvokeResult{Outputs: lastOutputs, Attempts: attempt, Warnings: warnings}, lastErr
}

// invokeOnce resolves inputs, builds the ActivityContext, and performs
// exactly one dispatch through the configured Runner, honoring the
// component's timeout.
func (rt *Runtime) invokeOnce(ctx context.Context, def *registry.Definition, inputSpecs, outputSpecs []registry.PortSpec, req InvokeRequest, attempt int) (map[string]any, []string, error) {
	inputs, warnings, err := ResolveInputs(inputSpecs, req.MappedInputs, req.InputOverrides)
	if err != nil {
		if ae, ok := err.(*ActivityError); ok {
			ae.ComponentRef = req.ComponentID
			ae.NodeRef = req.NodeRef
			ae.Attempt = attempt
		}
		return nil, warnings, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if d := def.Runner.Timeout(); d > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	actx := &registry.ActivityContext{
		RunID:        req.RunID,
		ComponentRef: req.ComponentID,
		Attempt:      attempt,
		Metadata:     req.Metadata,
		Logger:       slogAdapter{rt.logger},
		EmitProgress: func(ev registry.ProgressEvent) {
			rt.emitProgress(ctx, req, attempt, ev)
		},
	}

	runner, ok := rt.runners[def.Runner.Kind]
	if !ok {
		return nil, warnings, &ActivityError{
			ComponentRef: req.ComponentID,
			NodeRef:      req.NodeRef,
			Attempt:      attempt,
			Kind:         errkind.ConfigurationError,
			Message:      fmt.Sprintf("no runner registered for kind %q", def.Runner.Kind),
		}
	}

	out, err := runner.Dispatch(runCtx, def, registry.ActivityInput{Inputs: inputs, Params: req.Params}, actx)
	if err != nil {
		return out.Outputs, warnings, wrapAttempt(err, req, attempt)
	}

	coercedOut, outWarnings, cerr := coerceOutputs(outputSpecs, out.Outputs)
	warnings = append(warnings, outWarnings...)
	if cerr != nil {
		return out.Outputs, warnings, wrapAttempt(cerr, req, attempt)
	}

	return coercedOut, warnings, nil
}

// coerceOutputs applies the same port-type coercion table to a
// component's declared outputs that ResolveInputs applies to inputs,
// so a component returning a loosely-typed value (e.g. a text field
// for a number-typed output) still satisfies the compiled graph's
// downstream expectations.
func coerceOutputs(specs []registry.PortSpec, outputs map[string]any) (map[string]any, []string, error) {
	result := make(map[string]any, len(outputs))
	var warnings []string
	for _, spec := range specs {
		raw, has := outputs[spec.Handle]
		if !has {
			if spec.Required {
				return nil, warnings, &ActivityError{Kind: errkind.ValidationError, Message: fmt.Sprintf("missing required output %q", spec.Handle)}
			}
			continue
		}
		coerced, ok := coerceValue(raw, spec.Schema)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("output %q: %s", spec.Handle, "coercion failed"))
			if spec.Required {
				return nil, warnings, &ActivityError{Kind: errkind.ValidationError, Message: fmt.Sprintf("output %q failed coercion to %s", spec.Handle, spec.Schema)}
			}
			continue
		}
		result[spec.Handle] = coerced
	}
	// Pass through any undeclared fields (e.g. a resolvePorts schema
	// narrower than what the component actually returned) so no data
	// is silently dropped for callers inspecting raw outputs. A declared
	// field whose coercion failed stays unset.
	declared := make(map[string]bool, len(specs))
	for _, spec := range specs {
		declared[spec.Handle] = true
	}
	for k, v := range outputs {
		if !declared[k] {
			result[k] = v
		}
	}
	return result, warnings, nil
}

func wrapAttempt(err error, req InvokeRequest, attempt int) error {
	if ae, ok := err.(*ActivityError); ok {
		if ae.ComponentRef == "" {
			ae.ComponentRef = req.ComponentID
		}
		if ae.NodeRef == "" {
			ae.NodeRef = req.NodeRef
		}
		if ae.Attempt == 0 {
			ae.Attempt = attempt
		}
		return ae
	}
	return &ActivityError{
		ComponentRef: req.ComponentID,
		NodeRef:      req.NodeRef,
		Attempt:      attempt,
		Kind:         Classify(err),
		Message:      err.Error(),
		Cause:        err,
	}
}

// ctxSleep is the default backoff waiter: it blocks for d or returns
// early with ctx.Err() on cancellation, mirroring
// pkg/workflow/executor.go's executeWithRetry select{ctx.Done, time.After}.
func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
