package registry

import (
	"context"
	"time"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/ports"
)

// PortSpec describes one named port (input or output) of a component.
type PortSpec struct {
	// Handle is the port identifier used in inputMappings/sourceHandle.
	Handle   string         `yaml:"handle" json:"handle"`
	Schema   ports.Type     `yaml:"schema" json:"schema"`
	Required bool           `yaml:"required" json:"required"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	// ValuePriority governs input routing (§4.5): "auto-first" (default)
	// prefers the mapped upstream output over a manual override;
	// "manual-first" prefers the override. Only meaningful on inputs.
	ValuePriority string `yaml:"valuePriority,omitempty" json:"valuePriority,omitempty"`

	// Editor, when "secret", marks this input as sensitive: the
	// container runner must redact it from logs but still deliver it
	// unredacted on stdin (§4.7).
	Editor string `yaml:"editor,omitempty" json:"editor,omitempty"`
}

// IsManualFirst reports whether overrides take priority over the
// upstream-mapped value for this port (§4.5 valuePriority).
func (p PortSpec) IsManualFirst() bool {
	return p.ValuePriority == "manual-first"
}

// RunnerKind selects how the activity runtime dispatches a component.
type RunnerKind string

const (
	RunnerInline    RunnerKind = "inline"
	RunnerContainer RunnerKind = "container"
	RunnerRemote    RunnerKind = "remote"
)

// Runner describes the dispatch mechanism for a component (§3, §4.7).
type Runner struct {
	Kind RunnerKind `yaml:"kind" json:"kind"`

	// Container fields (Kind == RunnerContainer).
	Image          string `yaml:"image,omitempty" json:"image,omitempty"`
	Command        []string `yaml:"command,omitempty" json:"command,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
}

// Timeout returns the component's configured timeout, or 0 (meaning
// unbounded, per §4.5 "otherwise ∞") when none is configured.
func (r Runner) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RetryPolicy is the per-component retry configuration (§3, §4.4 step 7).
type RetryPolicy struct {
	MaxAttempts             int           `yaml:"maxAttempts" json:"maxAttempts"`
	InitialInterval          time.Duration `yaml:"initialInterval" json:"initialInterval"`
	MaxInterval              time.Duration `yaml:"maxInterval" json:"maxInterval"`
	BackoffCoefficient       float64       `yaml:"backoffCoefficient" json:"backoffCoefficient"`
	NonRetryableErrorKinds   []errkind.Kind `yaml:"nonRetryableErrorKinds,omitempty" json:"nonRetryableErrorKinds,omitempty"`
}

// DefaultRetryPolicy is applied when a component declares none: a single
// attempt, matching the closed-world assumption that retrying is opt-in.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        1,
		InitialInterval:    time.Second,
		MaxInterval:        time.Second,
		BackoffCoefficient: 1,
	}
}

// NextDelay computes the backoff delay before the given attempt number
// (1-indexed; attempt 1 always has no prior delay), per §4.4 step 7.
// With n = attempt-1 the attempt that just failed, the delay is
// min(maxInterval, initial * coefficient^(n-1)): attempt 2 waits the
// initial interval, attempt 3 initial*coefficient, and so on.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(p.InitialInterval)
	coeff := p.BackoffCoefficient
	if coeff <= 0 {
		coeff = 1
	}
	for i := 1; i < attempt-1; i++ {
		delay *= coeff
	}
	if p.MaxInterval > 0 && time.Duration(delay) > p.MaxInterval {
		return p.MaxInterval
	}
	return time.Duration(delay)
}

// IsNonRetryable reports whether k is fatal on first attempt for this
// policy: either a universally non-retryable kind (§4.4 step 7) or one
// the component explicitly listed.
func (p RetryPolicy) IsNonRetryable(k errkind.Kind) bool {
	if errkind.IsNonRetryable(k) {
		return true
	}
	for _, nr := range p.NonRetryableErrorKinds {
		if nr == k {
			return true
		}
	}
	return false
}

// ActivityInput is the argument passed to a component's Execute function.
type ActivityInput struct {
	Inputs map[string]any
	Params map[string]any
}

// ActivityContext is the ctx contract described in spec §4.4: the
// services a component may call during Execute. It intentionally holds
// interfaces rather than concrete clients so out-of-scope collaborators
// (secret store, artifact/file storage, HTTP egress) can be substituted
// by the host application.
type ActivityContext struct {
	RunID         string
	ComponentRef  string
	Attempt       int
	Metadata      map[string]any

	Logger        Logger
	HTTP          HTTPClient
	EmitProgress  func(ProgressEvent)
	Files         FileStore
	Secrets       SecretResolver
	Artifacts     ArtifactStore
	Trace         TraceEmitter
}

// ProgressEvent is delivered to EmitProgress (§4.4 step 6).
type ProgressEvent struct {
	Level   string
	Message string
	Data    map[string]any
}

// Logger is the minimal structured-logging surface a component needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HTTPRequestOptions configures sensitive-header redaction for fetch.
type HTTPRequestOptions struct {
	SensitiveHeaders []string
}

// HTTPClient is the ctx.http.fetch contract (§4.4).
type HTTPClient interface {
	Fetch(ctx context.Context, url string, init *HTTPRequestInit, opts HTTPRequestOptions) (*HTTPResponse, error)
}

// HTTPRequestInit mirrors a fetch()-style request descriptor.
type HTTPRequestInit struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse is the result of an HTTPClient.Fetch call.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// FileStore is the ctx.files contract: out of scope per spec §1, only
// the consumed interface is fixed here.
type FileStore interface {
	Read(ctx context.Context, ref string) ([]byte, error)
	Write(ctx context.Context, ref string, data []byte) error
}

// SecretResolver is the ctx.secrets contract: out of scope per spec §1.
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// ArtifactStore is the ctx.artifacts contract: out of scope per spec §1.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// TraceEmitter is the ctx.trace contract used by components that want
// to emit structured data directly (beyond EmitProgress).
type TraceEmitter interface {
	Emit(ctx context.Context, level, message string, data map[string]any)
}

// ActivityOutput is the value returned by a component's Execute function.
type ActivityOutput struct {
	Outputs map[string]any
}

// ResolvePortsFunc computes the effective input/output schema for a node
// given its compiled parameters, overriding the component's static ports
// (§3 "optional resolvePorts(params)").
type ResolvePortsFunc func(params map[string]any) (inputs, outputs []PortSpec, err error)

// ExecuteFunc is the inline-runner entry point for a component.
type ExecuteFunc func(ctx context.Context, in ActivityInput, actx *ActivityContext) (ActivityOutput, error)

// Definition is the immutable component definition (§3 "Component
// definition"). Definitions are built once at startup and never mutated
// afterward (§5 "the component registry is read-only after startup").
type Definition struct {
	ID       string
	Label    string
	Category string

	Inputs     []PortSpec
	Outputs    []PortSpec
	Parameters []PortSpec

	Runner      Runner
	RetryPolicy RetryPolicy

	ResolvePorts ResolvePortsFunc
	Execute      ExecuteFunc
}

// EffectiveRetryPolicy returns the component's configured retry policy,
// falling back to DefaultRetryPolicy when MaxAttempts was left at zero.
func (d *Definition) EffectiveRetryPolicy() RetryPolicy {
	if d.RetryPolicy.MaxAttempts == 0 {
		return DefaultRetryPolicy()
	}
	return d.RetryPolicy
}

// EffectivePorts returns the component's input/output schema, invoking
// ResolvePorts when the component declares one (§4.1 step 2, §4.4
// step 2).
func (d *Definition) EffectivePorts(params map[string]any) (inputs, outputs []PortSpec, err error) {
	if d.ResolvePorts == nil {
		return d.Inputs, d.Outputs, nil
	}
	return d.ResolvePorts(params)
}

// PortByHandle returns the PortSpec in specs (inputs or outputs) with
// the given handle, or false if there is no such port.
func PortByHandle(specs []PortSpec, handle string) (PortSpec, bool) {
	for _, s := range specs {
		if s.Handle == handle {
			return s, true
		}
	}
	return PortSpec{}, false
}
