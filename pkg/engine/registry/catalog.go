package registry

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/ports"
)

// catalogFile is the on-disk shape of a component catalog: the static
// fields of one or more Definitions, minus the Execute/ResolvePorts
// callbacks which have no YAML representation and must be supplied by
// the host application via Bind.
type catalogFile struct {
	Components []catalogComponent `yaml:"components"`
}

type catalogComponent struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Category string `yaml:"category"`

	Inputs     []catalogPort `yaml:"inputs"`
	Outputs    []catalogPort `yaml:"outputs"`
	Parameters []catalogPort `yaml:"parameters"`

	Runner      catalogRunner `yaml:"runner"`
	RetryPolicy catalogRetry  `yaml:"retryPolicy"`
}

type catalogPort struct {
	Handle        string         `yaml:"handle"`
	Type          string         `yaml:"type"`
	Element       string         `yaml:"element,omitempty"`
	ContractName  string         `yaml:"contract,omitempty"`
	Credential    bool           `yaml:"credential,omitempty"`
	CoercionFrom  []string       `yaml:"coercionFrom,omitempty"`
	Required      bool           `yaml:"required,omitempty"`
	ValuePriority string         `yaml:"valuePriority,omitempty"`
	Editor        string         `yaml:"editor,omitempty"`
	Metadata      map[string]any `yaml:"metadata,omitempty"`
}

type catalogRunner struct {
	Kind           string   `yaml:"kind"`
	Image          string   `yaml:"image,omitempty"`
	Command        []string `yaml:"command,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"`
}

type catalogRetry struct {
	MaxAttempts            int      `yaml:"maxAttempts"`
	InitialIntervalSeconds float64  `yaml:"initialIntervalSeconds"`
	MaxIntervalSeconds     float64  `yaml:"maxIntervalSeconds"`
	BackoffCoefficient     float64  `yaml:"backoffCoefficient"`
	NonRetryableErrorKinds []string `yaml:"nonRetryableErrorKinds,omitempty"`
}

// LoadCatalog parses a YAML catalog document into unbound component
// skeletons: every static field is populated, but Execute and
// ResolvePorts are left nil. Call Bind (or set them directly) before
// Register for any component whose runner.kind is "inline".
func LoadCatalog(data []byte) (map[string]*Definition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry: failed to parse catalog: %w", err)
	}

	out := make(map[string]*Definition, len(file.Components))
	for _, c := range file.Components {
		def, err := fromCatalogComponent(c)
		if err != nil {
			return nil, fmt.Errorf("registry: component %q: %w", c.ID, err)
		}
		out[def.ID] = def
	}
	return out, nil
}

func fromCatalogComponent(c catalogComponent) (*Definition, error) {
	inputs, err := toPortSpecs(c.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := toPortSpecs(c.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	params, err := toPortSpecs(c.Parameters)
	if err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}

	kinds := make([]errkind.Kind, 0, len(c.RetryPolicy.NonRetryableErrorKinds))
	for _, k := range c.RetryPolicy.NonRetryableErrorKinds {
		kind := errkind.Kind(k)
		if !errkind.Valid(kind) {
			return nil, fmt.Errorf("retryPolicy: unknown error kind %q", k)
		}
		kinds = append(kinds, kind)
	}

	return &Definition{
		ID:       c.ID,
		Label:    c.Label,
		Category: c.Category,

		Inputs:     inputs,
		Outputs:    outputs,
		Parameters: params,

		Runner: Runner{
			Kind:           RunnerKind(c.Runner.Kind),
			Image:          c.Runner.Image,
			Command:        c.Runner.Command,
			TimeoutSeconds: c.Runner.TimeoutSeconds,
		},
		RetryPolicy: RetryPolicy{
			MaxAttempts:            c.RetryPolicy.MaxAttempts,
			InitialInterval:        secondsToDuration(c.RetryPolicy.InitialIntervalSeconds),
			MaxInterval:            secondsToDuration(c.RetryPolicy.MaxIntervalSeconds),
			BackoffCoefficient:     c.RetryPolicy.BackoffCoefficient,
			NonRetryableErrorKinds: kinds,
		},
	}, nil
}

func toPortSpecs(in []catalogPort) ([]PortSpec, error) {
	out := make([]PortSpec, 0, len(in))
	for _, p := range in {
		typ, err := toType(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p.Handle, err)
		}
		out = append(out, PortSpec{
			Handle:        p.Handle,
			Schema:        typ,
			Required:      p.Required,
			Metadata:      p.Metadata,
			ValuePriority: p.ValuePriority,
			Editor:        p.Editor,
		})
	}
	return out, nil
}

func toType(p catalogPort) (ports.Type, error) {
	switch p.Type {
	case "list":
		if p.Element == "" {
			return ports.Type{}, fmt.Errorf("list port requires element type")
		}
		return ports.List(ports.Prim(ports.Primitive(p.Element))), nil
	case "map":
		if p.Element == "" {
			return ports.Type{}, fmt.Errorf("map port requires element (value) type")
		}
		return ports.Map(ports.Prim(ports.Primitive(p.Element))), nil
	case "contract":
		if p.ContractName == "" {
			return ports.Type{}, fmt.Errorf("contract port requires a contract name")
		}
		return ports.Contract(p.ContractName, p.Credential), nil
	case "":
		return ports.Type{}, fmt.Errorf("port requires a type")
	default:
		from := make([]ports.Primitive, 0, len(p.CoercionFrom))
		for _, f := range p.CoercionFrom {
			from = append(from, ports.Primitive(f))
		}
		return ports.Prim(ports.Primitive(p.Type), from...), nil
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
