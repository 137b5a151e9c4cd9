package ports

import "fmt"

// Kind identifies which branch of the data-type algebra a Type occupies.
type Kind string

const (
	KindPrimitive Kind = "primitive"
	KindList      Kind = "list"
	KindMap       Kind = "map"
	KindContract  Kind = "contract"
)

// Primitive is one of the closed set of scalar port names.
type Primitive string

const (
	PrimitiveAny     Primitive = "any"
	PrimitiveText    Primitive = "text"
	PrimitiveNumber  Primitive = "number"
	PrimitiveBoolean Primitive = "boolean"
	PrimitiveSecret  Primitive = "secret"
	PrimitiveFile    Primitive = "file"
	PrimitiveJSON    Primitive = "json"
)

var validPrimitives = map[Primitive]bool{
	PrimitiveAny:     true,
	PrimitiveText:    true,
	PrimitiveNumber:  true,
	PrimitiveBoolean: true,
	PrimitiveSecret:  true,
	PrimitiveFile:    true,
	PrimitiveJSON:    true,
}

// Type is a node in the port-type algebra. Exactly one of the kind-specific
// fields is populated, selected by Kind.
type Type struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Primitive is set when Kind == KindPrimitive.
	Primitive Primitive `json:"primitive,omitempty" yaml:"primitive,omitempty"`
	// CoercionFrom lists primitives this primitive will silently accept
	// in place of an exact match (§3: "coercion.from").
	CoercionFrom []Primitive `json:"coercionFrom,omitempty" yaml:"coercionFrom,omitempty"`

	// Element is set when Kind == KindList: the type of each element.
	Element *Type `json:"element,omitempty" yaml:"element,omitempty"`

	// Value is set when Kind == KindMap: the type of each value.
	Value *Type `json:"value,omitempty" yaml:"value,omitempty"`

	// ContractName/ContractCredential are set when Kind == KindContract.
	ContractName       string `json:"contractName,omitempty" yaml:"contractName,omitempty"`
	ContractCredential bool   `json:"contractCredential,omitempty" yaml:"contractCredential,omitempty"`
}

// Prim builds a primitive Type, optionally with a coercion table.
func Prim(name Primitive, coerceFrom ...Primitive) Type {
	return Type{Kind: KindPrimitive, Primitive: name, CoercionFrom: coerceFrom}
}

// List builds a list Type over the given element type.
func List(element Type) Type {
	return Type{Kind: KindList, Element: &element}
}

// Map builds a map Type over the given value type.
func Map(value Type) Type {
	return Type{Kind: KindMap, Value: &value}
}

// Contract builds a nominal contract Type.
func Contract(name string, credential bool) Type {
	return Type{Kind: KindContract, ContractName: name, ContractCredential: credential}
}

// Validate checks that a Type is well-formed: a known primitive name,
// a list/map with a well-formed element, or a named contract.
func (t Type) Validate() error {
	switch t.Kind {
	case KindPrimitive:
		if !validPrimitives[t.Primitive] {
			return fmt.Errorf("ports: unknown primitive %q", t.Primitive)
		}
		for _, from := range t.CoercionFrom {
			if !validPrimitives[from] {
				return fmt.Errorf("ports: unknown coercion source %q on primitive %q", from, t.Primitive)
			}
		}
		return nil
	case KindList:
		if t.Element == nil {
			return fmt.Errorf("ports: list type missing element type")
		}
		return t.Element.Validate()
	case KindMap:
		if t.Value == nil {
			return fmt.Errorf("ports: map type missing value type")
		}
		return t.Value.Validate()
	case KindContract:
		if t.ContractName == "" {
			return fmt.Errorf("ports: contract type missing name")
		}
		return nil
	default:
		return fmt.Errorf("ports: unknown kind %q", t.Kind)
	}
}

// String renders a Type for error messages and debugging.
func (t Type) String() string {
	switch t.Kind {
	case KindPrimitive:
		return string(t.Primitive)
	case KindList:
		if t.Element == nil {
			return "list<?>"
		}
		return "list<" + t.Element.String() + ">"
	case KindMap:
		if t.Value == nil {
			return "map<?>"
		}
		return "map<" + t.Value.String() + ">"
	case KindContract:
		if t.ContractCredential {
			return "contract<" + t.ContractName + ",credential>"
		}
		return "contract<" + t.ContractName + ">"
	default:
		return "invalid"
	}
}

// coercionAllowed reports whether target accepts source via its coercion
// table, independent of the "any is bottom/top" and exact-match rules
// handled by Compatible.
func (t Type) coercionAllowed(from Primitive) bool {
	for _, c := range t.CoercionFrom {
		if c == from {
			return true
		}
	}
	return false
}

// Compatible reports whether a value of type source may flow into a port
// declared as type target, per the §3 compatibility rule:
//
//	target = source, or
//	target = any, or
//	target is primitive and lists source in coercion.from, or
//	both are lists/maps whose element/value types are (recursively) compatible, or
//	both are contracts with equal name and credential flag.
func Compatible(source, target Type) bool {
	if target.Kind == KindPrimitive && target.Primitive == PrimitiveAny {
		return true
	}
	if source.Kind == KindPrimitive && source.Primitive == PrimitiveAny {
		// any is bottom of the lattice too: an `any`-typed source can
		// flow into anything, mirroring "any is bottom and top".
		return true
	}
	if source.Kind != target.Kind {
		return false
	}
	switch target.Kind {
	case KindPrimitive:
		if source.Primitive == target.Primitive {
			return true
		}
		return target.coercionAllowed(source.Primitive)
	case KindList:
		if source.Element == nil || target.Element == nil {
			return false
		}
		return Compatible(*source.Element, *target.Element)
	case KindMap:
		if source.Value == nil || target.Value == nil {
			return false
		}
		return Compatible(*source.Value, *target.Value)
	case KindContract:
		return source.ContractName == target.ContractName && source.ContractCredential == target.ContractCredential
	default:
		return false
	}
}

// CanCoerceValue reports whether a runtime scalar can be coerced from one
// primitive representation to another, per §4.4 step 4: text<->number,
// text<->boolean in both directions; any->T always accepted.
func CanCoerceValue(from, to Primitive) bool {
	if to == PrimitiveAny || from == PrimitiveAny {
		return true
	}
	if from == to {
		return true
	}
	pairs := map[[2]Primitive]bool{
		{PrimitiveText, PrimitiveNumber}:  true,
		{PrimitiveNumber, PrimitiveText}:  true,
		{PrimitiveText, PrimitiveBoolean}: true,
		{PrimitiveBoolean, PrimitiveText}: true,
	}
	return pairs[[2]Primitive{from, to}]
}
