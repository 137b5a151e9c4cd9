package ports_test

import (
	"testing"

	"github.com/graphforge/core/pkg/engine/ports"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		name   string
		source ports.Type
		target ports.Type
		want   bool
	}{
		{
			name:   "exact primitive match",
			source: ports.Prim(ports.PrimitiveText),
			target: ports.Prim(ports.PrimitiveText),
			want:   true,
		},
		{
			name:   "any target accepts anything",
			source: ports.Prim(ports.PrimitiveNumber),
			target: ports.Prim(ports.PrimitiveAny),
			want:   true,
		},
		{
			name:   "any source flows anywhere",
			source: ports.Prim(ports.PrimitiveAny),
			target: ports.Prim(ports.PrimitiveNumber),
			want:   true,
		},
		{
			name:   "coercion table allows mismatch",
			source: ports.Prim(ports.PrimitiveText),
			target: ports.Prim(ports.PrimitiveNumber, ports.PrimitiveText),
			want:   true,
		},
		{
			name:   "no coercion table rejects mismatch",
			source: ports.Prim(ports.PrimitiveText),
			target: ports.Prim(ports.PrimitiveNumber),
			want:   false,
		},
		{
			name:   "lists compatible element-wise",
			source: ports.List(ports.Prim(ports.PrimitiveText)),
			target: ports.List(ports.Prim(ports.PrimitiveText)),
			want:   true,
		},
		{
			name:   "lists incompatible element-wise",
			source: ports.List(ports.Prim(ports.PrimitiveText)),
			target: ports.List(ports.Prim(ports.PrimitiveBoolean)),
			want:   false,
		},
		{
			name:   "maps compatible by value type",
			source: ports.Map(ports.Prim(ports.PrimitiveJSON)),
			target: ports.Map(ports.Prim(ports.PrimitiveAny)),
			want:   true,
		},
		{
			name:   "contracts match by name and credential",
			source: ports.Contract("anthropic-provider", true),
			target: ports.Contract("anthropic-provider", true),
			want:   true,
		},
		{
			name:   "contracts differ by credential flag",
			source: ports.Contract("anthropic-provider", false),
			target: ports.Contract("anthropic-provider", true),
			want:   false,
		},
		{
			name:   "contract vs primitive never compatible",
			source: ports.Contract("anthropic-provider", true),
			target: ports.Prim(ports.PrimitiveJSON),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ports.Compatible(tt.source, tt.target)
			if got != tt.want {
				t.Errorf("Compatible(%s, %s) = %v, want %v", tt.source, tt.target, got, tt.want)
			}
		})
	}
}

func TestTypeValidate(t *testing.T) {
	if err := ports.Prim(ports.PrimitiveText).Validate(); err != nil {
		t.Errorf("valid primitive rejected: %v", err)
	}
	bad := ports.Type{Kind: ports.KindPrimitive, Primitive: "not-a-real-primitive"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown primitive")
	}
	emptyList := ports.Type{Kind: ports.KindList}
	if err := emptyList.Validate(); err == nil {
		t.Error("expected error for list with no element type")
	}
	emptyContract := ports.Type{Kind: ports.KindContract}
	if err := emptyContract.Validate(); err == nil {
		t.Error("expected error for contract with no name")
	}
}

func TestCoerceScalar(t *testing.T) {
	if v, ok := ports.CoerceScalar("42", ports.PrimitiveNumber); !ok || v.(float64) != 42 {
		t.Errorf("text->number coercion failed: %v, %v", v, ok)
	}
	if v, ok := ports.CoerceScalar(3.5, ports.PrimitiveText); !ok || v != "3.5" {
		t.Errorf("number->text coercion failed: %v, %v", v, ok)
	}
	if v, ok := ports.CoerceScalar("true", ports.PrimitiveBoolean); !ok || v != true {
		t.Errorf("text->boolean coercion failed: %v, %v", v, ok)
	}
	if _, ok := ports.CoerceScalar("not-a-number", ports.PrimitiveNumber); ok {
		t.Error("expected coercion of non-numeric text to number to fail")
	}
	if _, ok := ports.CoerceScalar(map[string]any{}, ports.PrimitiveNumber); ok {
		t.Error("expected coercion of map to number to fail")
	}
}

func TestCoerceList(t *testing.T) {
	out, ok := ports.CoerceList([]any{"1", "2", "3"}, ports.PrimitiveNumber)
	if !ok {
		t.Fatal("expected element-wise coercion to succeed")
	}
	if len(out) != 3 || out[0].(float64) != 1 {
		t.Errorf("unexpected coerced list: %v", out)
	}

	if _, ok := ports.CoerceList([]any{"1", "not-a-number"}, ports.PrimitiveNumber); ok {
		t.Error("expected coercion to fail when any element fails")
	}
}
