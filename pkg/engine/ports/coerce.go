package ports

import (
	"fmt"
	"strconv"
)

// CoerceScalar attempts to convert a JSON-decoded scalar value from one
// primitive representation to another, following the permitted pairs in
// CanCoerceValue. It returns ok=false (never an error) when the pair is
// not permitted or the concrete value does not parse, since §4.4 step 4
// treats a failed coercion as a warning, not a hard error: the caller is
// expected to leave the field unset rather than fail the activity.
func CoerceScalar(value any, to Primitive) (any, bool) {
	if to == PrimitiveAny {
		return value, true
	}
	switch to {
	case PrimitiveText:
		return coerceToText(value)
	case PrimitiveNumber:
		return coerceToNumber(value)
	case PrimitiveBoolean:
		return coerceToBoolean(value)
	default:
		return value, false
	}
}

func coerceToText(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return nil, false
	}
}

func coerceToNumber(value any) (any, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func coerceToBoolean(value any) (any, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}

// CoerceList applies CoerceScalar element-wise to a list value, per §3's
// "both are lists... whose element types are compatible" and §4.4's
// "lists accept element-wise coercion". It fails (ok=false) if any
// element fails to coerce.
func CoerceList(values []any, to Primitive) ([]any, bool) {
	out := make([]any, len(values))
	for i, v := range values {
		coerced, ok := CoerceScalar(v, to)
		if !ok {
			return nil, false
		}
		out[i] = coerced
	}
	return out, true
}

// DescribeFailure renders a human-readable coercion-failure message for
// trace/log output; it never includes the raw value to avoid leaking
// secrets through log lines (mirrors pkg/workflow's ErrTypeAssertion
// convention of never echoing the actual value).
func DescribeFailure(fromType string, to Primitive) string {
	return fmt.Sprintf("cannot coerce %s to %s", fromType, to)
}
