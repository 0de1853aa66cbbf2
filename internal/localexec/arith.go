package localexec

import (
	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/types"
)

// applyOp evaluates a builtin op body against already materialized
// argument data. argData is nil for no-argument bodies.
func applyOp(c *comp.Computation, ft types.FunctionType, argData any) (any, error) {
	switch c.Op {
	case comp.OpIdentity:
		return argData, nil
	case comp.OpConst:
		if c.Operand == nil {
			return nil, executor.Unsupportedf("constant op carries no operand")
		}
		return coerceScalar(c.Operand.AsInterface(), ft.Result), nil
	case comp.OpAdd, comp.OpMultiply, comp.OpDivide:
		pair, ok := argData.(executor.Tuple)
		if !ok || len(pair) != 2 {
			return nil, executor.Typef("binary op %s expects a 2-tuple argument, got %T", c.Op, argData)
		}
		return binary(c.Op, pair[0].Value, pair[1].Value)
	default:
		return nil, executor.Unsupportedf("unknown op %q", c.Op)
	}
}

// binary applies a named arithmetic op. Integer operands stay integral for
// add and multiply; divide always produces float64.
func binary(op string, a, b any) (any, error) {
	af, aIsFloat, err := toNumber(a)
	if err != nil {
		return nil, err
	}
	bf, bIsFloat, err := toNumber(b)
	if err != nil {
		return nil, err
	}
	float := aIsFloat || bIsFloat || op == comp.OpDivide
	switch op {
	case comp.OpAdd:
		if float {
			return af + bf, nil
		}
		return int64(af) + int64(bf), nil
	case comp.OpMultiply:
		if float {
			return af * bf, nil
		}
		return int64(af) * int64(bf), nil
	case comp.OpDivide:
		if bf == 0 {
			return nil, executor.Typef("division by zero")
		}
		return af / bf, nil
	default:
		return nil, executor.Unsupportedf("unknown binary op %q", op)
	}
}

func toNumber(v any) (f float64, isFloat bool, err error) {
	switch n := v.(type) {
	case int:
		return float64(n), false, nil
	case int32:
		return float64(n), false, nil
	case int64:
		return float64(n), false, nil
	case float32:
		return float64(n), true, nil
	case float64:
		return n, true, nil
	default:
		return 0, false, executor.Typef("expected a numeric scalar, got %T", v)
	}
}

// coerceScalar shapes a wire scalar (always float64/bool/string after
// protobuf Struct decoding) to the declared tensor dtype.
func coerceScalar(v any, t types.Type) any {
	tt, ok := t.(types.TensorType)
	if !ok {
		return v
	}
	switch tt.Dtype {
	case types.Int32, types.Int64:
		if f, _, err := toNumber(v); err == nil {
			return int64(f)
		}
	case types.Float32, types.Float64:
		if f, _, err := toNumber(v); err == nil {
			return f
		}
	}
	return v
}
