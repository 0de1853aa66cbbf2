// Package comp models the serialized computation payloads that flow between
// executors. A Computation carries exactly one of three bodies:
//
//   - Op: a builtin function body a leaf executor can evaluate directly
//     (identity, a scalar constant, or a named binary operator). Operands
//     are protobuf Values so payloads stay wire-portable.
//   - Lambda: an opaque body that must be handed verbatim to a delegate
//     executor; the composing tier never looks inside it.
//   - Intrinsic: a reference to a built-in federated operator by URI, to be
//     interpreted by the executor that receives it.
package comp

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Kind discriminates the body held by a Computation.
type Kind string

const (
	KindOp        Kind = "op"
	KindLambda    Kind = "lambda"
	KindIntrinsic Kind = "intrinsic"
)

// Builtin op names understood by leaf executors.
const (
	OpIdentity = "identity"
	OpConst    = "const"
	OpAdd      = "add"
	OpMultiply = "multiply"
	OpDivide   = "divide"
)

// Computation is an unparsed function payload.
type Computation struct {
	Kind Kind

	// Intrinsic is the operator URI when Kind == KindIntrinsic.
	Intrinsic string

	// Op names the builtin body when Kind == KindOp; Operand carries the
	// constant for OpConst and is nil otherwise.
	Op      string
	Operand *structpb.Value

	// Body is the opaque payload when Kind == KindLambda.
	Body []byte
}

// IntrinsicComp returns a computation referencing the operator uri.
func IntrinsicComp(uri string) *Computation {
	return &Computation{Kind: KindIntrinsic, Intrinsic: uri}
}

// LambdaIdentity returns the identity function body (x -> x).
func LambdaIdentity() *Computation {
	return &Computation{Kind: KindOp, Op: OpIdentity}
}

// ScalarConstant returns a no-argument body producing the given scalar.
func ScalarConstant(v any) (*Computation, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, fmt.Errorf("constant %v is not representable: %w", v, err)
	}
	return &Computation{Kind: KindOp, Op: OpConst, Operand: pv}, nil
}

// BinaryOperator returns a body applying the named elementwise binary
// operator to a 2-tuple argument. The name must be one of the builtin op
// names above.
func BinaryOperator(name string) *Computation {
	return &Computation{Kind: KindOp, Op: name}
}

func (c *Computation) String() string {
	switch c.Kind {
	case KindIntrinsic:
		return fmt.Sprintf("intrinsic(%s)", c.Intrinsic)
	case KindOp:
		return fmt.Sprintf("op(%s)", c.Op)
	case KindLambda:
		return "lambda"
	default:
		return string(c.Kind)
	}
}
