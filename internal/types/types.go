// Package types defines the structural type descriptors used throughout the
// executor tree: tensor (scalar) types, function types, named tuples,
// federated types with a placement and an all-equal flag, and abstract
// label types used only inside generic intrinsic signatures.
//
// Types are immutable values. Two types are interchangeable iff Equal
// reports true; AssignableFrom adds the one directed relaxation the
// federated algebra permits (an all-equal CLIENTS value may be used where a
// non-all-equal one is expected).
package types

import (
	"fmt"
	"strings"
)

// Placement identifies where the member data of a federated type lives.
type Placement string

const (
	// Server placement: one logical copy, held by the parent tier.
	Server Placement = "server"
	// Clients placement: one copy per participant.
	Clients Placement = "clients"
)

// Dtype enumerates the scalar element kinds carried by TensorType.
type Dtype string

const (
	Int32   Dtype = "int32"
	Int64   Dtype = "int64"
	Float32 Dtype = "float32"
	Float64 Dtype = "float64"
	Bool    Dtype = "bool"
	String  Dtype = "string"
)

// Type is the closed set of structural type descriptors.
type Type interface {
	fmt.Stringer
	// isType restricts implementations to this package.
	isType()
}

// TensorType describes a scalar leaf value.
type TensorType struct {
	Dtype Dtype
}

// FunctionType describes a function. Parameter is nil for no-argument
// functions.
type FunctionType struct {
	Parameter Type
	Result    Type
}

// TupleElement is one element of a TupleType. Name may be empty for
// positional elements.
type TupleElement struct {
	Name string
	Type Type
}

// TupleType describes an ordered, optionally named tuple.
type TupleType struct {
	Elements []TupleElement
}

// FederatedType describes a value placed at Server or Clients.
type FederatedType struct {
	Member    Type
	Placement Placement
	AllEqual  bool
}

// AbstractType is a generic label standing for "any concrete type" inside
// an intrinsic signature. It never appears in the type of a live value.
type AbstractType struct {
	Label string
}

func (TensorType) isType()    {}
func (FunctionType) isType()  {}
func (TupleType) isType()     {}
func (FederatedType) isType() {}
func (AbstractType) isType()  {}

func (t TensorType) String() string { return string(t.Dtype) }

func (t FunctionType) String() string {
	if t.Parameter == nil {
		return fmt.Sprintf("( -> %s)", t.Result)
	}
	return fmt.Sprintf("(%s -> %s)", t.Parameter, t.Result)
}

func (t TupleType) String() string {
	var b strings.Builder
	b.WriteByte('<')
	for i, el := range t.Elements {
		if i > 0 {
			b.WriteByte(',')
		}
		if el.Name != "" {
			b.WriteString(el.Name)
			b.WriteByte('=')
		}
		b.WriteString(el.Type.String())
	}
	b.WriteByte('>')
	return b.String()
}

func (t FederatedType) String() string {
	if t.AllEqual {
		return fmt.Sprintf("%s@%s", t.Member, t.Placement)
	}
	return fmt.Sprintf("{%s}@%s", t.Member, t.Placement)
}

func (t AbstractType) String() string { return t.Label }

// Tuple builds an unnamed TupleType from element types.
func Tuple(elements ...Type) TupleType {
	els := make([]TupleElement, len(elements))
	for i, t := range elements {
		els[i] = TupleElement{Type: t}
	}
	return TupleType{Elements: els}
}

// NamedTuple builds a TupleType from (name, type) elements.
func NamedTuple(elements ...TupleElement) TupleType {
	return TupleType{Elements: append([]TupleElement(nil), elements...)}
}

// AtServer returns member@server (all_equal is always true at server).
func AtServer(member Type) FederatedType {
	return FederatedType{Member: member, Placement: Server, AllEqual: true}
}

// AtClients returns {member}@clients with all_equal false.
func AtClients(member Type) FederatedType {
	return FederatedType{Member: member, Placement: Clients, AllEqual: false}
}

// AtClientsAllEqual returns member@clients with all_equal true.
func AtClientsAllEqual(member Type) FederatedType {
	return FederatedType{Member: member, Placement: Clients, AllEqual: true}
}

// Function builds a FunctionType.
func Function(parameter, result Type) FunctionType {
	return FunctionType{Parameter: parameter, Result: result}
}

// UnaryOpType is (t -> t).
func UnaryOpType(t Type) FunctionType { return Function(t, t) }

// BinaryOpType is (<t,t> -> t).
func BinaryOpType(t Type) FunctionType { return Function(Tuple(t, t), t) }
