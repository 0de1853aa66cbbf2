// Package executor defines the capability shared by every node in an
// executor tree: leaves that actually run function bodies, composing nodes
// that route and aggregate, and remote proxies that carry the capability
// across processes. Recursive composition falls out of every node kind
// implementing the same interface.
package executor

import (
	"context"

	"github.com/hanpama/fedtree/internal/types"
)

// Value is an immutable handle to data held by some executor.
//
// Compute materializes the handle into concrete Go data, recursing through
// any structure the handle carries. Implementations must be safe for
// concurrent use and must surface the failure of any nested
// materialization rather than returning a partial result.
type Value interface {
	// Type returns the structural type of the value.
	Type() types.Type
	// Compute materializes the value into concrete data.
	Compute(ctx context.Context) (any, error)
}

// TupleElement pairs an optional name with a value for tuple construction.
type TupleElement struct {
	Name  string
	Value Value
}

// Selector picks one element of a tuple value, by index or by name.
// Exactly one of the two must be set; use ByIndex or ByName.
type Selector struct {
	Index    int
	Name     string
	hasIndex bool
}

// ByIndex selects the i-th tuple element.
func ByIndex(i int) Selector { return Selector{Index: i, hasIndex: true} }

// ByName selects the tuple element with the given name.
func ByName(name string) Selector { return Selector{Name: name} }

// Valid reports whether exactly one of index and name is set.
func (s Selector) Valid() bool { return s.hasIndex != (s.Name != "") }

// HasIndex reports whether the selector is positional.
func (s Selector) HasIndex() bool { return s.hasIndex }

// Executor is the abstract node capability.
//
// General contract:
//   - Values returned by one executor must only be passed back to the same
//     executor. Moving data between executors goes through Compute on one
//     side and CreateValue on the other.
//   - All methods are safe for concurrent use; implementations must support
//     multiple in-flight top-level requests.
//   - Errors are synchronous results of the failing call. Implementations
//     never retry and never swallow a delegate failure.
//   - Close releases every resource the executor owns, including values it
//     produced and any subordinate executors it exclusively owns. Close is
//     idempotent.
type Executor interface {
	// CreateValue embeds raw data as a value of the given type. The raw
	// data may be concrete Go data, a *comp.Computation payload, or an
	// *intrinsics.Def, depending on the node kind.
	CreateValue(ctx context.Context, value any, t types.Type) (Value, error)

	// CreateCall invokes fn, a value of function type, on arg. arg is nil
	// for no-argument functions. The argument type must be assignable to
	// the function's parameter type.
	CreateCall(ctx context.Context, fn Value, arg Value) (Value, error)

	// CreateTuple builds a tuple value from ordered, optionally named
	// elements, each already a value of this executor.
	CreateTuple(ctx context.Context, elements []TupleElement) (Value, error)

	// CreateSelection picks one element of a tuple-typed source value.
	CreateSelection(ctx context.Context, source Value, sel Selector) (Value, error)

	// Close releases the executor's resources.
	Close() error
}
