// Package localexec provides an in-process leaf executor that simulates a
// fixed block of clients. It evaluates op payloads directly over concrete
// Go data and implements the local renditions of the federated intrinsics,
// which makes it usable both as a child (owning clients) and as a parent
// (unplaced and server-side processing) of a composing executor.
package localexec

import (
	"context"
	"sync/atomic"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

// Executor is a leaf executor owning a fixed number of simulated clients.
// A zero client count is valid for parent-tier use.
type Executor struct {
	clients int
	closed  atomic.Bool
}

var _ executor.Executor = (*Executor)(nil)

// New creates a leaf executor simulating the given number of clients.
func New(clients int) *Executor {
	return &Executor{clients: clients}
}

// NumClients returns the number of simulated clients.
func (e *Executor) NumClients() int { return e.clients }

// value is a handle to data held by this executor. data holds one of:
// concrete Go data, a *comp.Computation, an *intrinsics.Def, a federated
// placement (member data for server/all-equal, a per-client []any
// otherwise), or tupleData.
type value struct {
	t    types.Type
	data any
}

type tupleData []tupleItem

type tupleItem struct {
	name string
	val  *value
}

var _ executor.Value = (*value)(nil)

func (v *value) Type() types.Type { return v.t }

func (v *value) Compute(ctx context.Context) (any, error) {
	switch d := v.data.(type) {
	case *comp.Computation:
		return nil, executor.Unsupportedf("cannot materialize %s computation", d.Kind)
	case *intrinsics.Def:
		return nil, executor.Unsupportedf("cannot materialize intrinsic %s", d.URI)
	case tupleData:
		out := make(executor.Tuple, len(d))
		for i, it := range d {
			data, err := it.val.Compute(ctx)
			if err != nil {
				return nil, err
			}
			out[i] = executor.TupleItem{Name: it.name, Value: data}
		}
		return out, nil
	default:
		if ft, ok := v.t.(types.FederatedType); ok {
			if ft.Placement == types.Clients && !ft.AllEqual {
				items := v.data.([]any)
				out := make([]any, len(items))
				copy(out, items)
				return out, nil
			}
			// Server or all-equal: a single representative member value.
			return v.data, nil
		}
		return v.data, nil
	}
}

// CreateValue embeds raw data under the given type.
func (e *Executor) CreateValue(ctx context.Context, raw any, t types.Type) (executor.Value, error) {
	switch r := raw.(type) {
	case *intrinsics.Def:
		return &value{t: t, data: r}, nil
	case *comp.Computation:
		if r.Kind == comp.KindIntrinsic {
			def := intrinsics.ByURI(r.Intrinsic)
			if def == nil {
				return nil, &executor.NotImplementedError{URI: r.Intrinsic}
			}
			return &value{t: t, data: def}, nil
		}
		return &value{t: t, data: r}, nil
	}

	switch tt := t.(type) {
	case types.TupleType:
		items, err := rawTupleItems(raw, len(tt.Elements))
		if err != nil {
			return nil, err
		}
		td := make(tupleData, len(tt.Elements))
		for i, el := range tt.Elements {
			ev, err := e.CreateValue(ctx, items[i], el.Type)
			if err != nil {
				return nil, err
			}
			td[i] = tupleItem{name: el.Name, val: ev.(*value)}
		}
		return &value{t: tt, data: td}, nil
	case types.FederatedType:
		switch {
		case tt.Placement == types.Server:
			if !tt.AllEqual {
				return nil, executor.Typef("expected an all-equal value at server placement, found %s", tt)
			}
			return &value{t: tt, data: raw}, nil
		case tt.AllEqual:
			return &value{t: tt, data: raw}, nil
		default:
			items, ok := raw.([]any)
			if !ok {
				return nil, executor.Typef("expected a per-client list for %s, got %T", tt, raw)
			}
			if len(items) != e.clients {
				return nil, &executor.CardinalityError{Want: e.clients, Got: len(items)}
			}
			stored := make([]any, len(items))
			copy(stored, items)
			return &value{t: tt, data: stored}, nil
		}
	default:
		return &value{t: t, data: raw}, nil
	}
}

// CreateCall invokes a function payload or a local intrinsic.
func (e *Executor) CreateCall(ctx context.Context, fn executor.Value, arg executor.Value) (executor.Value, error) {
	fv, ok := fn.(*value)
	if !ok {
		return nil, executor.Typef("function value %T was not produced by this executor", fn)
	}
	var av *value
	if arg != nil {
		av, ok = arg.(*value)
		if !ok {
			return nil, executor.Typef("argument value %T was not produced by this executor", arg)
		}
	}
	switch d := fv.data.(type) {
	case *comp.Computation:
		ft, ok := fv.t.(types.FunctionType)
		if !ok {
			return nil, executor.Typef("cannot invoke a value of non-function type %s", fv.t)
		}
		var argData any
		if av != nil {
			data, err := av.Compute(ctx)
			if err != nil {
				return nil, err
			}
			argData = data
		}
		out, err := applyOp(d, ft, argData)
		if err != nil {
			return nil, err
		}
		return &value{t: ft.Result, data: out}, nil
	case *intrinsics.Def:
		handler := localIntrinsics[d.URI]
		if handler == nil {
			return nil, &executor.NotImplementedError{URI: d.URI}
		}
		return handler(ctx, e, av)
	default:
		return nil, executor.Unsupportedf("cannot invoke a value holding %T", fv.data)
	}
}

// CreateTuple assembles a tuple from values of this executor.
func (e *Executor) CreateTuple(ctx context.Context, elements []executor.TupleElement) (executor.Value, error) {
	td := make(tupleData, len(elements))
	elTypes := make([]types.TupleElement, len(elements))
	for i, el := range elements {
		ev, ok := el.Value.(*value)
		if !ok {
			return nil, executor.Typef("tuple element %d (%T) was not produced by this executor", i, el.Value)
		}
		td[i] = tupleItem{name: el.Name, val: ev}
		elTypes[i] = types.TupleElement{Name: el.Name, Type: ev.t}
	}
	return &value{t: types.TupleType{Elements: elTypes}, data: td}, nil
}

// CreateSelection picks one element of a tuple-typed source.
func (e *Executor) CreateSelection(ctx context.Context, source executor.Value, sel executor.Selector) (executor.Value, error) {
	if !sel.Valid() {
		return nil, executor.Unsupportedf("selection requires exactly one of index or name")
	}
	sv, ok := source.(*value)
	if !ok {
		return nil, executor.Typef("selection source %T was not produced by this executor", source)
	}
	td, ok := sv.data.(tupleData)
	if !ok {
		return nil, executor.Typef("cannot select from a value of type %s", sv.t)
	}
	if sel.HasIndex() {
		if sel.Index < 0 || sel.Index >= len(td) {
			return nil, executor.Typef("selection index %d out of range", sel.Index)
		}
		return td[sel.Index].val, nil
	}
	for _, it := range td {
		if it.name == sel.Name {
			return it.val, nil
		}
	}
	return nil, executor.Typef("no element named %q in %s", sel.Name, sv.t)
}

// Close marks the executor closed. Idempotent; simulated clients hold no
// external resources.
func (e *Executor) Close() error {
	e.closed.Store(true)
	return nil
}

func rawTupleItems(raw any, n int) ([]any, error) {
	switch r := raw.(type) {
	case []any:
		if len(r) != n {
			return nil, executor.Typef("expected %d tuple items, got %d", n, len(r))
		}
		return r, nil
	case executor.Tuple:
		if len(r) != n {
			return nil, executor.Typef("expected %d tuple items, got %d", n, len(r))
		}
		items := make([]any, len(r))
		for i, it := range r {
			items[i] = it.Value
		}
		return items, nil
	default:
		return nil, executor.Typef("expected tuple data, got %T", raw)
	}
}
