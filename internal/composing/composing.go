// Package composing implements the composing executor: a coordination node
// that owns one parent executor for unplaced and server-side processing and
// an ordered set of child executors, each managing a disjoint block of
// clients. The node runs no tensor math itself; it routes values by
// placement, fans invocations out to the children, and folds results back
// through the parent.
//
// Composing executors implement the same capability they consume, so they
// nest: a child of one composing node may itself be a composing node,
// giving multi-level aggregation trees with leaf executors at the bottom.
//
// # Placement routing
//
// CreateValue inspects the target type. Unplaced and server-placed data go
// to the parent. all-equal client data is replicated to every child.
// Non-all-equal client data must arrive as a flat list covering every
// client; it is partitioned contiguously by the children's resolved
// cardinalities. Intrinsic references and function payloads are held
// locally until invoked.
//
// # Invocation
//
// CreateCall on an op payload delegates entirely to the parent. CreateCall
// on an intrinsic reference runs the operator's protocol, which issues
// further capability calls against the parent and children. All per-child
// and per-element fan-outs join in fixed child/element order regardless of
// completion order, and the aggregate merge fold at the parent is strictly
// sequential in child order.
package composing

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

var tracer = otel.Tracer("fedtree/composing")

// Executor composes a parent executor and an ordered, fixed set of child
// executors into one node. It owns both tiers: Close cascades to them.
type Executor struct {
	parent   executor.Executor
	children []executor.Executor

	card      cardinalityCache
	closeOnce sync.Once
	closeErr  error
}

var _ executor.Executor = (*Executor)(nil)

// New builds a composing executor from a parent and a non-empty ordered
// list of children. The slices are not copied defensively; callers hand
// over ownership.
func New(parent executor.Executor, children []executor.Executor) (*Executor, error) {
	if parent == nil {
		return nil, errors.New("composing: parent executor is required")
	}
	if len(children) == 0 {
		return nil, errors.New("composing: at least one child executor is required")
	}
	e := &Executor{parent: parent, children: children}
	e.card.done = make(chan struct{})
	return e, nil
}

// CreateValue embeds raw data as a value of type t, routing by placement.
func (e *Executor) CreateValue(ctx context.Context, value any, t types.Type) (executor.Value, error) {
	ctx, span := startSpan(ctx, "composing.create_value", attribute.Stringer("value.type", t))
	v, err := e.createValue(ctx, value, t)
	endSpan(span, err)
	return valueOrNil(v, err)
}

func (e *Executor) createValue(ctx context.Context, value any, t types.Type) (*Value, error) {
	switch raw := value.(type) {
	case *intrinsics.Def:
		if !types.IsConcreteInstanceOf(t, raw.TypeSignature) {
			return nil, executor.Typef("incompatible type %s used with intrinsic %s", t, raw.URI)
		}
		return &Value{r: intrinsicRepr{def: raw}, t: t}, nil
	case *comp.Computation:
		switch raw.Kind {
		case comp.KindOp, comp.KindLambda:
			return &Value{r: compRepr{comp: raw}, t: t}, nil
		case comp.KindIntrinsic:
			def := intrinsics.ByURI(raw.Intrinsic)
			if def == nil {
				return nil, &executor.NotImplementedError{URI: raw.Intrinsic}
			}
			return e.createValue(ctx, def, t)
		default:
			return nil, executor.Unsupportedf("unsupported computation kind %q", raw.Kind)
		}
	}

	switch tt := t.(type) {
	case types.TupleType:
		items, err := tupleItems(value, len(tt.Elements))
		if err != nil {
			return nil, err
		}
		entries := make([]tupleEntry, len(tt.Elements))
		g, gctx := errgroup.WithContext(ctx)
		for i, el := range tt.Elements {
			g.Go(func() error {
				ev, err := e.createValue(gctx, items[i], el.Type)
				if err != nil {
					return err
				}
				entries[i] = tupleEntry{name: el.Name, val: ev}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &Value{r: tupleRepr{elems: entries}, t: tt}, nil

	case types.FederatedType:
		switch tt.Placement {
		case types.Server:
			if !tt.AllEqual {
				return nil, executor.Typef("expected an all-equal value at server placement, found %s", tt)
			}
			pv, err := e.parent.CreateValue(ctx, value, tt.Member)
			if err != nil {
				return nil, err
			}
			return &Value{r: parentRepr{v: pv}, t: tt}, nil
		case types.Clients:
			if tt.AllEqual {
				vs := make([]executor.Value, len(e.children))
				g, gctx := errgroup.WithContext(ctx)
				for i, child := range e.children {
					g.Go(func() error {
						cv, err := child.CreateValue(gctx, value, tt)
						if err != nil {
							return err
						}
						vs[i] = cv
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return nil, err
				}
				return &Value{r: childrenRepr{vs: vs}, t: tt}, nil
			}
			items, ok := value.([]any)
			if !ok {
				return nil, executor.Typef("expected a flat list for %s, got %T", tt, value)
			}
			counts, err := e.cardinalities(ctx)
			if err != nil {
				return nil, err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			if len(items) != total {
				return nil, &executor.CardinalityError{Want: total, Got: len(items)}
			}
			vs := make([]executor.Value, len(e.children))
			g, gctx := errgroup.WithContext(ctx)
			offset := 0
			for i, child := range e.children {
				slice := items[offset : offset+counts[i]]
				offset += counts[i]
				g.Go(func() error {
					cv, err := child.CreateValue(gctx, slice, tt)
					if err != nil {
						return err
					}
					vs[i] = cv
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return &Value{r: childrenRepr{vs: vs}, t: tt}, nil
		default:
			return nil, executor.Typef("unexpected placement %s", tt.Placement)
		}

	default:
		pv, err := e.parent.CreateValue(ctx, value, t)
		if err != nil {
			return nil, err
		}
		return &Value{r: parentRepr{v: pv}, t: t}, nil
	}
}

// CreateCall invokes fn on arg. Op payloads delegate entirely to the
// parent; intrinsic references dispatch to their protocol.
func (e *Executor) CreateCall(ctx context.Context, fn executor.Value, arg executor.Value) (executor.Value, error) {
	ctx, span := startSpan(ctx, "composing.create_call", attribute.Stringer("fn.type", fn.Type()))
	v, err := e.createCall(ctx, fn, arg)
	endSpan(span, err)
	return valueOrNil(v, err)
}

func (e *Executor) createCall(ctx context.Context, fn executor.Value, arg executor.Value) (*Value, error) {
	cfn, ok := fn.(*Value)
	if !ok {
		return nil, executor.Typef("function value %T was not produced by this executor", fn)
	}
	var carg *Value
	if arg != nil {
		ca, ok := arg.(*Value)
		if !ok {
			return nil, executor.Typef("argument value %T was not produced by this executor", arg)
		}
		ft, ok := cfn.t.(types.FunctionType)
		if !ok {
			return nil, executor.Typef("cannot pass an argument to non-function type %s", cfn.t)
		}
		if !types.AssignableFrom(ft.Parameter, ca.Type()) {
			return nil, executor.Typef("argument type %s is not assignable to parameter type %s", ca.Type(), ft.Parameter)
		}
		// Retype the argument to the declared parameter type.
		carg = &Value{r: ca.r, t: ft.Parameter}
	}

	switch r := cfn.r.(type) {
	case compRepr:
		switch r.comp.Kind {
		case comp.KindOp:
			return e.delegateCall(ctx, cfn, carg)
		default:
			return nil, executor.Unsupportedf("directly calling %s computations is unsupported", r.comp.Kind)
		}
	case intrinsicRepr:
		protocol := protocols[r.def.URI]
		if protocol == nil {
			return nil, &executor.NotImplementedError{URI: r.def.URI}
		}
		return protocol(ctx, e, carg)
	default:
		return nil, executor.Unsupportedf("cannot invoke a value represented as %T", cfn.r)
	}
}

// delegateCall relays an op payload call entirely to the parent: the
// function and the fully collapsed argument are embedded there, invoked
// there, and the result is wrapped back.
func (e *Executor) delegateCall(ctx context.Context, fn *Value, arg *Value) (*Value, error) {
	ft, ok := fn.t.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("cannot invoke a value of non-function type %s", fn.t)
	}
	var pfn, parg executor.Value
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.parent.CreateValue(gctx, fn.r.(compRepr).comp, fn.t)
		if err != nil {
			return err
		}
		pfn = v
		return nil
	})
	if arg != nil {
		g.Go(func() error {
			v, err := e.embedAtParent(gctx, arg)
			if err != nil {
				return err
			}
			parg = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result, err := e.parent.CreateCall(ctx, pfn, parg)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: ft.Result}, nil
}

// embedAtParent collapses a composing value into a single parent-held
// value, materializing it first unless the parent already holds it.
func (e *Executor) embedAtParent(ctx context.Context, v *Value) (executor.Value, error) {
	if pr, ok := v.r.(parentRepr); ok {
		return pr.v, nil
	}
	data, err := v.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return e.parent.CreateValue(ctx, data, v.t)
}

// CreateTuple assembles a tuple from values of this executor. Pure
// bookkeeping: no parent or child interaction.
func (e *Executor) CreateTuple(ctx context.Context, elements []executor.TupleElement) (executor.Value, error) {
	entries := make([]tupleEntry, len(elements))
	elTypes := make([]types.TupleElement, len(elements))
	for i, el := range elements {
		cv, ok := el.Value.(*Value)
		if !ok {
			return nil, executor.Typef("tuple element %d (%T) was not produced by this executor", i, el.Value)
		}
		entries[i] = tupleEntry{name: el.Name, val: cv}
		elTypes[i] = types.TupleElement{Name: el.Name, Type: cv.t}
	}
	return &Value{r: tupleRepr{elems: entries}, t: types.TupleType{Elements: elTypes}}, nil
}

// CreateSelection picks one element of a tuple-typed source.
func (e *Executor) CreateSelection(ctx context.Context, source executor.Value, sel executor.Selector) (executor.Value, error) {
	if !sel.Valid() {
		return nil, executor.Unsupportedf("selection requires exactly one of index or name")
	}
	src, ok := source.(*Value)
	if !ok {
		return nil, executor.Typef("selection source %T was not produced by this executor", source)
	}
	tt, ok := src.t.(types.TupleType)
	if !ok {
		return nil, executor.Typef("cannot select from non-tuple type %s", src.t)
	}
	idx := -1
	if sel.HasIndex() {
		if sel.Index < 0 || sel.Index >= len(tt.Elements) {
			return nil, executor.Typef("selection index %d out of range for %s", sel.Index, tt)
		}
		idx = sel.Index
	} else {
		for i, el := range tt.Elements {
			if el.Name == sel.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, executor.Typef("no element named %q in %s", sel.Name, tt)
		}
	}
	switch r := src.r.(type) {
	case parentRepr:
		pv, err := e.parent.CreateSelection(ctx, r.v, sel)
		if err != nil {
			return nil, err
		}
		return &Value{r: parentRepr{v: pv}, t: tt.Elements[idx].Type}, nil
	case tupleRepr:
		return r.elems[idx].val, nil
	default:
		return nil, executor.Unsupportedf("cannot select from a value represented as %T", src.r)
	}
}

// Close releases the parent and all children. Idempotent; the first call's
// result is sticky.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		errs := []error{e.parent.Close()}
		for _, c := range e.children {
			errs = append(errs, c.Close())
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

// tupleItems flattens raw tuple input into a positional item list.
func tupleItems(value any, n int) ([]any, error) {
	switch raw := value.(type) {
	case []any:
		if len(raw) != n {
			return nil, executor.Typef("expected %d tuple items, got %d", n, len(raw))
		}
		return raw, nil
	case executor.Tuple:
		if len(raw) != n {
			return nil, executor.Typef("expected %d tuple items, got %d", n, len(raw))
		}
		items := make([]any, len(raw))
		for i, it := range raw {
			items[i] = it.Value
		}
		return items, nil
	default:
		return nil, executor.Typef("expected tuple data, got %T", value)
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func valueOrNil(v *Value, err error) (executor.Value, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
