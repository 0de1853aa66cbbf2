package composing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

// repr is the tagged internal representation of a composing value. Exactly
// five variants exist; every consumption site switches exhaustively.
type repr interface{ isRepr() }

// intrinsicRepr references a built-in federated operator interpreted by the
// composing executor itself.
type intrinsicRepr struct {
	def *intrinsics.Def
}

// compRepr holds an unparsed function payload to be relayed to a delegate.
type compRepr struct {
	comp *comp.Computation
}

// parentRepr holds a value embedded in the parent executor.
type parentRepr struct {
	v executor.Value
}

// childrenRepr holds one value per child executor, in child order.
type childrenRepr struct {
	vs []executor.Value
}

// tupleRepr holds an ordered tuple of composing values.
type tupleRepr struct {
	elems []tupleEntry
}

type tupleEntry struct {
	name string
	val  *Value
}

func (intrinsicRepr) isRepr() {}
func (compRepr) isRepr()      {}
func (parentRepr) isRepr()    {}
func (childrenRepr) isRepr()  {}
func (tupleRepr) isRepr()     {}

// Value is a value handle produced by a composing executor.
type Value struct {
	r repr
	t types.Type
}

var _ executor.Value = (*Value)(nil)

func (v *Value) Type() types.Type { return v.t }

// Compute materializes the value into concrete data. Fan-outs run
// concurrently and recombine in insertion order; the first failure cancels
// the rest and surfaces unchanged.
func (v *Value) Compute(ctx context.Context) (any, error) {
	switch r := v.r.(type) {
	case parentRepr:
		return r.v.Compute(ctx)
	case childrenRepr:
		ft, ok := v.t.(types.FederatedType)
		if !ok {
			return nil, executor.Typef("per-child value carries non-federated type %s", v.t)
		}
		if ft.AllEqual {
			return r.vs[0].Compute(ctx)
		}
		parts := make([]any, len(r.vs))
		g, gctx := errgroup.WithContext(ctx)
		for i, cv := range r.vs {
			g.Go(func() error {
				data, err := cv.Compute(gctx)
				if err != nil {
					return err
				}
				parts[i] = data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		var out []any
		for i, p := range parts {
			items, ok := p.([]any)
			if !ok {
				return nil, executor.Typef("child %d produced %T, expected a per-client list", i, p)
			}
			out = append(out, items...)
		}
		return out, nil
	case tupleRepr:
		out := make(executor.Tuple, len(r.elems))
		g, gctx := errgroup.WithContext(ctx)
		for i, el := range r.elems {
			g.Go(func() error {
				data, err := el.val.Compute(gctx)
				if err != nil {
					return err
				}
				out[i] = executor.TupleItem{Name: el.name, Value: data}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	case intrinsicRepr:
		return nil, executor.Unsupportedf("cannot materialize intrinsic %s", r.def.URI)
	case compRepr:
		return nil, executor.Unsupportedf("cannot materialize %s computation", r.comp.Kind)
	default:
		return nil, executor.Unsupportedf("unknown value representation %T", v.r)
	}
}
