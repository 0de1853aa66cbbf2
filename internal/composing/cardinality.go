package composing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

// cardinalityCache memoizes the per-child client counts with single-flight
// semantics: the first caller starts one background resolution and every
// caller, including the first, waits on its shared completion. The result
// is sticky for the lifetime of the executor, failures included; retry
// means rebuilding the tree.
type cardinalityCache struct {
	once   sync.Once
	done   chan struct{}
	counts []int
	err    error
}

// cardinalities returns the number of clients owned by each child, in
// child order.
func (e *Executor) cardinalities(ctx context.Context) ([]int, error) {
	e.card.once.Do(func() {
		go func() {
			defer close(e.card.done)
			// Deliberately detached from the triggering caller's context:
			// the cached result must not depend on which caller won the
			// race or whether it was cancelled mid-flight.
			e.card.counts, e.card.err = e.countClients(context.Background())
		}()
	})
	select {
	case <-e.card.done:
		return e.card.counts, e.card.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// countClients probes every child concurrently by summing the constant 1
// over that child's clients.
func (e *Executor) countClients(ctx context.Context) ([]int, error) {
	ctx, span := startSpan(ctx, "composing.resolve_cardinalities")
	counts := make([]int, len(e.children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range e.children {
		g.Go(func() error {
			n, err := countChildClients(gctx, child)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	err := g.Wait()
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func countChildClients(ctx context.Context, child executor.Executor) (int, error) {
	member := types.TensorType{Dtype: types.Int32}
	sumType := types.Function(types.AtClients(member), types.AtServer(member))
	argType := types.AtClientsAllEqual(member)

	var fn, arg executor.Value
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := child.CreateValue(gctx, comp.IntrinsicComp(intrinsics.FederatedSum), sumType)
		if err != nil {
			return err
		}
		fn = v
		return nil
	})
	g.Go(func() error {
		v, err := child.CreateValue(gctx, 1, argType)
		if err != nil {
			return err
		}
		arg = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	call, err := child.CreateCall(ctx, fn, arg)
	if err != nil {
		return 0, err
	}
	result, err := call.Compute(ctx)
	if err != nil {
		return 0, err
	}
	return scalarToInt(result)
}

func scalarToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("client count is %T, expected an integer scalar", v)
	}
}
