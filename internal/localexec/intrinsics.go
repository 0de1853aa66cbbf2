package localexec

import (
	"context"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

type localIntrinsicFn func(ctx context.Context, e *Executor, arg *value) (executor.Value, error)

var localIntrinsics = map[string]localIntrinsicFn{
	intrinsics.FederatedAggregate:      localAggregate,
	intrinsics.FederatedApply:          localApply,
	intrinsics.FederatedBroadcast:      localBroadcast,
	intrinsics.FederatedEvalAtClients:  localEvalAtClients,
	intrinsics.FederatedEvalAtServer:   localEvalAtServer,
	intrinsics.FederatedMap:            localMap,
	intrinsics.FederatedMapAllEqual:    localMap,
	intrinsics.FederatedMean:           localMean,
	intrinsics.FederatedSecureSum:      localSecureSum,
	intrinsics.FederatedSum:            localSum,
	intrinsics.FederatedValueAtClients: localValueAtClients,
	intrinsics.FederatedValueAtServer:  localValueAtServer,
	intrinsics.FederatedWeightedMean:   localWeightedMean,
	intrinsics.FederatedZipAtClients:   localZipAtClients,
	intrinsics.FederatedZipAtServer:    localZipAtServer,
}

// clientItems expands a clients-placed value into one item per simulated
// client; all-equal values replicate their representative.
func (e *Executor) clientItems(v *value) ([]any, types.FederatedType, error) {
	ft, err := types.CheckFederated(v.t, nil, types.Clients, nil)
	if err != nil {
		return nil, types.FederatedType{}, executor.Typef("%v", err)
	}
	if ft.AllEqual {
		items := make([]any, e.clients)
		for i := range items {
			items[i] = v.data
		}
		return items, ft, nil
	}
	return v.data.([]any), ft, nil
}

// tupleVals unpacks a tuple-valued argument into its element values.
func tupleVals(arg *value, n int) ([]*value, types.TupleType, error) {
	if arg == nil {
		return nil, types.TupleType{}, executor.Typef("intrinsic requires a tuple argument")
	}
	tt, ok := arg.t.(types.TupleType)
	if !ok {
		return nil, types.TupleType{}, executor.Typef("expected a tuple argument, found %s", arg.t)
	}
	td, ok := arg.data.(tupleData)
	if !ok || len(td) != n || len(tt.Elements) != n {
		return nil, types.TupleType{}, executor.Typef("expected a %d-tuple argument, found %s", n, arg.t)
	}
	vals := make([]*value, n)
	for i, it := range td {
		vals[i] = it.val
	}
	return vals, tt, nil
}

// applyFn evaluates a function-valued op payload over materialized data.
func applyFn(ctx context.Context, fn *value, argData any) (any, error) {
	c, ok := fn.data.(*comp.Computation)
	if !ok {
		return nil, executor.Typef("expected an op payload, got %T", fn.data)
	}
	ft, ok := fn.t.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("cannot apply a value of non-function type %s", fn.t)
	}
	return applyOp(c, ft, argData)
}

func applyFn2(ctx context.Context, fn *value, a, b any) (any, error) {
	return applyFn(ctx, fn, executor.Tuple{{Value: a}, {Value: b}})
}

func localSum(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	items, ft, err := e.clientItems(arg)
	if err != nil {
		return nil, err
	}
	var total any = int64(0)
	if isFloatType(ft.Member) {
		total = float64(0)
	}
	for _, item := range items {
		total, err = binary(comp.OpAdd, total, item)
		if err != nil {
			return nil, err
		}
	}
	return &value{t: types.AtServer(ft.Member), data: total}, nil
}

// localAggregate folds this executor's clients sequentially in client
// order: accumulate from zero, then report.
func localAggregate(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, tt, err := tupleVals(arg, 5)
	if err != nil {
		return nil, err
	}
	items, _, err := e.clientItems(vals[0])
	if err != nil {
		return nil, err
	}
	reportType, ok := tt.Elements[4].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("aggregate report has non-function type %s", tt.Elements[4].Type)
	}
	cur := vals[1].data
	for _, item := range items {
		cur, err = applyFn2(ctx, vals[2], cur, item)
		if err != nil {
			return nil, err
		}
	}
	out, err := applyFn(ctx, vals[4], cur)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(reportType.Result), data: out}, nil
}

// localMap applies fn per client, preserving the argument's all-equal
// form: an all-equal input is mapped once through its representative.
func localMap(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, tt, err := tupleVals(arg, 2)
	if err != nil {
		return nil, err
	}
	fnType, ok := tt.Elements[0].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("map function has non-function type %s", tt.Elements[0].Type)
	}
	ft, err := types.CheckFederated(vals[1].t, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("map argument: %v", err)
	}
	if ft.AllEqual {
		out, err := applyFn(ctx, vals[0], vals[1].data)
		if err != nil {
			return nil, err
		}
		return &value{t: types.AtClientsAllEqual(fnType.Result), data: out}, nil
	}
	items := vals[1].data.([]any)
	out := make([]any, len(items))
	for i, item := range items {
		out[i], err = applyFn(ctx, vals[0], item)
		if err != nil {
			return nil, err
		}
	}
	return &value{t: types.AtClients(fnType.Result), data: out}, nil
}

func localZipAtClients(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, tt, err := tupleVals(arg, 2)
	if err != nil {
		return nil, err
	}
	a, aft, err := e.clientItems(vals[0])
	if err != nil {
		return nil, err
	}
	b, bft, err := e.clientItems(vals[1])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, executor.Typef("zip arguments have mismatched client counts %d and %d", len(a), len(b))
	}
	names := []string{tt.Elements[0].Name, tt.Elements[1].Name}
	out := make([]any, len(a))
	for i := range a {
		out[i] = executor.Tuple{
			{Name: names[0], Value: a[i]},
			{Name: names[1], Value: b[i]},
		}
	}
	itemType := types.NamedTuple(
		types.TupleElement{Name: names[0], Type: aft.Member},
		types.TupleElement{Name: names[1], Type: bft.Member})
	return &value{t: types.AtClients(itemType), data: out}, nil
}

func localZipAtServer(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, _, err := tupleVals(arg, 2)
	if err != nil {
		return nil, err
	}
	members := make([]types.Type, 2)
	data := make(executor.Tuple, 2)
	allEqual := true
	for n := range 2 {
		ft, err := types.CheckFederated(vals[n].t, nil, types.Server, &allEqual)
		if err != nil {
			return nil, executor.Typef("zip argument %d: %v", n, err)
		}
		members[n] = ft.Member
		data[n] = executor.TupleItem{Value: vals[n].data}
	}
	return &value{t: types.AtServer(types.Tuple(members[0], members[1])), data: data}, nil
}

func localEvalAtClients(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	fnType, ok := arg.t.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("eval expects a function argument, found %s", arg.t)
	}
	out := make([]any, e.clients)
	for i := range out {
		v, err := applyFn(ctx, arg, nil)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return &value{t: types.AtClients(fnType.Result), data: out}, nil
}

func localEvalAtServer(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	fnType, ok := arg.t.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("eval expects a function argument, found %s", arg.t)
	}
	out, err := applyFn(ctx, arg, nil)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(fnType.Result), data: out}, nil
}

func localValueAtClients(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	data, err := arg.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtClientsAllEqual(arg.t), data: data}, nil
}

func localValueAtServer(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	data, err := arg.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(arg.t), data: data}, nil
}

func localBroadcast(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	allEqual := true
	ft, err := types.CheckFederated(arg.t, nil, types.Server, &allEqual)
	if err != nil {
		return nil, executor.Typef("broadcast argument: %v", err)
	}
	return &value{t: types.AtClientsAllEqual(ft.Member), data: arg.data}, nil
}

func localApply(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, tt, err := tupleVals(arg, 2)
	if err != nil {
		return nil, err
	}
	fnType, ok := tt.Elements[0].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("apply function has non-function type %s", tt.Elements[0].Type)
	}
	allEqual := true
	if _, err := types.CheckFederated(vals[1].t, nil, types.Server, &allEqual); err != nil {
		return nil, executor.Typef("apply argument: %v", err)
	}
	out, err := applyFn(ctx, vals[0], vals[1].data)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(fnType.Result), data: out}, nil
}

func localMean(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	items, ft, err := e.clientItems(arg)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, executor.Typef("cannot average zero clients")
	}
	var total any = float64(0)
	for _, item := range items {
		total, err = binary(comp.OpAdd, total, item)
		if err != nil {
			return nil, err
		}
	}
	out, err := binary(comp.OpDivide, total, float64(len(items)))
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(ft.Member), data: out}, nil
}

func localWeightedMean(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	vals, _, err := tupleVals(arg, 2)
	if err != nil {
		return nil, err
	}
	items, ft, err := e.clientItems(vals[0])
	if err != nil {
		return nil, err
	}
	weights, _, err := e.clientItems(vals[1])
	if err != nil {
		return nil, err
	}
	if len(items) != len(weights) {
		return nil, executor.Typef("weighted mean arguments have mismatched client counts")
	}
	var num any = float64(0)
	var den any = float64(0)
	for i := range items {
		p, err := binary(comp.OpMultiply, items[i], weights[i])
		if err != nil {
			return nil, err
		}
		if num, err = binary(comp.OpAdd, num, p); err != nil {
			return nil, err
		}
		if den, err = binary(comp.OpAdd, den, weights[i]); err != nil {
			return nil, err
		}
	}
	out, err := binary(comp.OpDivide, num, den)
	if err != nil {
		return nil, err
	}
	return &value{t: types.AtServer(ft.Member), data: out}, nil
}

func localSecureSum(ctx context.Context, e *Executor, arg *value) (executor.Value, error) {
	return nil, &executor.NotImplementedError{URI: intrinsics.FederatedSecureSum}
}

func isFloatType(t types.Type) bool {
	tt, ok := t.(types.TensorType)
	return ok && (tt.Dtype == types.Float32 || tt.Dtype == types.Float64)
}
