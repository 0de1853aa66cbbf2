package composing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

// protocolFn runs one intrinsic against its (already retyped) argument.
type protocolFn func(ctx context.Context, e *Executor, arg *Value) (*Value, error)

// protocols is the static operator dispatch table. Unknown URIs fall
// through to a not-implemented error in createCall. The table is filled
// in init because several protocols re-enter createCall through nested
// intrinsic calls, which a map literal would turn into an
// initialization cycle.
var protocols map[string]protocolFn

func init() {
	protocols = map[string]protocolFn{
		intrinsics.FederatedAggregate:      protocolAggregate,
		intrinsics.FederatedApply:          protocolApply,
		intrinsics.FederatedBroadcast:      protocolBroadcast,
		intrinsics.FederatedEvalAtClients:  protocolEvalAtClients,
		intrinsics.FederatedEvalAtServer:   protocolEvalAtServer,
		intrinsics.FederatedMap:            protocolMap,
		intrinsics.FederatedMapAllEqual:    protocolMapAllEqual,
		intrinsics.FederatedMean:           protocolMean,
		intrinsics.FederatedSecureSum:      protocolSecureSum,
		intrinsics.FederatedSum:            protocolSum,
		intrinsics.FederatedValueAtClients: protocolValueAtClients,
		intrinsics.FederatedValueAtServer:  protocolValueAtServer,
		intrinsics.FederatedWeightedMean:   protocolWeightedMean,
		intrinsics.FederatedZipAtClients:   protocolZipAtClients,
		intrinsics.FederatedZipAtServer:    protocolZipAtServer,
	}
}

// protocolAggregate runs the five-part aggregation: per-child local folds
// with accumulate from zero, then a strictly sequential merge fold over
// child order at the parent, then report at the parent.
func protocolAggregate(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 5)
	if err != nil {
		return nil, err
	}
	valueType := tt.Elements[0].Type
	zeroType := tt.Elements[1].Type
	accumulateType := tt.Elements[2].Type
	mergeType := tt.Elements[3].Type
	reportType, ok := tt.Elements[4].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("aggregate report has non-function type %s", tt.Elements[4].Type)
	}
	val, ok := entries[0].val.r.(childrenRepr)
	if !ok {
		return nil, executor.Typef("aggregate value is not partitioned across children")
	}
	if len(val.vs) != len(e.children) {
		return nil, executor.Typef("aggregate value spans %d children, executor has %d", len(val.vs), len(e.children))
	}
	accumulateComp, err := entryComp(entries, 2, "accumulate")
	if err != nil {
		return nil, err
	}
	mergeComp, err := entryComp(entries, 3, "merge")
	if err != nil {
		return nil, err
	}
	reportComp, err := entryComp(entries, 4, "report")
	if err != nil {
		return nil, err
	}

	// The zero is materialized once here and re-embedded at every child.
	zeroData, err := entries[1].val.Compute(ctx)
	if err != nil {
		return nil, err
	}

	identityComp := comp.LambdaIdentity()
	identityType := types.UnaryOpType(zeroType)
	childAggType := types.Function(
		types.Tuple(valueType, zeroType, accumulateType, mergeType, identityType),
		types.AtServer(zeroType))
	childAggComp := comp.IntrinsicComp(intrinsics.FederatedAggregate)

	// Each child folds its own clients with accumulate and reports the
	// partial via identity; partials are materialized for the parent fold.
	partials := make([]any, len(e.children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range e.children {
		v := val.vs[i]
		g.Go(func() error {
			data, err := childAggregate(gctx, child, v, childAggComp, childAggType,
				zeroData, zeroType, accumulateComp, accumulateType,
				mergeComp, mergeType, identityComp, identityType)
			if err != nil {
				return err
			}
			partials[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parentVals := make([]executor.Value, len(partials))
	g, gctx = errgroup.WithContext(ctx)
	for i, p := range partials {
		g.Go(func() error {
			v, err := e.parent.CreateValue(gctx, p, zeroType)
			if err != nil {
				return err
			}
			parentVals[i] = v
			return nil
		})
	}
	var parentMerge, parentReport executor.Value
	g.Go(func() error {
		v, err := e.parent.CreateValue(gctx, mergeComp, mergeType)
		if err != nil {
			return err
		}
		parentMerge = v
		return nil
	})
	g.Go(func() error {
		v, err := e.parent.CreateValue(gctx, reportComp, tt.Elements[4].Type)
		if err != nil {
			return err
		}
		parentReport = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sequential left fold in child order. Merge is not assumed
	// commutative or associative, so no balanced-tree shortcut.
	merged := parentVals[0]
	for _, next := range parentVals[1:] {
		pair, err := e.parent.CreateTuple(ctx, []executor.TupleElement{{Value: merged}, {Value: next}})
		if err != nil {
			return nil, err
		}
		merged, err = e.parent.CreateCall(ctx, parentMerge, pair)
		if err != nil {
			return nil, err
		}
	}
	result, err := e.parent.CreateCall(ctx, parentReport, merged)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: types.AtServer(reportType.Result)}, nil
}

func childAggregate(ctx context.Context, child executor.Executor, v executor.Value,
	aggComp *comp.Computation, aggType types.FunctionType,
	zeroData any, zeroType types.Type,
	accumulateComp *comp.Computation, accumulateType types.Type,
	mergeComp *comp.Computation, mergeType types.Type,
	identityComp *comp.Computation, identityType types.Type) (any, error) {

	vals := make([]executor.Value, 5)
	vals[0] = v
	g, gctx := errgroup.WithContext(ctx)
	var aggFn executor.Value
	g.Go(func() error {
		fv, err := child.CreateValue(gctx, aggComp, aggType)
		if err != nil {
			return err
		}
		aggFn = fv
		return nil
	})
	embed := func(i int, data any, t types.Type) {
		g.Go(func() error {
			cv, err := child.CreateValue(gctx, data, t)
			if err != nil {
				return err
			}
			vals[i] = cv
			return nil
		})
	}
	embed(1, zeroData, zeroType)
	embed(2, accumulateComp, accumulateType)
	embed(3, mergeComp, mergeType)
	embed(4, identityComp, identityType)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elements := make([]executor.TupleElement, len(vals))
	for i, cv := range vals {
		elements[i] = executor.TupleElement{Value: cv}
	}
	aggArg, err := child.CreateTuple(ctx, elements)
	if err != nil {
		return nil, err
	}
	call, err := child.CreateCall(ctx, aggFn, aggArg)
	if err != nil {
		return nil, err
	}
	return call.Compute(ctx)
}

// protocolApply calls fn on a server-placed value directly at the parent.
func protocolApply(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 2)
	if err != nil {
		return nil, err
	}
	fnType, ok := tt.Elements[0].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("apply function has non-function type %s", tt.Elements[0].Type)
	}
	allEqual := true
	if _, err := types.CheckFederated(tt.Elements[1].Type, fnType.Parameter, types.Server, &allEqual); err != nil {
		return nil, executor.Typef("apply argument: %v", err)
	}
	fnComp, err := entryComp(entries, 0, "apply function")
	if err != nil {
		return nil, err
	}
	val, ok := entries[1].val.r.(parentRepr)
	if !ok {
		return nil, executor.Typef("apply argument is not embedded in the parent")
	}
	pfn, err := e.parent.CreateValue(ctx, fnComp, fnType)
	if err != nil {
		return nil, err
	}
	result, err := e.parent.CreateCall(ctx, pfn, val.v)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: types.AtServer(fnType.Result)}, nil
}

// protocolBroadcast materializes a server value once and reconstructs it
// at every child as an all-equal clients value.
func protocolBroadcast(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	if arg == nil {
		return nil, executor.Typef("broadcast requires an argument")
	}
	allEqual := true
	ft, err := types.CheckFederated(arg.t, nil, types.Server, &allEqual)
	if err != nil {
		return nil, executor.Typef("broadcast argument: %v", err)
	}
	data, err := arg.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return e.createValue(ctx, data, types.AtClientsAllEqual(ft.Member))
}

// evalAtClients embeds the no-argument fn at every child alongside a local
// eval operator and invokes it there.
func protocolEvalAtClients(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	fnType, fnComp, err := asFunctionArg(arg)
	if err != nil {
		return nil, err
	}
	resultType := types.AtClients(fnType.Result)
	evalType := types.Function(fnType, resultType)
	evalComp := comp.IntrinsicComp(intrinsics.FederatedEvalAtClients)

	vs := make([]executor.Value, len(e.children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range e.children {
		g.Go(func() error {
			var evalVal, fnVal executor.Value
			cg, cctx := errgroup.WithContext(gctx)
			cg.Go(func() error {
				v, err := child.CreateValue(cctx, evalComp, evalType)
				evalVal = v
				return err
			})
			cg.Go(func() error {
				v, err := child.CreateValue(cctx, fnComp, fnType)
				fnVal = v
				return err
			})
			if err := cg.Wait(); err != nil {
				return err
			}
			v, err := child.CreateCall(gctx, evalVal, fnVal)
			if err != nil {
				return err
			}
			vs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Value{r: childrenRepr{vs: vs}, t: resultType}, nil
}

// evalAtServer invokes the no-argument fn once at the parent.
func protocolEvalAtServer(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	fnType, fnComp, err := asFunctionArg(arg)
	if err != nil {
		return nil, err
	}
	pfn, err := e.parent.CreateValue(ctx, fnComp, fnType)
	if err != nil {
		return nil, err
	}
	result, err := e.parent.CreateCall(ctx, pfn, nil)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: types.AtServer(fnType.Result)}, nil
}

func protocolMap(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	return mapClients(ctx, e, arg, false)
}

func protocolMapAllEqual(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	return mapClients(ctx, e, arg, true)
}

// mapClients embeds fn and a local map operator at every child owning a
// slice of the argument and invokes them concurrently.
func mapClients(ctx context.Context, e *Executor, arg *Value, allEqual bool) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 2)
	if err != nil {
		return nil, err
	}
	fnType, ok := tt.Elements[0].Type.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("map function has non-function type %s", tt.Elements[0].Type)
	}
	valType, err := types.CheckFederated(tt.Elements[1].Type, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("map argument: %v", err)
	}
	if allEqual && !valType.AllEqual {
		return nil, executor.Typef("cannot map a non-all-equal argument into an all-equal result")
	}
	fnComp, err := entryComp(entries, 0, "map function")
	if err != nil {
		return nil, err
	}
	val, ok := entries[1].val.r.(childrenRepr)
	if !ok {
		return nil, executor.Typef("map argument is not partitioned across children")
	}

	mapType := types.Function(
		types.Tuple(fnType, types.AtClients(fnType.Parameter)),
		types.AtClients(fnType.Result))
	mapComp := comp.IntrinsicComp(intrinsics.FederatedMap)

	vs := make([]executor.Value, len(e.children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range e.children {
		v := val.vs[i]
		g.Go(func() error {
			fnVal, err := child.CreateValue(gctx, fnComp, fnType)
			if err != nil {
				return err
			}
			mapVal, err := child.CreateValue(gctx, mapComp, mapType)
			if err != nil {
				return err
			}
			mapArg, err := child.CreateTuple(gctx, []executor.TupleElement{{Value: fnVal}, {Value: v}})
			if err != nil {
				return err
			}
			out, err := child.CreateCall(gctx, mapVal, mapArg)
			if err != nil {
				return err
			}
			vs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	resultType := types.FederatedType{Member: fnType.Result, Placement: types.Clients, AllEqual: allEqual}
	return &Value{r: childrenRepr{vs: vs}, t: resultType}, nil
}

// protocolMean computes federated_sum and divides by the total client
// count at the parent. Division always produces a float, so integer
// members average without truncation.
func protocolMean(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	if arg == nil {
		return nil, executor.Typef("mean requires an argument")
	}
	ft, err := types.CheckFederated(arg.t, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("mean argument: %v", err)
	}
	member := ft.Member

	var total, count executor.Value
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := protocolSum(gctx, e, arg)
		if err != nil {
			return err
		}
		data, err := sum.Compute(gctx)
		if err != nil {
			return err
		}
		v, err := e.parent.CreateValue(gctx, data, member)
		total = v
		return err
	})
	g.Go(func() error {
		counts, err := e.cardinalities(gctx)
		if err != nil {
			return err
		}
		n := 0
		for _, c := range counts {
			n += c
		}
		v, err := embedScalar(gctx, e.parent, member, n)
		count = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	divideFn, err := e.parent.CreateValue(ctx, comp.BinaryOperator(comp.OpDivide), types.BinaryOpType(member))
	if err != nil {
		return nil, err
	}
	divideArg, err := e.parent.CreateTuple(ctx, []executor.TupleElement{{Value: total}, {Value: count}})
	if err != nil {
		return nil, err
	}
	result, err := e.parent.CreateCall(ctx, divideFn, divideArg)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: types.AtServer(member)}, nil
}

// protocolSum lowers to federated_aggregate with zero = additive identity,
// accumulate = merge = elementwise add, report = identity.
func protocolSum(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	if arg == nil {
		return nil, executor.Typef("sum requires an argument")
	}
	ft, err := types.CheckFederated(arg.t, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("sum argument: %v", err)
	}
	member := ft.Member

	zero, err := embedScalarHere(ctx, e, member, 0)
	if err != nil {
		return nil, err
	}
	plus, err := e.createValue(ctx, comp.BinaryOperator(comp.OpAdd), types.BinaryOpType(member))
	if err != nil {
		return nil, err
	}
	identity, err := e.createValue(ctx, comp.LambdaIdentity(), types.UnaryOpType(member))
	if err != nil {
		return nil, err
	}
	aggArg := &Value{
		r: tupleRepr{elems: []tupleEntry{
			{val: arg}, {val: zero}, {val: plus}, {val: plus}, {val: identity},
		}},
		t: types.Tuple(arg.t, member, types.BinaryOpType(member), types.BinaryOpType(member), types.UnaryOpType(member)),
	}
	return protocolAggregate(ctx, e, aggArg)
}

func protocolSecureSum(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	return nil, &executor.NotImplementedError{URI: intrinsics.FederatedSecureSum}
}

func protocolValueAtClients(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	return placeConstant(ctx, e, arg, func(member types.Type) types.FederatedType {
		return types.AtClientsAllEqual(member)
	})
}

func protocolValueAtServer(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	return placeConstant(ctx, e, arg, types.AtServer)
}

// placeConstant materializes an unplaced constant and re-embeds it with
// the requested placement via the standard construction routing.
func placeConstant(ctx context.Context, e *Executor, arg *Value, place func(types.Type) types.FederatedType) (*Value, error) {
	if arg == nil {
		return nil, executor.Typef("federated value requires an argument")
	}
	data, err := arg.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return e.createValue(ctx, data, place(arg.t))
}

// protocolWeightedMean computes sum(value*weight) / sum(weight): values
// and weights are zipped and multiplied at the clients, both sums are
// aggregated, and the division happens at the parent.
func protocolWeightedMean(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 2)
	if err != nil {
		return nil, err
	}
	vType, err := types.CheckFederated(tt.Elements[0].Type, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("weighted mean values: %v", err)
	}
	wType, err := types.CheckFederated(tt.Elements[1].Type, nil, types.Clients, nil)
	if err != nil {
		return nil, executor.Typef("weighted mean weights: %v", err)
	}

	zipped, err := protocolZipAtClients(ctx, e, arg)
	if err != nil {
		return nil, err
	}
	productType := types.Function(types.Tuple(vType.Member, wType.Member), vType.Member)
	productFn, err := e.createValue(ctx, comp.BinaryOperator(comp.OpMultiply), productType)
	if err != nil {
		return nil, err
	}
	mapArg := &Value{
		r: tupleRepr{elems: []tupleEntry{{val: productFn}, {val: zipped}}},
		t: types.Tuple(productType, zipped.t),
	}
	products, err := mapClients(ctx, e, mapArg, false)
	if err != nil {
		return nil, err
	}

	var sumProducts, sumWeights *Value
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := protocolSum(gctx, e, products)
		sumProducts = v
		return err
	})
	g.Go(func() error {
		v, err := protocolSum(gctx, e, entries[1].val)
		sumWeights = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	num, ok := sumProducts.r.(parentRepr)
	if !ok {
		return nil, executor.Typef("weighted mean numerator is not embedded in the parent")
	}
	den, ok := sumWeights.r.(parentRepr)
	if !ok {
		return nil, executor.Typef("weighted mean denominator is not embedded in the parent")
	}
	divideFn, err := e.parent.CreateValue(ctx, comp.BinaryOperator(comp.OpDivide),
		types.Function(types.Tuple(vType.Member, wType.Member), vType.Member))
	if err != nil {
		return nil, err
	}
	divideArg, err := e.parent.CreateTuple(ctx, []executor.TupleElement{{Value: num.v}, {Value: den.v}})
	if err != nil {
		return nil, err
	}
	result, err := e.parent.CreateCall(ctx, divideFn, divideArg)
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: result}, t: types.AtServer(vType.Member)}, nil
}

// protocolZipAtClients pairs corresponding per-child handles via a
// per-child zip operator.
func protocolZipAtClients(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 2)
	if err != nil {
		return nil, err
	}
	members := make([]types.Type, 2)
	vals := make([]childrenRepr, 2)
	names := make([]string, 2)
	for n := range 2 {
		ft, err := types.CheckFederated(tt.Elements[n].Type, nil, types.Clients, nil)
		if err != nil {
			return nil, executor.Typef("zip argument %d: %v", n, err)
		}
		members[n] = ft.Member
		names[n] = tt.Elements[n].Name
		cr, ok := entries[n].val.r.(childrenRepr)
		if !ok {
			return nil, executor.Typef("zip argument %d is not partitioned across children", n)
		}
		if len(cr.vs) != len(e.children) {
			return nil, executor.Typef("zip argument %d spans %d children, executor has %d", n, len(cr.vs), len(e.children))
		}
		vals[n] = cr
	}
	itemType := types.NamedTuple(
		types.TupleElement{Name: names[0], Type: members[0]},
		types.TupleElement{Name: names[1], Type: members[1]})
	resultType := types.AtClients(itemType)
	zipType := types.Function(types.NamedTuple(
		types.TupleElement{Name: names[0], Type: types.AtClients(members[0])},
		types.TupleElement{Name: names[1], Type: types.AtClients(members[1])},
	), resultType)
	zipComp := comp.IntrinsicComp(intrinsics.FederatedZipAtClients)

	vs := make([]executor.Value, len(e.children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range e.children {
		x, y := vals[0].vs[i], vals[1].vs[i]
		g.Go(func() error {
			zipVal, err := child.CreateValue(gctx, zipComp, zipType)
			if err != nil {
				return err
			}
			pair, err := child.CreateTuple(gctx, []executor.TupleElement{
				{Name: names[0], Value: x},
				{Name: names[1], Value: y},
			})
			if err != nil {
				return err
			}
			out, err := child.CreateCall(gctx, zipVal, pair)
			if err != nil {
				return err
			}
			vs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Value{r: childrenRepr{vs: vs}, t: resultType}, nil
}

// protocolZipAtServer builds the 2-tuple directly at the parent.
func protocolZipAtServer(ctx context.Context, e *Executor, arg *Value) (*Value, error) {
	tt, entries, err := asTupleArg(arg, 2)
	if err != nil {
		return nil, err
	}
	allEqual := true
	members := make([]types.Type, 2)
	parents := make([]executor.Value, 2)
	for n := range 2 {
		ft, err := types.CheckFederated(tt.Elements[n].Type, nil, types.Server, &allEqual)
		if err != nil {
			return nil, executor.Typef("zip argument %d: %v", n, err)
		}
		members[n] = ft.Member
		pr, ok := entries[n].val.r.(parentRepr)
		if !ok {
			return nil, executor.Typef("zip argument %d is not embedded in the parent", n)
		}
		parents[n] = pr.v
	}
	pair, err := e.parent.CreateTuple(ctx, []executor.TupleElement{
		{Value: parents[0]}, {Value: parents[1]},
	})
	if err != nil {
		return nil, err
	}
	return &Value{r: parentRepr{v: pair}, t: types.AtServer(types.Tuple(members[0], members[1]))}, nil
}

// ----- shared protocol helpers -----

// asTupleArg validates that arg is a structured tuple of n elements.
func asTupleArg(arg *Value, n int) (types.TupleType, []tupleEntry, error) {
	if arg == nil {
		return types.TupleType{}, nil, executor.Typef("intrinsic requires a tuple argument")
	}
	tt, ok := arg.t.(types.TupleType)
	if !ok {
		return types.TupleType{}, nil, executor.Typef("expected a tuple argument, found %s", arg.t)
	}
	tr, ok := arg.r.(tupleRepr)
	if !ok {
		return types.TupleType{}, nil, executor.Typef("intrinsic argument is not a structured tuple")
	}
	if len(tt.Elements) != n || len(tr.elems) != n {
		return types.TupleType{}, nil, executor.Typef("expected a %d-tuple argument, found %s", n, arg.t)
	}
	return tt, tr.elems, nil
}

// asFunctionArg validates that arg is an unparsed no-argument-callable
// function payload.
func asFunctionArg(arg *Value) (types.FunctionType, *comp.Computation, error) {
	if arg == nil {
		return types.FunctionType{}, nil, executor.Typef("intrinsic requires a function argument")
	}
	ft, ok := arg.t.(types.FunctionType)
	if !ok {
		return types.FunctionType{}, nil, executor.Typef("expected a function argument, found %s", arg.t)
	}
	cr, ok := arg.r.(compRepr)
	if !ok {
		return types.FunctionType{}, nil, executor.Typef("expected an unparsed function payload")
	}
	return ft, cr.comp, nil
}

// entryComp extracts the unparsed payload from tuple entry i.
func entryComp(entries []tupleEntry, i int, what string) (*comp.Computation, error) {
	cr, ok := entries[i].val.r.(compRepr)
	if !ok {
		return nil, executor.Typef("%s is not an unparsed function payload", what)
	}
	return cr.comp, nil
}

// embedScalar builds a constant of type t at ex by evaluating a constant
// function there.
func embedScalar(ctx context.Context, ex executor.Executor, t types.Type, v any) (executor.Value, error) {
	c, err := comp.ScalarConstant(v)
	if err != nil {
		return nil, err
	}
	fn, err := ex.CreateValue(ctx, c, types.Function(nil, t))
	if err != nil {
		return nil, err
	}
	return ex.CreateCall(ctx, fn, nil)
}

// embedScalarHere is embedScalar against the composing executor itself,
// returning the internal value form.
func embedScalarHere(ctx context.Context, e *Executor, t types.Type, v any) (*Value, error) {
	c, err := comp.ScalarConstant(v)
	if err != nil {
		return nil, err
	}
	fn, err := e.createValue(ctx, c, types.Function(nil, t))
	if err != nil {
		return nil, err
	}
	return e.createCall(ctx, fn, nil)
}
