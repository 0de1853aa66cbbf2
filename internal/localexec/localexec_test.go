package localexec

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

var (
	i32 = types.TensorType{Dtype: types.Int32}
	f64 = types.TensorType{Dtype: types.Float64}
)

func intrinsicValue(t *testing.T, e *Executor, uri string, ft types.FunctionType) executor.Value {
	t.Helper()
	v, err := e.CreateValue(context.Background(), comp.IntrinsicComp(uri), ft)
	require.NoError(t, err)
	return v
}

func clientsValue(t *testing.T, e *Executor, member types.Type, items []any) executor.Value {
	t.Helper()
	v, err := e.CreateValue(context.Background(), items, types.AtClients(member))
	require.NoError(t, err)
	return v
}

func TestCreateValueClientsCardinality(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	_, err := e.CreateValue(ctx, []any{1, 2}, types.AtClients(i32))
	var cerr *executor.CardinalityError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, 3, cerr.Want)
	require.Equal(t, 2, cerr.Got)

	v, err := e.CreateValue(ctx, []any{1, 2, 3}, types.AtClients(i32))
	require.NoError(t, err)
	data, err := v.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3}, data)
}

func TestCreateValueServerRequiresAllEqual(t *testing.T) {
	e := New(1)
	bad := types.FederatedType{Member: i32, Placement: types.Server}
	_, err := e.CreateValue(context.Background(), 1, bad)
	var terr *executor.TypeError
	require.ErrorAs(t, err, &terr)
}

func TestConstantOp(t *testing.T) {
	e := New(1)
	ctx := context.Background()

	c, err := comp.ScalarConstant(7)
	require.NoError(t, err)
	fn, err := e.CreateValue(ctx, c, types.Function(nil, i32))
	require.NoError(t, err)
	out, err := e.CreateCall(ctx, fn, nil)
	require.NoError(t, err)
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), data)
}

func TestBinaryOps(t *testing.T) {
	e := New(1)
	ctx := context.Background()

	eval := func(op string, member types.Type, a, b any) (any, error) {
		fn, err := e.CreateValue(ctx, comp.BinaryOperator(op), types.BinaryOpType(member))
		require.NoError(t, err)
		av, err := e.CreateValue(ctx, a, member)
		require.NoError(t, err)
		bv, err := e.CreateValue(ctx, b, member)
		require.NoError(t, err)
		pair, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: av}, {Value: bv}})
		require.NoError(t, err)
		out, err := e.CreateCall(ctx, fn, pair)
		if err != nil {
			return nil, err
		}
		return out.Compute(ctx)
	}

	sum, err := eval(comp.OpAdd, i32, 2, 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), sum)

	product, err := eval(comp.OpMultiply, f64, 1.5, 2.0)
	require.NoError(t, err)
	require.Equal(t, 3.0, product)

	quotient, err := eval(comp.OpDivide, f64, 7.0, 2.0)
	require.NoError(t, err)
	require.Equal(t, 3.5, quotient)

	_, err = eval(comp.OpDivide, f64, 1.0, 0.0)
	var terr *executor.TypeError
	require.ErrorAs(t, err, &terr)
}

func TestFederatedSum(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	fn := intrinsicValue(t, e, intrinsics.FederatedSum,
		types.Function(types.AtClients(i32), types.AtServer(i32)))
	arg := clientsValue(t, e, i32, []any{1, 2, 3})
	out, err := e.CreateCall(ctx, fn, arg)
	require.NoError(t, err)
	require.Equal(t, types.AtServer(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), data)
}

func TestFederatedSumAllEqualReplicates(t *testing.T) {
	e := New(4)
	ctx := context.Background()

	fn := intrinsicValue(t, e, intrinsics.FederatedSum,
		types.Function(types.AtClients(i32), types.AtServer(i32)))
	arg, err := e.CreateValue(ctx, 1, types.AtClientsAllEqual(i32))
	require.NoError(t, err)
	out, err := e.CreateCall(ctx, fn, arg)
	require.NoError(t, err)
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), data)
}

func TestFederatedMapPreservesAllEqualForm(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	makeArg := func(fn, val executor.Value) executor.Value {
		pair, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: fn}, {Value: val}})
		require.NoError(t, err)
		return pair
	}
	identity, err := e.CreateValue(ctx, comp.LambdaIdentity(), types.UnaryOpType(i32))
	require.NoError(t, err)
	mapFn := intrinsicValue(t, e, intrinsics.FederatedMap,
		types.Function(
			types.Tuple(types.UnaryOpType(i32), types.AtClients(i32)),
			types.AtClients(i32)))

	plural := clientsValue(t, e, i32, []any{1, 2, 3})
	out, err := e.CreateCall(ctx, mapFn, makeArg(identity, plural))
	require.NoError(t, err)
	require.Equal(t, types.AtClients(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3}, data)

	single, err := e.CreateValue(ctx, 9, types.AtClientsAllEqual(i32))
	require.NoError(t, err)
	out, err = e.CreateCall(ctx, mapFn, makeArg(identity, single))
	require.NoError(t, err)
	require.Equal(t, types.AtClientsAllEqual(i32), out.Type())
	data, err = out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 9, data)
}

func TestFederatedAggregate(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	add := types.BinaryOpType(i32)
	identity := types.UnaryOpType(i32)
	fn := intrinsicValue(t, e, intrinsics.FederatedAggregate,
		types.Function(
			types.Tuple(types.AtClients(i32), i32, add, add, identity),
			types.AtServer(i32)))

	val := clientsValue(t, e, i32, []any{1, 2, 3})
	zero, err := e.CreateValue(ctx, int64(10), i32)
	require.NoError(t, err)
	plus, err := e.CreateValue(ctx, comp.BinaryOperator(comp.OpAdd), add)
	require.NoError(t, err)
	report, err := e.CreateValue(ctx, comp.LambdaIdentity(), identity)
	require.NoError(t, err)
	arg, err := e.CreateTuple(ctx, []executor.TupleElement{
		{Value: val}, {Value: zero}, {Value: plus}, {Value: plus}, {Value: report},
	})
	require.NoError(t, err)

	out, err := e.CreateCall(ctx, fn, arg)
	require.NoError(t, err)
	require.Equal(t, types.AtServer(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(16), data)
}

func TestFederatedZipAtClients(t *testing.T) {
	e := New(2)
	ctx := context.Background()

	fn := intrinsicValue(t, e, intrinsics.FederatedZipAtClients,
		types.Function(
			types.Tuple(types.AtClients(i32), types.AtClients(i32)),
			types.AtClients(types.Tuple(i32, i32))))
	a := clientsValue(t, e, i32, []any{1, 2})
	b := clientsValue(t, e, i32, []any{10, 20})
	arg, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: a}, {Value: b}})
	require.NoError(t, err)
	out, err := e.CreateCall(ctx, fn, arg)
	require.NoError(t, err)
	data, err := out.Compute(ctx)
	require.NoError(t, err)

	want := []any{
		executor.Tuple{{Value: 1}, {Value: 10}},
		executor.Tuple{{Value: 2}, {Value: 20}},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("zip mismatch (-want +got):\n%s", diff)
	}
}

func TestFederatedEvalAtClients(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	c, err := comp.ScalarConstant(5)
	require.NoError(t, err)
	fnType := types.Function(nil, i32)
	fn, err := e.CreateValue(ctx, c, fnType)
	require.NoError(t, err)
	eval := intrinsicValue(t, e, intrinsics.FederatedEvalAtClients,
		types.Function(fnType, types.AtClients(i32)))
	out, err := e.CreateCall(ctx, eval, fn)
	require.NoError(t, err)
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{int64(5), int64(5), int64(5)}, data)
}

func TestFederatedBroadcastAndApply(t *testing.T) {
	e := New(2)
	ctx := context.Background()

	sv, err := e.CreateValue(ctx, 7, types.AtServer(i32))
	require.NoError(t, err)

	bcast := intrinsicValue(t, e, intrinsics.FederatedBroadcast,
		types.Function(types.AtServer(i32), types.AtClientsAllEqual(i32)))
	out, err := e.CreateCall(ctx, bcast, sv)
	require.NoError(t, err)
	require.Equal(t, types.AtClientsAllEqual(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, data)

	identity, err := e.CreateValue(ctx, comp.LambdaIdentity(), types.UnaryOpType(i32))
	require.NoError(t, err)
	apply := intrinsicValue(t, e, intrinsics.FederatedApply,
		types.Function(
			types.Tuple(types.UnaryOpType(i32), types.AtServer(i32)),
			types.AtServer(i32)))
	arg, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: identity}, {Value: sv}})
	require.NoError(t, err)
	out, err = e.CreateCall(ctx, apply, arg)
	require.NoError(t, err)
	require.Equal(t, types.AtServer(i32), out.Type())
	data, err = out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, data)
}

func TestFederatedMeanAndWeightedMean(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	mean := intrinsicValue(t, e, intrinsics.FederatedMean,
		types.Function(types.AtClients(f64), types.AtServer(f64)))
	arg := clientsValue(t, e, f64, []any{1.0, 2.0, 3.0})
	out, err := e.CreateCall(ctx, mean, arg)
	require.NoError(t, err)
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 2.0, data)

	wmean := intrinsicValue(t, e, intrinsics.FederatedWeightedMean,
		types.Function(
			types.Tuple(types.AtClients(f64), types.AtClients(f64)),
			types.AtServer(f64)))
	values := clientsValue(t, e, f64, []any{2.0, 4.0, 6.0})
	weights := clientsValue(t, e, f64, []any{1.0, 1.0, 2.0})
	warg, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: values}, {Value: weights}})
	require.NoError(t, err)
	out, err = e.CreateCall(ctx, wmean, warg)
	require.NoError(t, err)
	data, err = out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 4.5, data)
}

func TestFederatedValueAt(t *testing.T) {
	e := New(2)
	ctx := context.Background()

	raw, err := e.CreateValue(ctx, 3, i32)
	require.NoError(t, err)

	atServer := intrinsicValue(t, e, intrinsics.FederatedValueAtServer,
		types.Function(i32, types.AtServer(i32)))
	out, err := e.CreateCall(ctx, atServer, raw)
	require.NoError(t, err)
	require.Equal(t, types.AtServer(i32), out.Type())

	atClients := intrinsicValue(t, e, intrinsics.FederatedValueAtClients,
		types.Function(i32, types.AtClientsAllEqual(i32)))
	out, err = e.CreateCall(ctx, atClients, raw)
	require.NoError(t, err)
	require.Equal(t, types.AtClientsAllEqual(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, data)
}

func TestSecureSumNotImplemented(t *testing.T) {
	e := New(2)
	ctx := context.Background()

	fn := intrinsicValue(t, e, intrinsics.FederatedSecureSum,
		types.Function(types.Tuple(types.AtClients(i32), i32), types.AtServer(i32)))
	arg := clientsValue(t, e, i32, []any{1, 2})
	bitwidth, err := e.CreateValue(ctx, 8, i32)
	require.NoError(t, err)
	pair, err := e.CreateTuple(ctx, []executor.TupleElement{{Value: arg}, {Value: bitwidth}})
	require.NoError(t, err)
	_, err = e.CreateCall(ctx, fn, pair)
	var nerr *executor.NotImplementedError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, intrinsics.FederatedSecureSum, nerr.URI)
}

func TestSelection(t *testing.T) {
	e := New(1)
	ctx := context.Background()

	a, err := e.CreateValue(ctx, 1, i32)
	require.NoError(t, err)
	b, err := e.CreateValue(ctx, 2, i32)
	require.NoError(t, err)
	tup, err := e.CreateTuple(ctx, []executor.TupleElement{
		{Name: "a", Value: a}, {Name: "b", Value: b},
	})
	require.NoError(t, err)

	byIdx, err := e.CreateSelection(ctx, tup, executor.ByIndex(1))
	require.NoError(t, err)
	data, err := byIdx.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, data)

	byName, err := e.CreateSelection(ctx, tup, executor.ByName("a"))
	require.NoError(t, err)
	data, err = byName.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, data)

	_, err = e.CreateSelection(ctx, tup, executor.Selector{})
	var uerr *executor.UnsupportedError
	require.ErrorAs(t, err, &uerr)

	_, err = e.CreateSelection(ctx, tup, executor.ByIndex(5))
	require.Error(t, err)
	_, err = e.CreateSelection(ctx, tup, executor.ByName("zzz"))
	require.Error(t, err)
}

func TestComputeOnFunctionPayloadFails(t *testing.T) {
	e := New(1)
	ctx := context.Background()

	fn, err := e.CreateValue(ctx, comp.LambdaIdentity(), types.UnaryOpType(i32))
	require.NoError(t, err)
	_, err = fn.Compute(ctx)
	require.True(t, errors.As(err, new(*executor.UnsupportedError)))
}
