package wire

import (
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

func TestTypeRoundTrip(t *testing.T) {
	cases := []types.Type{
		i32,
		types.Function(nil, i32),
		types.Function(types.AtClients(i32), types.AtServer(i32)),
		types.NamedTuple(
			types.TupleElement{Name: "a", Type: types.AtClientsAllEqual(f64)},
			types.TupleElement{Name: "", Type: types.Tuple(i32, i32)},
		),
		types.AbstractType{Label: "T"},
	}
	for _, tc := range cases {
		enc, err := EncodeType(tc)
		require.NoError(t, err, tc.String())
		dec, err := DecodeType(enc)
		require.NoError(t, err, tc.String())
		require.True(t, types.Equal(tc, dec), "round trip of %s produced %s", tc, dec)
	}
}

func TestDecodeDataShapesNumbersByType(t *testing.T) {
	enc, err := EncodeData([]any{int64(1), int64(2), int64(3)})
	require.NoError(t, err)
	dec, err := DecodeData(enc, types.AtClients(i32))
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int64(2), int64(3)}, dec)

	enc, err = EncodeData(2.5)
	require.NoError(t, err)
	dec, err = DecodeData(enc, types.AtServer(f64))
	require.NoError(t, err)
	require.Equal(t, 2.5, dec)
}

func TestDataTupleRoundTrip(t *testing.T) {
	in := executor.Tuple{
		{Name: "count", Value: int64(7)},
		{Name: "parts", Value: []any{int64(1), int64(2)}},
	}
	tt := types.NamedTuple(
		types.TupleElement{Name: "count", Type: i32},
		types.TupleElement{Name: "parts", Type: types.AtClients(i32)},
	)
	enc, err := EncodeData(in)
	require.NoError(t, err)
	dec, err := DecodeData(enc, tt)
	require.NoError(t, err)
	if diff := cmp.Diff(in, dec); diff != "" {
		t.Fatalf("tuple mismatch (-want +got):\n%s", diff)
	}
}

func TestFederatedTupleMemberCoercion(t *testing.T) {
	// Per-client tuples: the federated layer unwraps before the tuple
	// shaping so member dtypes still apply.
	in := []any{
		executor.Tuple{{Name: "x", Value: int64(1)}, {Name: "y", Value: 0.5}},
		executor.Tuple{{Name: "x", Value: int64(2)}, {Name: "y", Value: 1.5}},
	}
	member := types.NamedTuple(
		types.TupleElement{Name: "x", Type: i32},
		types.TupleElement{Name: "y", Type: f64},
	)
	enc, err := EncodeData(in)
	require.NoError(t, err)
	dec, err := DecodeData(enc, types.AtClients(member))
	require.NoError(t, err)
	if diff := cmp.Diff(in, dec); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestComputationRoundTrip(t *testing.T) {
	operand, err := comp.ScalarConstant(4)
	require.NoError(t, err)
	cases := []*comp.Computation{
		comp.IntrinsicComp(intrinsics.FederatedSum),
		comp.LambdaIdentity(),
		comp.BinaryOperator(comp.OpDivide),
		operand,
		{Kind: comp.KindLambda, Body: []byte{0x01, 0x02, 0xff}},
	}
	for _, tc := range cases {
		enc, err := EncodeComputation(tc)
		require.NoError(t, err, tc.String())
		dec, err := DecodeComputation(enc)
		require.NoError(t, err, tc.String())
		require.Equal(t, tc.Kind, dec.Kind)
		require.Equal(t, tc.Intrinsic, dec.Intrinsic)
		require.Equal(t, tc.Op, dec.Op)
		require.Equal(t, tc.Body, dec.Body)
		if tc.Operand != nil {
			require.Equal(t, tc.Operand.GetNumberValue(), dec.Operand.GetNumberValue())
		}
	}
}

func TestRawEnvelopes(t *testing.T) {
	// Computation payloads survive as payloads.
	enc, err := EncodeRaw(comp.BinaryOperator(comp.OpAdd))
	require.NoError(t, err)
	dec, err := DecodeRaw(enc, types.BinaryOpType(i32))
	require.NoError(t, err)
	c, ok := dec.(*comp.Computation)
	require.True(t, ok)
	require.Equal(t, comp.OpAdd, c.Op)

	// Intrinsic references decode as intrinsic computations.
	enc, err = EncodeRaw(intrinsics.ByURI(intrinsics.FederatedSum))
	require.NoError(t, err)
	dec, err = DecodeRaw(enc, types.Function(types.AtClients(i32), types.AtServer(i32)))
	require.NoError(t, err)
	c, ok = dec.(*comp.Computation)
	require.True(t, ok)
	require.Equal(t, comp.KindIntrinsic, c.Kind)
	require.Equal(t, intrinsics.FederatedSum, c.Intrinsic)

	// Concrete data rides the data envelope.
	enc, err = EncodeRaw([]any{int64(1), int64(2)})
	require.NoError(t, err)
	dec, err = DecodeRaw(enc, types.AtClients(i32))
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int64(2)}, dec)
}
