package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRendering(t *testing.T) {
	i32 := TensorType{Dtype: Int32}
	require.Equal(t, "int32", i32.String())
	require.Equal(t, "(int32 -> int32)", UnaryOpType(i32).String())
	require.Equal(t, "( -> int32)", Function(nil, i32).String())
	require.Equal(t, "<int32,int32>", Tuple(i32, i32).String())
	require.Equal(t, "<a=int32,b=float64>", NamedTuple(
		TupleElement{Name: "a", Type: i32},
		TupleElement{Name: "b", Type: TensorType{Dtype: Float64}},
	).String())
	require.Equal(t, "int32@server", AtServer(i32).String())
	require.Equal(t, "{int32}@clients", AtClients(i32).String())
	require.Equal(t, "int32@clients", AtClientsAllEqual(i32).String())
}

func TestEqual(t *testing.T) {
	i32 := TensorType{Dtype: Int32}
	f64 := TensorType{Dtype: Float64}

	require.True(t, Equal(i32, TensorType{Dtype: Int32}))
	require.False(t, Equal(i32, f64))
	require.True(t, Equal(AtClients(i32), AtClients(i32)))
	require.False(t, Equal(AtClients(i32), AtClientsAllEqual(i32)))
	require.False(t, Equal(AtClients(i32), AtServer(i32)))
	require.True(t, Equal(Tuple(i32, f64), Tuple(i32, f64)))
	require.False(t, Equal(Tuple(i32), Tuple(i32, i32)))
	require.False(t, Equal(
		NamedTuple(TupleElement{Name: "a", Type: i32}),
		NamedTuple(TupleElement{Name: "b", Type: i32})))
	require.True(t, Equal(Function(nil, i32), Function(nil, i32)))
	require.False(t, Equal(Function(nil, i32), Function(i32, i32)))
}

func TestAssignableFrom(t *testing.T) {
	i32 := TensorType{Dtype: Int32}

	// An all-equal clients value fits where a non-all-equal one is expected.
	require.True(t, AssignableFrom(AtClients(i32), AtClientsAllEqual(i32)))
	// The relaxation is one-directional.
	require.False(t, AssignableFrom(AtClientsAllEqual(i32), AtClients(i32)))
	// It threads through tuples.
	require.True(t, AssignableFrom(
		Tuple(AtClients(i32)), Tuple(AtClientsAllEqual(i32))))
	// Placement never relaxes.
	require.False(t, AssignableFrom(AtServer(i32), AtClientsAllEqual(i32)))
	require.True(t, AssignableFrom(i32, i32))
}

func TestIsConcreteInstanceOf(t *testing.T) {
	i32 := TensorType{Dtype: Int32}
	f64 := TensorType{Dtype: Float64}
	tT := AbstractType{Label: "T"}

	sumSig := Function(AtClients(tT), AtServer(tT))
	require.True(t, IsConcreteInstanceOf(Function(AtClients(i32), AtServer(i32)), sumSig))
	// The same label must bind consistently.
	require.False(t, IsConcreteInstanceOf(Function(AtClients(i32), AtServer(f64)), sumSig))
	// Structure must match.
	require.False(t, IsConcreteInstanceOf(Function(AtServer(i32), AtServer(i32)), sumSig))
	// all_equal is part of the shape.
	require.False(t, IsConcreteInstanceOf(
		Function(AtClientsAllEqual(i32), AtServer(i32)), sumSig))
}

func TestCheckFederated(t *testing.T) {
	i32 := TensorType{Dtype: Int32}
	ae := true

	ft, err := CheckFederated(AtServer(i32), i32, Server, &ae)
	require.NoError(t, err)
	require.Equal(t, AtServer(i32), ft)

	_, err = CheckFederated(i32, nil, Server, nil)
	require.Error(t, err)
	_, err = CheckFederated(AtClients(i32), nil, Server, nil)
	require.Error(t, err)
	_, err = CheckFederated(AtClients(i32), nil, Clients, &ae)
	require.Error(t, err)
	_, err = CheckFederated(AtServer(i32), TensorType{Dtype: Float64}, Server, nil)
	require.Error(t, err)
}
