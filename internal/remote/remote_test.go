package remote

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/grpctp"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/localexec"
	"github.com/hanpama/fedtree/internal/types"
)

var i32 = types.TensorType{Dtype: types.Int32}

// startService serves target over an in-memory listener and returns a
// transport dialed against it.
func startService(t *testing.T, target executor.Executor) *grpctp.Transport {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	svc := NewService(target)
	gs := grpc.NewServer()
	svc.Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() {
		gs.Stop()
		_ = svc.Close()
	})

	provider := grpctp.NewStaticEndpoints(map[string][]string{
		ServiceName: {"passthrough:///bufnet"},
	})
	tr := grpctp.New(
		grpctp.WithProvider(provider),
		grpctp.WithDialOptions(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		),
	)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRemoteSumRoundTrip(t *testing.T) {
	tr := startService(t, localexec.New(3))
	ex := New(tr)
	ctx := context.Background()

	fn, err := ex.CreateValue(ctx, comp.IntrinsicComp(intrinsics.FederatedSum),
		types.Function(types.AtClients(i32), types.AtServer(i32)))
	require.NoError(t, err)
	arg, err := ex.CreateValue(ctx, []any{int64(1), int64(2), int64(3)}, types.AtClients(i32))
	require.NoError(t, err)
	out, err := ex.CreateCall(ctx, fn, arg)
	require.NoError(t, err)
	require.Equal(t, types.AtServer(i32), out.Type())
	data, err := out.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), data)

	require.NoError(t, ex.Close())
}

func TestRemoteTupleAndSelection(t *testing.T) {
	tr := startService(t, localexec.New(1))
	ex := New(tr)
	ctx := context.Background()

	a, err := ex.CreateValue(ctx, int64(1), i32)
	require.NoError(t, err)
	b, err := ex.CreateValue(ctx, int64(2), i32)
	require.NoError(t, err)
	tup, err := ex.CreateTuple(ctx, []executor.TupleElement{
		{Name: "a", Value: a}, {Name: "b", Value: b},
	})
	require.NoError(t, err)
	require.Equal(t, types.NamedTuple(
		types.TupleElement{Name: "a", Type: i32},
		types.TupleElement{Name: "b", Type: i32},
	), tup.Type())

	sel, err := ex.CreateSelection(ctx, tup, executor.ByName("b"))
	require.NoError(t, err)
	require.Equal(t, i32, sel.Type())
	data, err := sel.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), data)

	// Selection shape errors surface client-side, before any RPC.
	_, err = ex.CreateSelection(ctx, tup, executor.ByIndex(7))
	require.Error(t, err)
	_, err = ex.CreateSelection(ctx, a, executor.ByIndex(0))
	require.Error(t, err)
}

func TestRemoteDelegateErrorPassesThrough(t *testing.T) {
	tr := startService(t, localexec.New(3))
	ex := New(tr)
	ctx := context.Background()

	_, err := ex.CreateValue(ctx, []any{int64(1), int64(2)}, types.AtClients(i32))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 3 client values, got 2")
}

func TestRemoteCloseDisposesHandles(t *testing.T) {
	tr := startService(t, localexec.New(1))
	ex := New(tr)
	ctx := context.Background()

	v, err := ex.CreateValue(ctx, int64(9), i32)
	require.NoError(t, err)
	require.NoError(t, ex.Close())

	// The handle is gone on the service side after Close.
	_, err = v.Compute(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown value handle")

	// Close is idempotent.
	require.NoError(t, ex.Close())
}

func TestDisposeKeepsHandlesOnUnknownID(t *testing.T) {
	tr := startService(t, localexec.New(1))
	ex := New(tr)
	ctx := context.Background()

	v, err := ex.CreateValue(ctx, int64(9), i32)
	require.NoError(t, err)
	id := v.(*remoteValue).id

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"value_ids": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewStringValue("no-such-handle"),
			structpb.NewStringValue(id),
		}}),
	}}
	err = tr.Call(ctx, ServiceName, "Dispose", req, new(structpb.Struct))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown value handle")

	// The valid handle survives the rejected batch.
	data, err := v.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(9), data)
}

// handleLessCaller answers every RPC with an empty response.
type handleLessCaller struct{}

func (handleLessCaller) Call(ctx context.Context, service, method string, req, resp proto.Message) error {
	return nil
}

func TestResponseWithoutHandleRejected(t *testing.T) {
	ex := New(handleLessCaller{})
	_, err := ex.CreateValue(context.Background(), int64(1), i32)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no value handle")
}

func TestRemoteRejectsForeignValues(t *testing.T) {
	tr := startService(t, localexec.New(1))
	ex := New(tr)
	other := New(tr)
	ctx := context.Background()

	v, err := other.CreateValue(ctx, int64(1), i32)
	require.NoError(t, err)
	_, err = ex.CreateCall(ctx, v, nil)
	require.Error(t, err)
	_, err = ex.CreateTuple(ctx, []executor.TupleElement{{Value: v}})
	require.Error(t, err)
}
