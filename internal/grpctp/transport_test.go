package grpctp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

// emptyProvider resolves every service to zero endpoints without error.
type emptyProvider struct{}

func (emptyProvider) Endpoints(ctx context.Context, service string) ([]string, error) {
	return nil, nil
}

func TestCallWithoutEndpoints(t *testing.T) {
	tr := New(WithProvider(emptyProvider{}))
	defer tr.Close()

	err := tr.Call(context.Background(), "fedtree.v1.Executor", "Compute",
		&structpb.Struct{}, new(structpb.Struct))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no endpoints")
}

func TestCallWithoutProvider(t *testing.T) {
	tr := New()
	defer tr.Close()

	err := tr.Call(context.Background(), "fedtree.v1.Executor", "Compute",
		&structpb.Struct{}, new(structpb.Struct))
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider not configured")
}
