package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/types"
	"github.com/hanpama/fedtree/internal/wire"
)

// Caller issues unary RPCs against an executor service. *grpctp.Transport
// satisfies it.
type Caller interface {
	Call(ctx context.Context, service, method string, req, resp proto.Message) error
}

// disposeTimeout bounds the final Dispose RPC issued by Close.
const disposeTimeout = 5 * time.Second

// Executor is a client-side proxy for a remote executor service. Every
// value it creates is held on the remote side under an opaque handle;
// Close disposes all handles the proxy still tracks. The Caller is shared,
// not owned, and is left open.
type Executor struct {
	caller Caller

	mu     sync.Mutex
	ids    map[string]struct{}
	closed bool
}

var _ executor.Executor = (*Executor)(nil)

// New returns a proxy that issues calls through caller.
func New(caller Caller) *Executor {
	return &Executor{caller: caller, ids: make(map[string]struct{})}
}

type remoteValue struct {
	ex *Executor
	id string
	t  types.Type
}

func (v *remoteValue) Type() types.Type { return v.t }

func (v *remoteValue) Compute(ctx context.Context) (any, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"value_id": structpb.NewStringValue(v.id),
	}}
	resp := new(structpb.Struct)
	if err := v.ex.caller.Call(ctx, ServiceName, "Compute", req, resp); err != nil {
		return nil, err
	}
	return wire.DecodeData(resp.Fields["value"], v.t)
}

// call issues an RPC that yields a new remote handle and wraps it. The
// result type is determined client-side; the service's echoed type is
// ignored.
func (ex *Executor) call(ctx context.Context, method string, req *structpb.Struct, t types.Type) (*remoteValue, error) {
	resp := new(structpb.Struct)
	if err := ex.caller.Call(ctx, ServiceName, method, req, resp); err != nil {
		return nil, err
	}
	id := resp.Fields["value_id"].GetStringValue()
	if id == "" {
		return nil, fmt.Errorf("remote: %s response carries no value handle", method)
	}
	ex.mu.Lock()
	ex.ids[id] = struct{}{}
	ex.mu.Unlock()
	return &remoteValue{ex: ex, id: id, t: t}, nil
}

func (ex *Executor) own(v executor.Value) (*remoteValue, error) {
	rv, ok := v.(*remoteValue)
	if !ok || rv.ex != ex {
		return nil, executor.Typef("value was not created by this executor")
	}
	return rv, nil
}

func (ex *Executor) CreateValue(ctx context.Context, value any, t types.Type) (executor.Value, error) {
	tv, err := wire.EncodeType(t)
	if err != nil {
		return nil, err
	}
	raw, err := wire.EncodeRaw(value)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"value": raw,
		"type":  tv,
	}}
	return ex.call(ctx, "CreateValue", req, t)
}

func (ex *Executor) CreateCall(ctx context.Context, fn executor.Value, arg executor.Value) (executor.Value, error) {
	rfn, err := ex.own(fn)
	if err != nil {
		return nil, err
	}
	ft, ok := rfn.t.(types.FunctionType)
	if !ok {
		return nil, executor.Typef("cannot call a value of type %s", rfn.t)
	}
	fields := map[string]*structpb.Value{
		"function_id": structpb.NewStringValue(rfn.id),
	}
	if arg != nil {
		rarg, err := ex.own(arg)
		if err != nil {
			return nil, err
		}
		fields["argument_id"] = structpb.NewStringValue(rarg.id)
	}
	return ex.call(ctx, "CreateCall", &structpb.Struct{Fields: fields}, ft.Result)
}

func (ex *Executor) CreateTuple(ctx context.Context, elements []executor.TupleElement) (executor.Value, error) {
	list := make([]*structpb.Value, len(elements))
	elemTypes := make([]types.TupleElement, len(elements))
	for i, el := range elements {
		rv, err := ex.own(el.Value)
		if err != nil {
			return nil, err
		}
		fields := map[string]*structpb.Value{
			"value_id": structpb.NewStringValue(rv.id),
		}
		if el.Name != "" {
			fields["name"] = structpb.NewStringValue(el.Name)
		}
		list[i] = structpb.NewStructValue(&structpb.Struct{Fields: fields})
		elemTypes[i] = types.TupleElement{Name: el.Name, Type: rv.t}
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"elements": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
	return ex.call(ctx, "CreateTuple", req, types.TupleType{Elements: elemTypes})
}

func (ex *Executor) CreateSelection(ctx context.Context, source executor.Value, sel executor.Selector) (executor.Value, error) {
	rv, err := ex.own(source)
	if err != nil {
		return nil, err
	}
	if !sel.Valid() {
		return nil, executor.Unsupportedf("selection must use exactly one of index or name")
	}
	tt, ok := rv.t.(types.TupleType)
	if !ok {
		return nil, executor.Typef("cannot select from a value of type %s", rv.t)
	}
	fields := map[string]*structpb.Value{
		"source_id": structpb.NewStringValue(rv.id),
	}
	var elemType types.Type
	if sel.HasIndex() {
		if sel.Index < 0 || sel.Index >= len(tt.Elements) {
			return nil, executor.Typef("selection index %d out of range for %s", sel.Index, tt)
		}
		elemType = tt.Elements[sel.Index].Type
		fields["index"] = structpb.NewNumberValue(float64(sel.Index))
	} else {
		for _, el := range tt.Elements {
			if el.Name == sel.Name {
				elemType = el.Type
				break
			}
		}
		if elemType == nil {
			return nil, executor.Typef("no element named %q in %s", sel.Name, tt)
		}
		fields["name"] = structpb.NewStringValue(sel.Name)
	}
	return ex.call(ctx, "CreateSelection", &structpb.Struct{Fields: fields}, elemType)
}

// Close disposes every handle the proxy still tracks. It does not close
// the underlying Caller.
func (ex *Executor) Close() error {
	ex.mu.Lock()
	if ex.closed {
		ex.mu.Unlock()
		return nil
	}
	ex.closed = true
	ids := make([]*structpb.Value, 0, len(ex.ids))
	for id := range ex.ids {
		ids = append(ids, structpb.NewStringValue(id))
	}
	ex.ids = map[string]struct{}{}
	ex.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"value_ids": structpb.NewListValue(&structpb.ListValue{Values: ids}),
	}}
	return ex.caller.Call(ctx, ServiceName, "Dispose", req, new(structpb.Struct))
}
