// Package remote carries the executor capability verbatim over gRPC. A
// Service exposes any local executor, holding its live values in a table
// keyed by opaque handles; the client-side Executor proxies the capability
// methods against such a service. Messages are protobuf Structs encoded by
// internal/wire, and the service is registered by hand against a fixed
// six-method descriptor.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/fedtree/internal/eventbus"
	"github.com/hanpama/fedtree/internal/events"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/reqid"
	"github.com/hanpama/fedtree/internal/wire"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "fedtree.v1.Executor"

// Service exposes a local executor over gRPC.
type Service struct {
	target executor.Executor

	mu     sync.RWMutex
	values map[string]executor.Value
	closed bool
}

// NewService wraps target. The service takes ownership: Close releases the
// value table and closes target.
func NewService(target executor.Executor) *Service {
	return &Service{target: target, values: make(map[string]executor.Value)}
}

// Register attaches the service to a gRPC server.
func (s *Service) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Close drops all held values and closes the wrapped executor.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.values = map[string]executor.Value{}
	s.mu.Unlock()
	return s.target.Close()
}

func (s *Service) store(v executor.Value) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.values[id] = v
	s.mu.Unlock()
	return id
}

func (s *Service) lookup(id string) (executor.Value, error) {
	s.mu.RLock()
	v, ok := s.values[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("remote: unknown value handle %q", id)
	}
	return v, nil
}

func (s *Service) instrument(ctx context.Context, method string) (context.Context, func(error)) {
	ctx, _ = reqid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.ServiceCallStart{Method: method})
	return ctx, func(err error) {
		eventbus.Publish(ctx, events.ServiceCallFinish{Method: method, Err: err, Duration: time.Since(start)})
	}
}

func valueResponse(id string, v executor.Value) (*structpb.Struct, error) {
	tv, err := wire.EncodeType(v.Type())
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"value_id": structpb.NewStringValue(id),
		"type":     tv,
	}}, nil
}

func (s *Service) createValue(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	ctx, finish := s.instrument(ctx, "CreateValue")
	defer func() { finish(err) }()

	t, err := wire.DecodeType(in.Fields["type"])
	if err != nil {
		return nil, err
	}
	raw, err := wire.DecodeRaw(in.Fields["value"], t)
	if err != nil {
		return nil, err
	}
	v, err := s.target.CreateValue(ctx, raw, t)
	if err != nil {
		return nil, err
	}
	return valueResponse(s.store(v), v)
}

func (s *Service) createCall(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	ctx, finish := s.instrument(ctx, "CreateCall")
	defer func() { finish(err) }()

	fn, err := s.lookup(in.Fields["function_id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	var arg executor.Value
	if f, ok := in.Fields["argument_id"]; ok {
		if arg, err = s.lookup(f.GetStringValue()); err != nil {
			return nil, err
		}
	}
	v, err := s.target.CreateCall(ctx, fn, arg)
	if err != nil {
		return nil, err
	}
	return valueResponse(s.store(v), v)
}

func (s *Service) createTuple(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	ctx, finish := s.instrument(ctx, "CreateTuple")
	defer func() { finish(err) }()

	list := in.Fields["elements"].GetListValue().GetValues()
	elements := make([]executor.TupleElement, len(list))
	for i, ev := range list {
		es := ev.GetStructValue()
		v, err := s.lookup(es.Fields["value_id"].GetStringValue())
		if err != nil {
			return nil, err
		}
		elements[i] = executor.TupleElement{Name: es.Fields["name"].GetStringValue(), Value: v}
	}
	v, err := s.target.CreateTuple(ctx, elements)
	if err != nil {
		return nil, err
	}
	return valueResponse(s.store(v), v)
}

func (s *Service) createSelection(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	ctx, finish := s.instrument(ctx, "CreateSelection")
	defer func() { finish(err) }()

	source, err := s.lookup(in.Fields["source_id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	var sel executor.Selector
	if f, ok := in.Fields["index"]; ok {
		sel = executor.ByIndex(int(f.GetNumberValue()))
	} else if f, ok := in.Fields["name"]; ok {
		sel = executor.ByName(f.GetStringValue())
	}
	v, err := s.target.CreateSelection(ctx, source, sel)
	if err != nil {
		return nil, err
	}
	return valueResponse(s.store(v), v)
}

func (s *Service) compute(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	ctx, finish := s.instrument(ctx, "Compute")
	defer func() { finish(err) }()

	v, err := s.lookup(in.Fields["value_id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	data, err := v.Compute(ctx)
	if err != nil {
		return nil, err
	}
	dv, err := wire.EncodeData(data)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"value": dv}}, nil
}

func (s *Service) dispose(ctx context.Context, in *structpb.Struct) (out *structpb.Struct, err error) {
	_, finish := s.instrument(ctx, "Dispose")
	defer func() { finish(err) }()

	ids := in.Fields["value_ids"].GetListValue().GetValues()
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate every handle before deleting any, so a bad id leaves the
	// table untouched.
	for _, idv := range ids {
		id := idv.GetStringValue()
		if _, ok := s.values[id]; !ok {
			return nil, fmt.Errorf("remote: unknown value handle %q", id)
		}
	}
	for _, idv := range ids {
		delete(s.values, idv.GetStringValue())
	}
	return &structpb.Struct{}, nil
}
