// Package wire encodes executor values, types and computation payloads as
// protobuf Struct values for the remote executor RPC surface. Numbers ride
// as doubles on the wire; decoding restores integral dtypes from the
// accompanying type descriptor.
package wire

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/fedtree/internal/comp"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/intrinsics"
	"github.com/hanpama/fedtree/internal/types"
)

// EncodeType renders a type descriptor.
func EncodeType(t types.Type) (*structpb.Value, error) {
	switch tt := t.(type) {
	case types.TensorType:
		return structpb.NewValue(map[string]any{"kind": "tensor", "dtype": string(tt.Dtype)})
	case types.FunctionType:
		fields := map[string]*structpb.Value{"kind": structpb.NewStringValue("function")}
		if tt.Parameter != nil {
			p, err := EncodeType(tt.Parameter)
			if err != nil {
				return nil, err
			}
			fields["parameter"] = p
		}
		r, err := EncodeType(tt.Result)
		if err != nil {
			return nil, err
		}
		fields["result"] = r
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case types.TupleType:
		elems := make([]*structpb.Value, len(tt.Elements))
		for i, el := range tt.Elements {
			et, err := EncodeType(el.Type)
			if err != nil {
				return nil, err
			}
			elems[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"name": structpb.NewStringValue(el.Name),
				"type": et,
			}})
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"kind":     structpb.NewStringValue("tuple"),
			"elements": structpb.NewListValue(&structpb.ListValue{Values: elems}),
		}}), nil
	case types.FederatedType:
		m, err := EncodeType(tt.Member)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"kind":      structpb.NewStringValue("federated"),
			"member":    m,
			"placement": structpb.NewStringValue(string(tt.Placement)),
			"all_equal": structpb.NewBoolValue(tt.AllEqual),
		}}), nil
	case types.AbstractType:
		return structpb.NewValue(map[string]any{"kind": "abstract", "label": tt.Label})
	default:
		return nil, fmt.Errorf("wire: cannot encode type %T", t)
	}
}

// DecodeType parses a type descriptor.
func DecodeType(v *structpb.Value) (types.Type, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("wire: type descriptor is not a struct")
	}
	switch kind := s.Fields["kind"].GetStringValue(); kind {
	case "tensor":
		return types.TensorType{Dtype: types.Dtype(s.Fields["dtype"].GetStringValue())}, nil
	case "function":
		var param types.Type
		if p, ok := s.Fields["parameter"]; ok {
			var err error
			if param, err = DecodeType(p); err != nil {
				return nil, err
			}
		}
		result, err := DecodeType(s.Fields["result"])
		if err != nil {
			return nil, err
		}
		return types.FunctionType{Parameter: param, Result: result}, nil
	case "tuple":
		list := s.Fields["elements"].GetListValue().GetValues()
		elems := make([]types.TupleElement, len(list))
		for i, ev := range list {
			es := ev.GetStructValue()
			et, err := DecodeType(es.Fields["type"])
			if err != nil {
				return nil, err
			}
			elems[i] = types.TupleElement{Name: es.Fields["name"].GetStringValue(), Type: et}
		}
		return types.TupleType{Elements: elems}, nil
	case "federated":
		member, err := DecodeType(s.Fields["member"])
		if err != nil {
			return nil, err
		}
		return types.FederatedType{
			Member:    member,
			Placement: types.Placement(s.Fields["placement"].GetStringValue()),
			AllEqual:  s.Fields["all_equal"].GetBoolValue(),
		}, nil
	case "abstract":
		return types.AbstractType{Label: s.Fields["label"].GetStringValue()}, nil
	default:
		return nil, fmt.Errorf("wire: unknown type kind %q", kind)
	}
}

// EncodeData renders concrete materialized data.
func EncodeData(v any) (*structpb.Value, error) {
	switch d := v.(type) {
	case executor.Tuple:
		items := make([]*structpb.Value, len(d))
		for i, it := range d {
			ev, err := EncodeData(it.Value)
			if err != nil {
				return nil, err
			}
			items[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"name":  structpb.NewStringValue(it.Name),
				"value": ev,
			}})
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"$tuple": structpb.NewListValue(&structpb.ListValue{Values: items}),
		}}), nil
	case []any:
		items := make([]*structpb.Value, len(d))
		for i, it := range d {
			ev, err := EncodeData(it)
			if err != nil {
				return nil, err
			}
			items[i] = ev
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items}), nil
	default:
		pv, err := structpb.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("wire: cannot encode data %T: %w", v, err)
		}
		return pv, nil
	}
}

// DecodeData restores concrete data, shaping numbers by the given type.
// A nil type leaves wire representations (float64, []any) as-is.
func DecodeData(v *structpb.Value, t types.Type) (any, error) {
	if ft, ok := t.(types.FederatedType); ok {
		if ft.Placement == types.Clients && !ft.AllEqual {
			list := v.GetListValue().GetValues()
			out := make([]any, len(list))
			for i, ev := range list {
				data, err := DecodeData(ev, ft.Member)
				if err != nil {
					return nil, err
				}
				out[i] = data
			}
			return out, nil
		}
		return DecodeData(v, ft.Member)
	}
	if s := v.GetStructValue(); s != nil {
		if tl, ok := s.Fields["$tuple"]; ok {
			var elemTypes []types.TupleElement
			if tt, ok := t.(types.TupleType); ok {
				elemTypes = tt.Elements
			}
			list := tl.GetListValue().GetValues()
			out := make(executor.Tuple, len(list))
			for i, ev := range list {
				es := ev.GetStructValue()
				var et types.Type
				if elemTypes != nil && i < len(elemTypes) {
					et = elemTypes[i].Type
				}
				data, err := DecodeData(es.Fields["value"], et)
				if err != nil {
					return nil, err
				}
				out[i] = executor.TupleItem{Name: es.Fields["name"].GetStringValue(), Value: data}
			}
			return out, nil
		}
	}
	if tt, ok := t.(types.TensorType); ok {
		switch tt.Dtype {
		case types.Int32, types.Int64:
			return int64(v.GetNumberValue()), nil
		case types.Float32, types.Float64:
			return v.GetNumberValue(), nil
		case types.Bool:
			return v.GetBoolValue(), nil
		case types.String:
			return v.GetStringValue(), nil
		}
	}
	if list := v.GetListValue(); list != nil {
		out := make([]any, len(list.GetValues()))
		for i, ev := range list.GetValues() {
			data, err := DecodeData(ev, nil)
			if err != nil {
				return nil, err
			}
			out[i] = data
		}
		return out, nil
	}
	return v.AsInterface(), nil
}

// EncodeComputation renders a function payload.
func EncodeComputation(c *comp.Computation) (*structpb.Value, error) {
	fields := map[string]*structpb.Value{
		"kind": structpb.NewStringValue(string(c.Kind)),
	}
	switch c.Kind {
	case comp.KindIntrinsic:
		fields["uri"] = structpb.NewStringValue(c.Intrinsic)
	case comp.KindOp:
		fields["op"] = structpb.NewStringValue(c.Op)
		if c.Operand != nil {
			fields["operand"] = c.Operand
		}
	case comp.KindLambda:
		fields["body"] = structpb.NewStringValue(base64.StdEncoding.EncodeToString(c.Body))
	default:
		return nil, fmt.Errorf("wire: cannot encode computation kind %q", c.Kind)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

// DecodeComputation parses a function payload.
func DecodeComputation(v *structpb.Value) (*comp.Computation, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("wire: computation is not a struct")
	}
	c := &comp.Computation{Kind: comp.Kind(s.Fields["kind"].GetStringValue())}
	switch c.Kind {
	case comp.KindIntrinsic:
		c.Intrinsic = s.Fields["uri"].GetStringValue()
	case comp.KindOp:
		c.Op = s.Fields["op"].GetStringValue()
		if op, ok := s.Fields["operand"]; ok {
			c.Operand = op
		}
	case comp.KindLambda:
		body, err := base64.StdEncoding.DecodeString(s.Fields["body"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("wire: bad lambda body: %w", err)
		}
		c.Body = body
	default:
		return nil, fmt.Errorf("wire: unknown computation kind %q", c.Kind)
	}
	return c, nil
}

// EncodeRaw wraps raw CreateValue input: either a computation payload, an
// intrinsic reference, or concrete data.
func EncodeRaw(raw any) (*structpb.Value, error) {
	switch r := raw.(type) {
	case *comp.Computation:
		cv, err := EncodeComputation(r)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"computation": cv,
		}}), nil
	case *intrinsics.Def:
		cv, err := EncodeComputation(comp.IntrinsicComp(r.URI))
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"computation": cv,
		}}), nil
	default:
		dv, err := EncodeData(raw)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"data": dv,
		}}), nil
	}
}

// DecodeRaw unwraps raw CreateValue input. The type shapes concrete data.
func DecodeRaw(v *structpb.Value, t types.Type) (any, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("wire: raw value is not a struct")
	}
	if cv, ok := s.Fields["computation"]; ok {
		return DecodeComputation(cv)
	}
	if dv, ok := s.Fields["data"]; ok {
		return DecodeData(dv, t)
	}
	return nil, fmt.Errorf("wire: raw value carries neither computation nor data")
}
