package types

import "fmt"

// Equal reports whether a and b are structurally identical.
func Equal(a, b Type) bool {
	switch at := a.(type) {
	case TensorType:
		bt, ok := b.(TensorType)
		return ok && at.Dtype == bt.Dtype
	case FunctionType:
		bt, ok := b.(FunctionType)
		if !ok {
			return false
		}
		if (at.Parameter == nil) != (bt.Parameter == nil) {
			return false
		}
		if at.Parameter != nil && !Equal(at.Parameter, bt.Parameter) {
			return false
		}
		return Equal(at.Result, bt.Result)
	case TupleType:
		bt, ok := b.(TupleType)
		if !ok || len(at.Elements) != len(bt.Elements) {
			return false
		}
		for i := range at.Elements {
			if at.Elements[i].Name != bt.Elements[i].Name {
				return false
			}
			if !Equal(at.Elements[i].Type, bt.Elements[i].Type) {
				return false
			}
		}
		return true
	case FederatedType:
		bt, ok := b.(FederatedType)
		return ok && at.Placement == bt.Placement && at.AllEqual == bt.AllEqual &&
			Equal(at.Member, bt.Member)
	case AbstractType:
		bt, ok := b.(AbstractType)
		return ok && at.Label == bt.Label
	default:
		return false
	}
}

// AssignableFrom reports whether a value of type source may be used where
// target is expected. The only relaxation over Equal is federated: an
// all-equal value is assignable to the non-all-equal form of the same type.
func AssignableFrom(target, source Type) bool {
	tf, tok := target.(FederatedType)
	sf, sok := source.(FederatedType)
	if tok && sok {
		if tf.Placement != sf.Placement {
			return false
		}
		if !tf.AllEqual && sf.AllEqual {
			return AssignableFrom(tf.Member, sf.Member)
		}
		return tf.AllEqual == sf.AllEqual && AssignableFrom(tf.Member, sf.Member)
	}
	tt, tok := target.(TupleType)
	st, sok := source.(TupleType)
	if tok && sok {
		if len(tt.Elements) != len(st.Elements) {
			return false
		}
		for i := range tt.Elements {
			if tt.Elements[i].Name != st.Elements[i].Name {
				return false
			}
			if !AssignableFrom(tt.Elements[i].Type, st.Elements[i].Type) {
				return false
			}
		}
		return true
	}
	tn, tok := target.(FunctionType)
	sn, sok := source.(FunctionType)
	if tok && sok {
		if (tn.Parameter == nil) != (sn.Parameter == nil) {
			return false
		}
		if tn.Parameter != nil && !AssignableFrom(sn.Parameter, tn.Parameter) {
			return false
		}
		return AssignableFrom(tn.Result, sn.Result)
	}
	return Equal(target, source)
}

// IsConcreteInstanceOf reports whether concrete is an instance of the
// possibly generic type, where every AbstractType label in generic must
// bind consistently to a single concrete type.
func IsConcreteInstanceOf(concrete, generic Type) bool {
	bindings := map[string]Type{}
	return unify(concrete, generic, bindings)
}

func unify(concrete, generic Type, bindings map[string]Type) bool {
	switch gt := generic.(type) {
	case AbstractType:
		if bound, ok := bindings[gt.Label]; ok {
			return Equal(concrete, bound)
		}
		bindings[gt.Label] = concrete
		return true
	case TensorType:
		return Equal(concrete, gt)
	case FunctionType:
		ct, ok := concrete.(FunctionType)
		if !ok {
			return false
		}
		if (ct.Parameter == nil) != (gt.Parameter == nil) {
			return false
		}
		if ct.Parameter != nil && !unify(ct.Parameter, gt.Parameter, bindings) {
			return false
		}
		return unify(ct.Result, gt.Result, bindings)
	case TupleType:
		ct, ok := concrete.(TupleType)
		if !ok || len(ct.Elements) != len(gt.Elements) {
			return false
		}
		for i := range gt.Elements {
			if gt.Elements[i].Name != ct.Elements[i].Name {
				return false
			}
			if !unify(ct.Elements[i].Type, gt.Elements[i].Type, bindings) {
				return false
			}
		}
		return true
	case FederatedType:
		ct, ok := concrete.(FederatedType)
		if !ok || ct.Placement != gt.Placement || ct.AllEqual != gt.AllEqual {
			return false
		}
		return unify(ct.Member, gt.Member, bindings)
	default:
		return false
	}
}

// CheckFederated validates that t is a FederatedType with the given
// placement; member and allEqual are checked when non-nil.
func CheckFederated(t Type, member Type, placement Placement, allEqual *bool) (FederatedType, error) {
	ft, ok := t.(FederatedType)
	if !ok {
		return FederatedType{}, fmt.Errorf("expected a federated type, found %s", t)
	}
	if ft.Placement != placement {
		return FederatedType{}, fmt.Errorf("expected placement %s, found %s", placement, ft.Placement)
	}
	if member != nil && !Equal(ft.Member, member) {
		return FederatedType{}, fmt.Errorf("expected member type %s, found %s", member, ft.Member)
	}
	if allEqual != nil && ft.AllEqual != *allEqual {
		return FederatedType{}, fmt.Errorf("expected all_equal=%v for %s", *allEqual, ft)
	}
	return ft, nil
}
