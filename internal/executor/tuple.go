package executor

// Tuple is materialized tuple data: ordered items with optional names.
// It is the concrete form produced by Compute for tuple-typed values.
type Tuple []TupleItem

// TupleItem is one materialized tuple element.
type TupleItem struct {
	Name  string
	Value any
}

// Item returns the value at index i.
func (t Tuple) Item(i int) any { return t[i].Value }

// ByName returns the value of the named item and whether it exists.
func (t Tuple) ByName(name string) (any, bool) {
	for _, it := range t {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}
