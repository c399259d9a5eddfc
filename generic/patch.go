package generic

import "encoding/json"

// Field is a tri-state update value: leave unchanged, set to a value, or clear.
// The zero value is "leave unchanged", so an update struct only mentions the
// fields it touches.
//
// When decoded from JSON an absent key stays unchanged, null clears, and any
// other value sets.
type Field[T any] struct {
	op    fieldOp
	value T
}

type fieldOp uint8

const (
	opKeep fieldOp = iota
	opSet
	opClear
)

func Keep[T any]() Field[T]      { return Field[T]{} }
func Set[T any](v T) Field[T]    { return Field[T]{op: opSet, value: v} }
func Clear[T any]() Field[T]     { return Field[T]{op: opClear} }
func (f Field[T]) IsKeep() bool  { return f.op == opKeep }
func (f Field[T]) IsSet() bool   { return f.op == opSet }
func (f Field[T]) IsClear() bool { return f.op == opClear }

// Value returns the set value and whether the field is in the set state.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.op == opSet
}

// Apply writes a set value into dst. Clear resets dst to the zero value.
func (f Field[T]) Apply(dst *T) {
	switch f.op {
	case opSet:
		*dst = f.value
	case opClear:
		var zero T
		*dst = zero
	}
}

// ApplyPtr is Apply for optional fields stored as pointers; Clear sets nil.
func (f Field[T]) ApplyPtr(dst **T) {
	switch f.op {
	case opSet:
		v := f.value
		*dst = &v
	case opClear:
		*dst = nil
	}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Clear[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.op != opSet {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
