// Package optional models patch fields that distinguish "absent" from
// "explicitly null" from "set to a value".
package optional

import (
	"bytes"
	"encoding/json"
)

// Value is a field of a partial update. The zero Value is absent.
type Value[T any] struct {
	Set  bool
	Null bool
	V    T
}

// Some returns a present, non-null value.
func Some[T any](v T) Value[T] {
	return Value[T]{Set: true, V: v}
}

// Null returns a present value that clears the field.
func Null[T any]() Value[T] {
	return Value[T]{Set: true, Null: true}
}

// UnmarshalJSON is only invoked for keys present in the payload, which is
// what marks the field as Set.
func (o *Value[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		var zero T
		o.V = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.V)
}

// Ptr returns nil for a null value and a pointer to a copy otherwise.
func (o Value[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.V
	return &v
}

// Apply writes the value into dst when present. It reports whether dst was touched.
func (o Value[T]) Apply(dst *T) bool {
	if !o.Set || o.Null {
		return false
	}
	*dst = o.V
	return true
}

// ApplyPtr writes the value (or nil for null) into a nullable dst when present.
func (o Value[T]) ApplyPtr(dst **T) bool {
	if !o.Set {
		return false
	}
	*dst = o.Ptr()
	return true
}
