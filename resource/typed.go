package resource

import (
	"fmt"

	"github.com/wippyai/wasm-zmq/errors"
)

// Typed provides type-safe access to the handles of one registered type.
type Typed[T any] struct {
	reg *Registry
	tag TypeTag
}

// NewTyped binds a registered type tag to its Go value type.
func NewTyped[T any](reg *Registry, tag TypeTag) Typed[T] {
	return Typed[T]{reg: reg, tag: tag}
}

// Tag returns the bound type tag.
func (t Typed[T]) Tag() TypeTag { return t.tag }

// Name returns the bound type name.
func (t Typed[T]) Name() string { return t.reg.TypeName(t.tag) }

// Create registers v and returns its handle.
func (t Typed[T]) Create(v T, creator, owner Identity) (Handle, error) {
	return t.reg.CreateHandle(t.tag, v, creator, owner)
}

// Read resolves h to its value.
func (t Typed[T]) Read(h Handle, caller Identity) (T, error) {
	var zero T
	v, err := t.reg.ReadHandle(h, t.tag, caller)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.InvalidHandle(t.Name(), uint32(h), fmt.Sprintf("value is %T", v))
	}
	return typed, nil
}

// Destroy destroys h on behalf of caller. Handles of other types are
// rejected without being touched.
func (t Typed[T]) Destroy(h Handle, caller Identity) error {
	return t.reg.DestroyTyped(h, t.tag, caller)
}

// Len returns the number of live handles of the bound type.
func (t Typed[T]) Len() int {
	return t.reg.Count(t.tag)
}
