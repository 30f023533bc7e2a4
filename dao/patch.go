package dao

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Patcher applies a partial update to a loaded document.
type Patcher[T any] interface {
	Apply(doc *T) error
}

// PatchFunc adapts a function to Patcher.
type PatchFunc[T any] func(doc *T) error

// Apply implements Patcher.
func (f PatchFunc[T]) Apply(doc *T) error {
	return f(doc)
}

type mergePatch[T any] struct {
	raw []byte
}

// MergeJSON returns a Patcher that decodes raw over the loaded document, so
// fields absent from raw keep their stored value. Unknown fields are rejected.
func MergeJSON[T any](raw []byte) Patcher[T] {
	return mergePatch[T]{raw: raw}
}

func (p mergePatch[T]) Apply(doc *T) error {
	dec := json.NewDecoder(bytes.NewReader(p.raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(doc); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	return nil
}
