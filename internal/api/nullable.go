package api

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// nullable is an optional PATCH field. An absent key leaves the record unchanged,
// an explicit null clears it.
type nullable[T any] struct {
	set   bool
	value *T
}

func (n *nullable[T]) UnmarshalJSON(data []byte) error {
	n.set = true
	if string(data) == "null" {
		n.value = nil
		return nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.value = &v
	return nil
}

// ptr returns the submitted value, nil when the key was absent or null.
func (n nullable[T]) ptr() *T {
	return n.value
}

// assign copies the field onto dst when the key was present.
func (n nullable[T]) assign(dst **T) {
	if n.set {
		*dst = n.value
	}
}

// validationValue hands validators the pointer so omitempty still checks a submitted zero.
func (n nullable[T]) validationValue() any {
	if n.value == nil {
		return nil
	}
	return n.value
}

// registerNullableTypes lets struct tags on nullable fields validate the wrapped value.
// Absent and null values are skipped by omitempty.
func registerNullableTypes(v *validator.Validate) {
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if n, ok := field.Interface().(interface{ validationValue() any }); ok {
			return n.validationValue()
		}
		return nil
	}, nullable[string]{}, nullable[int64]{}, nullable[uuid.UUID]{}, nullable[time.Time]{})
}
