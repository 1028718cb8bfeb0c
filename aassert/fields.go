// Package aassert has assertions that go beyond stretchr/testify/assert.
// They follow the conventions of assert: they take a *testing.T,
// return whether they passed, and accept optional msgAndArgs.
package aassert

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

// NumFields asserts that the struct object has expected exported fields.
// Fields of nested structs are counted as well, including the field of the struct itself.
//
// Use it to detect new fields in a struct that is mapped by hand,
// e.g. a configuration that needs a default for every field.
func NumFields(t *testing.T, expected int, object any, msgAndArgs ...any) bool {
	t.Helper()

	if object == nil {
		return assert.Fail(t, "invalid argument, it has to be a struct", msgAndArgs...)
	}

	v := reflect.ValueOf(object)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return assert.Fail(t, "invalid argument, it has to be a struct", msgAndArgs...)
	}

	if n := numFields(v.Type()); n != expected {
		t.Logf("The exported fields of %s changed, check all code mapping it by hand and update the expected count.", v.Type())

		return assert.Fail(t, fmt.Sprintf("struct changed, it has: %d fields, expected: %d", n, expected), msgAndArgs...)
	}

	return true
}

func numFields(typ reflect.Type) int {
	var n int

	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		n++

		ft := field.Type
		for ft.Kind() == reflect.Ptr || ft.Kind() == reflect.Slice || ft.Kind() == reflect.Map {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct {
			n += numFields(ft)
		}
	}

	return n
}
