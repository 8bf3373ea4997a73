// Package reflector derives stable type names, used as protocol keys.
package reflector

import (
	"reflect"
	"sync"
)

var names sync.Map // reflect.Type -> string

// NameOf returns the fully qualified name of x's dynamic type ("pkg/path.Type").
// Pointer types resolve to their element type.
func NameOf(x any) string {
	return NameForType(reflect.TypeOf(x))
}

// NameFor returns the fully qualified name of T.
func NameFor[T any]() string {
	return NameForType(reflect.TypeFor[T]())
}

func NameForType(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := names.Load(t); ok {
		return n.(string)
	}
	n := t.PkgPath() + "." + t.Name()
	names.Store(t, n)
	return n
}
