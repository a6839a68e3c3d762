package failfast

import (
	"fmt"
	"reflect"
)

// NotNil panics if v is nil, including typed nil pointers, funcs, maps and channels
// stored in an interface.
func NotNil(v interface{}, name string) {
	if v == nil {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Errorf("fail-fast: %s is nil", name))
		}
	}
}
