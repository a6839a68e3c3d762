package failfast

import (
	"strings"
	"testing"
)

func expectPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic, got none")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("Expected error type, got: %T", r)
		}
		if !strings.Contains(err.Error(), want) {
			t.Errorf("panic = %q, want it to contain %q", err.Error(), want)
		}
	}()
	fn()
}

func TestIf(t *testing.T) {
	t.Run("condition true", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		If(true, "should not panic")
	})

	t.Run("condition false", func(t *testing.T) {
		expectPanic(t, "limit 3 exceeded", func() {
			If(false, "limit %d exceeded", 3)
		})
	})
}

func TestNotNil(t *testing.T) {
	var nilPtr *int
	var nilFunc func()
	var nilMap map[string]int

	tests := []struct {
		name string
		v    interface{}
	}{
		{"untyped nil", nil},
		{"typed nil pointer", nilPtr},
		{"nil func", nilFunc},
		{"nil map", nilMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectPanic(t, "store is nil", func() {
				NotNil(tt.v, "store")
			})
		})
	}

	t.Run("non-nil values", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		x := 1
		NotNil(&x, "ptr")
		NotNil(func() {}, "func")
		NotNil(0, "zero int")
	})
}
