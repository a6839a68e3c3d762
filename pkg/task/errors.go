package task

import "errors"

// ErrNotFound is returned when no task has the requested id
var ErrNotFound = errors.New("task not found")

// StorageError wraps a driver failure with the operation that hit it
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "task " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a request payload before storage is touched
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
