// Package task implements the task list domain: the Task entity, payload
// validation, transactional storage and the HTTP handlers.
package task

import (
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
)

// Task is one to-do item
type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON writes created_at as RFC 3339 with fractional seconds, or null when unset
func (t Task) MarshalJSON() ([]byte, error) {
	var createdAt *string
	if !t.CreatedAt.IsZero() {
		s := t.CreatedAt.UTC().Format(time.RFC3339Nano)
		createdAt = &s
	}
	return core.JSONEncode(struct {
		ID        int64   `json:"id"`
		Title     string  `json:"title"`
		Completed bool    `json:"completed"`
		CreatedAt *string `json:"created_at"`
	}{
		ID:        t.ID,
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: createdAt,
	})
}

// Patch holds the fields an update changes; nil fields are left as they are
type Patch struct {
	Title     *string
	Completed *bool
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Title == nil && p.Completed == nil
}
