package db

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tasks table and its index if they are absent.
// Safe to call on every start.
func EnsureSchema(ctx context.Context, pool *Pool) error {
	if err := pool.check(ctx); err != nil {
		return err
	}
	dialect := pool.Dialect()

	for _, stmt := range []string{dialect.CreateTasks, dialect.CreateTasksIndex} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema (%s): %w", dialect.Name, err)
		}
	}
	return nil
}
