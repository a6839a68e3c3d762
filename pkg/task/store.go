package task

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fluxorio/tasklist/pkg/core/failfast"
	"github.com/fluxorio/tasklist/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	insertTaskSQL  = `INSERT INTO tasks (title, completed, created_at) VALUES ($1, $2, $3) RETURNING id`
	selectTasksSQL = `SELECT id, title, completed, created_at FROM tasks ORDER BY created_at DESC, id DESC`
	selectTaskSQL  = `SELECT id, title, completed, created_at FROM tasks WHERE id = $1`
	latestStampSQL = `SELECT created_at FROM tasks ORDER BY created_at DESC LIMIT 1`
	updateTaskSQL  = `UPDATE tasks SET title = $1, completed = $2 WHERE id = $3`
	deleteTaskSQL  = `DELETE FROM tasks WHERE id = $1`
	countTasksSQL  = `SELECT COUNT(*) FROM tasks`
)

// Operation outcomes reported to an OperationRecorder
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// OperationRecorder receives the outcome and latency of every store operation
type OperationRecorder interface {
	RecordTaskOperation(operation, outcome string, duration time.Duration)
}

// Store persists tasks in the tasks table
type Store struct {
	pool     *db.Pool
	now      func() time.Time
	tracer   trace.Tracer
	recorder OperationRecorder
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithClock overrides the clock used for created_at
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracerProvider enables a span per store operation
func WithTracerProvider(tp trace.TracerProvider) StoreOption {
	return func(s *Store) {
		if tp != nil {
			s.tracer = tp.Tracer("github.com/fluxorio/tasklist/pkg/task")
		}
	}
}

// WithRecorder reports operation outcomes, typically to Prometheus
func WithRecorder(r OperationRecorder) StoreOption {
	return func(s *Store) {
		s.recorder = r
	}
}

// NewStore creates a store on pool.
// Fail-fast: panics if pool is nil.
func NewStore(pool *db.Pool, opts ...StoreOption) *Store {
	failfast.NotNil(pool, "pool")

	s := &Store{
		pool:   pool,
		now:    time.Now,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new, uncompleted task and returns the persisted record.
// created_at never goes below the newest stored stamp, so a clock stepping back keeps insertion order.
func (s *Store) Create(ctx context.Context, title string) (Task, error) {
	task := Task{Title: strings.TrimSpace(title)}

	err := s.run(ctx, "create", nil, func(ctx context.Context) error {
		return db.WithTx(ctx, s.pool, func(tx *sql.Tx) error {
			stamp, err := s.nextStamp(ctx, tx)
			if err != nil {
				return err
			}
			task.CreatedAt = stamp
			return tx.QueryRowContext(ctx, insertTaskSQL, task.Title, task.Completed, task.CreatedAt).Scan(&task.ID)
		})
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// nextStamp returns now, or 1µs past the newest stored created_at when the clock is behind it.
// TIMESTAMPTZ keeps microseconds; truncate so Create and Get agree on every driver.
func (s *Store) nextStamp(ctx context.Context, tx *sql.Tx) (time.Time, error) {
	now := s.now().UTC().Truncate(time.Microsecond)

	var latest time.Time
	err := tx.QueryRowContext(ctx, latestStampSQL).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return now, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if floor := latest.UTC().Truncate(time.Microsecond).Add(time.Microsecond); now.Before(floor) {
		return floor, nil
	}
	return now, nil
}

// List returns every task, newest first; ties on created_at go to the higher id
func (s *Store) List(ctx context.Context) ([]Task, error) {
	tasks := make([]Task, 0)

	err := s.run(ctx, "list", nil, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, selectTasksSQL)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Get returns the task with id, or ErrNotFound
func (s *Store) Get(ctx context.Context, id int64) (Task, error) {
	var task Task

	err := s.run(ctx, "get", idAttrs(id), func(ctx context.Context) error {
		var err error
		task, err = scanTask(s.pool.DB().QueryRowContext(ctx, selectTaskSQL, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Update applies the fields present in patch and returns the updated record.
// Nothing is written when id does not exist.
func (s *Store) Update(ctx context.Context, id int64, patch Patch) (Task, error) {
	var task Task

	err := s.run(ctx, "update", idAttrs(id), func(ctx context.Context) error {
		return db.WithTx(ctx, s.pool, func(tx *sql.Tx) error {
			current, err := scanTask(tx.QueryRowContext(ctx, selectTaskSQL, id))
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			if patch.Title != nil {
				current.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Completed != nil {
				current.Completed = *patch.Completed
			}

			if _, err := tx.ExecContext(ctx, updateTaskSQL, current.Title, current.Completed, id); err != nil {
				return err
			}
			task = current
			return nil
		})
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Delete removes the task with id, or returns ErrNotFound
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.run(ctx, "delete", idAttrs(id), func(ctx context.Context) error {
		return db.WithTx(ctx, s.pool, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, deleteTaskSQL, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

// Count returns the number of stored tasks
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, "count", nil, func(ctx context.Context) error {
		return s.pool.DB().QueryRowContext(ctx, countTasksSQL).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// run wraps one store operation in a span, records its outcome and
// converts driver failures into *StorageError
func (s *Store) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	start := time.Now()

	spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	spanAttrs = append(spanAttrs,
		attribute.String("db.system", s.pool.Dialect().Name),
		attribute.String("db.operation", op),
	)
	spanAttrs = append(spanAttrs, attrs...)

	ctx, span := s.tracer.Start(ctx, "task."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(spanAttrs...),
	)
	defer span.End()

	err := fn(ctx)
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = OutcomeNotFound
		err = ErrNotFound
	default:
		outcome = OutcomeError
		err = &StorageError{Op: op, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}

	if s.recorder != nil {
		s.recorder.RecordTaskOperation(op, outcome, time.Since(start))
	}
	return err
}

func idAttrs(id int64) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Int64("task.id", id)}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (Task, error) {
	var task Task
	if err := row.Scan(&task.ID, &task.Title, &task.Completed, &task.CreatedAt); err != nil {
		return Task{}, err
	}
	return task, nil
}
