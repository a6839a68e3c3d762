package db

import (
	"context"
	"database/sql"
	"time"
)

// PoolConfig configures the database connection pool
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// DriverName is one of the registered dialects: "sqlite3", "postgres", "pgx"
	DriverName string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused (0 = forever)
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle (0 = forever)
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the connectivity check done by NewPool
	PingTimeout time.Duration
}

// DefaultPoolConfig returns defaults for the given driver.
// SQLite gets a single connection: one writer, and ":memory:" databases live per connection.
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	config := PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
	if driverName == DriverSQLite {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
		config.ConnMaxLifetime = 0
		config.ConnMaxIdleTime = 0
	}
	return config
}

// Pool represents a database connection pool
type Pool struct {
	db      *sql.DB
	config  PoolConfig
	dialect Dialect
}

// NewPool opens and verifies a connection pool
// Fail-fast: Validates configuration before creating pool
func NewPool(ctx context.Context, config PoolConfig) (*Pool, error) {
	if config.DSN == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	}
	if config.DriverName == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DriverName cannot be empty"}
	}
	dialect, ok := LookupDialect(config.DriverName)
	if !ok {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "unsupported driver " + config.DriverName}
	}
	if config.MaxOpenConns <= 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	}
	if config.MaxIdleConns < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	}
	if config.ConnMaxLifetime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	}
	if config.ConnMaxIdleTime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Pool{
		db:      db,
		config:  config,
		dialect: dialect,
	}, nil
}

// Error represents a database error (fail-fast)
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error by Code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrInvalidState is returned when the pool is nil or closed
	ErrInvalidState = &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	// ErrInvalidInput is returned for nil contexts and empty statements
	ErrInvalidInput = &Error{Code: "INVALID_INPUT", Message: "invalid input"}
)

// DB returns the underlying *sql.DB
// Fail-fast: Panics if pool is nil (invalid state)
func (p *Pool) DB() *sql.DB {
	if p == nil {
		panic("pool cannot be nil")
	}
	if p.db == nil {
		panic("pool.db cannot be nil - pool not initialized")
	}
	return p.db
}

// Dialect returns the SQL dialect of the pool's driver
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Config returns the configuration the pool was opened with
func (p *Pool) Config() PoolConfig {
	return p.config
}

// Close closes the connection pool
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	return p.db.Close()
}

// Ping tests the connection
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// Query executes a query that returns rows
func (p *Pool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return p.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row
// Fail-fast: Panics on invalid state, like DB()
func (p *Pool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if err := p.check(ctx); err != nil {
		panic(err.Error())
	}
	if query == "" {
		panic("query cannot be empty")
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// Exec executes a command outside of a transaction
func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return p.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with options
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	return p.db.BeginTx(ctx, opts)
}

func (p *Pool) check(ctx context.Context) error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return nil
}
