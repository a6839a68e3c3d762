package db

import (
	"sort"

	// Registered database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted by PoolConfig.DriverName
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Dialect holds the statements that differ between drivers.
// DML uses $N placeholders everywhere; all three drivers accept them.
type Dialect struct {
	Name string

	// CreateTasks creates the tasks table if it does not exist
	CreateTasks string

	// CreateTasksIndex creates the listing index if it does not exist
	CreateTasksIndex string
}

const sqliteTasks = `CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL CHECK (length(title) BETWEEN 1 AND 200),
	completed BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
)`

const postgresTasks = `CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL CHECK (char_length(title) BETWEEN 1 AND 200),
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
)`

const tasksIndex = `CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at DESC, id DESC)`

var dialects = map[string]Dialect{
	DriverSQLite: {
		Name:             DriverSQLite,
		CreateTasks:      sqliteTasks,
		CreateTasksIndex: tasksIndex,
	},
	DriverPostgres: {
		Name:             DriverPostgres,
		CreateTasks:      postgresTasks,
		CreateTasksIndex: tasksIndex,
	},
	DriverPgx: {
		Name:             DriverPgx,
		CreateTasks:      postgresTasks,
		CreateTasksIndex: tasksIndex,
	},
}

// LookupDialect returns the dialect registered for driver
func LookupDialect(driver string) (Dialect, bool) {
	d, ok := dialects[driver]
	return d, ok
}

// Drivers lists the supported driver names
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
