package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/iammorganparry/neurograph/internal/models"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// recencyColumns maps each table to the column SelectRecent orders by.
// Tables not listed fall back to rowid order.
var recencyColumns = map[string]string{
	TableMemories:     "created_at",
	TableTrajectories: "timestamp",
	TablePatterns:     "updated_at",
	TableEdges:        "updated_at",
	TableAgents:       "last_seen",
	TableCompressed:   "created_at",
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads. An error
// here is the one fatal precondition of the pipeline: the caller should
// report it once and exit.
func Open(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS memories (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  embedding BLOB,
  created_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS trajectories (
  id TEXT PRIMARY KEY,
  state TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL DEFAULT '',
  reward REAL NOT NULL DEFAULT 0,
  timestamp INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trajectories_timestamp ON trajectories(timestamp);

CREATE TABLE IF NOT EXISTS neural_patterns (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  confidence REAL NOT NULL DEFAULT 0,
  usage_count INTEGER NOT NULL DEFAULT 0,
  embedding BLOB,
  created_at INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_patterns_category ON neural_patterns(category);

CREATE TABLE IF NOT EXISTS memory_edges (
  source_id TEXT NOT NULL,
  target_id TEXT NOT NULL,
  edge_type TEXT NOT NULL DEFAULT '',
  weight REAL NOT NULL DEFAULT 0,
  metadata TEXT,
  updated_at INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_id);

CREATE TABLE IF NOT EXISTS agents (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  agent_type TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL DEFAULT 0,
  last_seen INTEGER NOT NULL DEFAULT 0,
  metadata TEXT
);

CREATE TABLE IF NOT EXISTS compressed_patterns (
  id TEXT PRIMARY KEY,
  layer TEXT NOT NULL UNIQUE,
  data BLOB,
  compression_ratio REAL NOT NULL DEFAULT 1.0,
  created_at INTEGER NOT NULL DEFAULT 0,
  metadata TEXT
);

CREATE TABLE IF NOT EXISTS stats (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Count returns the number of rows in a table.
func (s *SQLiteStore) Count(table string) (int, error) {
	if !validIdent(table) {
		return 0, fmt.Errorf("invalid table name: %q", table)
	}
	var count int
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// ListColumns returns the column names of a table via pragma_table_info.
func (s *SQLiteStore) ListColumns(table string) ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	return cols, nil
}

// SelectRecent returns up to limit rows ordered most recent first.
func (s *SQLiteStore) SelectRecent(table string, limit int) ([]models.Row, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	if limit <= 0 {
		limit = 50
	}

	order := "rowid DESC"
	if col, ok := recencyColumns[table]; ok {
		order = col + " DESC"
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ?", table, order), limit)
	if err != nil {
		return nil, fmt.Errorf("select recent %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}

	var result []models.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		r := make(models.Row, len(cols))
		for i, c := range cols {
			r[c] = values[i]
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpsertByKey inserts a row or replaces exactly the given fields when the
// key already exists. The key must name a unique constraint of the table.
// Replaced fields take the new value outright; nothing is accumulated.
func (s *SQLiteStore) UpsertByKey(table string, key models.Row, fields models.Row) error {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name: %q", table)
	}
	if len(key) == 0 {
		return fmt.Errorf("upsert %s: empty key", table)
	}

	keyCols := sortedColumns(key)
	fieldCols := sortedColumns(fields)

	cols := append(append([]string{}, keyCols...), fieldCols...)
	for _, c := range cols {
		if !validIdent(c) {
			return fmt.Errorf("invalid column name: %q", c)
		}
	}

	args := make([]any, 0, len(cols))
	for _, c := range keyCols {
		args = append(args, key[c])
	}
	for _, c := range fieldCols {
		args = append(args, fields[c])
	}

	var sets []string
	for _, c := range fieldCols {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	conflict := fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", strings.Join(keyCols, ", "))
	if len(sets) > 0 {
		conflict = fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s",
			strings.Join(keyCols, ", "), strings.Join(sets, ", "))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		table, strings.Join(cols, ", "), placeholders(len(cols)), conflict)

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Insert stores a new row.
func (s *SQLiteStore) Insert(table string, fields models.Row) error {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name: %q", table)
	}
	if len(fields) == 0 {
		return fmt.Errorf("insert %s: no fields", table)
	}

	cols := sortedColumns(fields)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if !validIdent(c) {
			return fmt.Errorf("invalid column name: %q", c)
		}
		args = append(args, fields[c])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// SetStats transactionally replaces the named counters.
func (s *SQLiteStore) SetStats(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin stats tx: %w", err)
	}
	defer tx.Rollback()

	for _, name := range sortedKeys(values) {
		_, err := tx.Exec(`
			INSERT INTO stats (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value
		`, name, values[name])
		if err != nil {
			return fmt.Errorf("set stat %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats tx: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sortedColumns(r models.Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// validIdent rejects anything that is not a plain SQL identifier before it
// is interpolated into a query.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

var _ Store = (*SQLiteStore)(nil)
