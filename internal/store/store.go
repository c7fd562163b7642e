// Package store provides the narrow storage contract the consolidation
// pipeline writes through, implemented against SQLite and against an
// in-memory fake for tests.
package store

import (
	"github.com/iammorganparry/neurograph/internal/models"
)

// Table names used by the pipeline.
const (
	TableMemories     = "memories"
	TableTrajectories = "trajectories"
	TablePatterns     = "neural_patterns"
	TableEdges        = "memory_edges"
	TableAgents       = "agents"
	TableCompressed   = "compressed_patterns"
	TableStats        = "stats"
)

// CountedTables lists every table the stats sync reports a count for.
var CountedTables = []string{
	TableMemories,
	TableTrajectories,
	TablePatterns,
	TableEdges,
	TableAgents,
	TableCompressed,
}

// Store is the contract between the pipeline and whatever holds the data.
// Keys for UpsertByKey must name a unique constraint of the table
// (agents: name; neural_patterns: id; memory_edges: source_id+target_id;
// compressed_patterns: layer; memories: id).
type Store interface {
	// Count returns the number of rows in a table.
	Count(table string) (int, error)

	// ListColumns returns the column names of a table, letting callers
	// read databases whose schema drifted across minor versions.
	ListColumns(table string) ([]string, error)

	// SelectRecent returns up to limit rows ordered most recent first.
	SelectRecent(table string, limit int) ([]models.Row, error)

	// UpsertByKey inserts a row or, when the key already exists, replaces
	// exactly the given fields. Fields not listed keep their stored value.
	UpsertByKey(table string, key models.Row, fields models.Row) error

	// Insert stores a new row.
	Insert(table string, fields models.Row) error

	// SetStats transactionally replaces the named counters. Either every
	// value lands or none do.
	SetStats(values map[string]string) error

	// Close releases any resources held by the store.
	Close() error
}
