package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iammorganparry/neurograph/internal/models"
)

// memSchemas mirrors the SQLite schema so the fake answers ListColumns
// and orders SelectRecent the same way.
var memSchemas = map[string][]string{
	TableMemories:     {"id", "type", "content", "embedding", "created_at"},
	TableTrajectories: {"id", "state", "action", "outcome", "reward", "timestamp"},
	TablePatterns:     {"id", "content", "category", "confidence", "usage_count", "embedding", "created_at", "updated_at"},
	TableEdges:        {"source_id", "target_id", "edge_type", "weight", "metadata", "updated_at"},
	TableAgents:       {"id", "name", "agent_type", "status", "created_at", "last_seen", "metadata"},
	TableCompressed:   {"id", "layer", "data", "compression_ratio", "created_at", "metadata"},
	TableStats:        {"name", "value"},
}

// uniqueKeys lists the unique constraints Insert enforces per table.
var uniqueKeys = map[string][][]string{
	TableMemories:     {{"id"}},
	TableTrajectories: {{"id"}},
	TablePatterns:     {{"id"}},
	TableEdges:        {{"source_id", "target_id"}},
	TableAgents:       {{"id"}, {"name"}},
	TableCompressed:   {{"id"}, {"layer"}},
	TableStats:        {{"name"}},
}

// MemStore is an in-memory Store used by tests and available as a
// throwaway backend. It is safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	tables map[string][]models.Row
	seq    int64

	// Fail maps a table name to an error every operation on that table
	// returns, simulating a missing table or unavailable store.
	Fail map[string]error
}

// NewMemStore returns an empty in-memory store with the standard schema.
func NewMemStore() *MemStore {
	tables := make(map[string][]models.Row, len(memSchemas))
	for t := range memSchemas {
		tables[t] = nil
	}
	return &MemStore{tables: tables, Fail: make(map[string]error)}
}

func (s *MemStore) check(table string) error {
	if err, ok := s.Fail[table]; ok {
		return err
	}
	if _, ok := s.tables[table]; !ok {
		return fmt.Errorf("no such table: %s", table)
	}
	return nil
}

// Count returns the number of rows in a table.
func (s *MemStore) Count(table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(table); err != nil {
		return 0, err
	}
	return len(s.tables[table]), nil
}

// ListColumns returns the column names of a table.
func (s *MemStore) ListColumns(table string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(table); err != nil {
		return nil, err
	}
	return append([]string{}, memSchemas[table]...), nil
}

// SelectRecent returns up to limit rows ordered most recent first.
func (s *MemStore) SelectRecent(table string, limit int) ([]models.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows := append([]models.Row{}, s.tables[table]...)
	col, ordered := recencyColumns[table]
	sort.SliceStable(rows, func(i, j int) bool {
		if ordered {
			ri, rj := rowOrder(rows[i], col), rowOrder(rows[j], col)
			if ri != rj {
				return ri > rj
			}
		}
		return rowOrder(rows[i], "_seq") > rowOrder(rows[j], "_seq")
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

// UpsertByKey inserts a row or replaces exactly the given fields on the
// row matching the key.
func (s *MemStore) UpsertByKey(table string, key models.Row, fields models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(table); err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("upsert %s: empty key", table)
	}

	for _, r := range s.tables[table] {
		if rowMatches(r, key) {
			for c, v := range fields {
				r[c] = v
			}
			return nil
		}
	}

	row := make(models.Row, len(key)+len(fields)+1)
	for c, v := range key {
		row[c] = v
	}
	for c, v := range fields {
		row[c] = v
	}
	s.seq++
	row["_seq"] = s.seq
	s.tables[table] = append(s.tables[table], row)
	return nil
}

// Insert stores a new row, enforcing the table's unique constraints.
func (s *MemStore) Insert(table string, fields models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("insert %s: no fields", table)
	}

	for _, keyCols := range uniqueKeys[table] {
		key := make(models.Row, len(keyCols))
		complete := true
		for _, c := range keyCols {
			v, ok := fields[c]
			if !ok {
				complete = false
				break
			}
			key[c] = v
		}
		if !complete {
			continue
		}
		for _, r := range s.tables[table] {
			if rowMatches(r, key) {
				return fmt.Errorf("insert %s: unique constraint violated on %v", table, keyCols)
			}
		}
	}

	row := cloneRow(fields)
	s.seq++
	row["_seq"] = s.seq
	s.tables[table] = append(s.tables[table], row)
	return nil
}

// SetStats replaces the named counters.
func (s *MemStore) SetStats(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(TableStats); err != nil {
		return err
	}

next:
	for name, value := range values {
		for _, r := range s.tables[TableStats] {
			if r["name"] == name {
				r["value"] = value
				continue next
			}
		}
		s.seq++
		s.tables[TableStats] = append(s.tables[TableStats], models.Row{
			"name": name, "value": value, "_seq": s.seq,
		})
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

func rowMatches(r models.Row, key models.Row) bool {
	for c, v := range key {
		if r[c] != v {
			return false
		}
	}
	return true
}

func rowOrder(r models.Row, col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func cloneRow(r models.Row) models.Row {
	out := make(models.Row, len(r))
	for c, v := range r {
		if c == "_seq" {
			continue
		}
		out[c] = v
	}
	return out
}

var _ Store = (*MemStore)(nil)
