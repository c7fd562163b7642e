package models

import (
	"strconv"
)

// Row is a raw record as returned by the store: column name to value.
// Values are whatever the driver produced (int64, float64, string,
// []byte, nil).
type Row map[string]any

// Historical databases drifted on a few column names; decoding accepts
// the known variants instead of failing the whole sweep on a rename.
var (
	typeColumns      = []string{"type", "memory_type", "record_type"}
	timestampColumns = []string{"created_at", "timestamp", "ts"}
	embeddingColumns = []string{"embedding", "vector"}
	usageColumns     = []string{"usage_count", "usage"}
)

// MemoryFromRow decodes a memories row. Missing columns decode to zero
// values; the embedding stays raw for the codec to interpret.
func MemoryFromRow(r Row) MemoryRecord {
	return MemoryRecord{
		ID:           rowString(r, "id"),
		Type:         rowStringAny(r, typeColumns),
		Content:      rowString(r, "content"),
		RawEmbedding: rowAny(r, embeddingColumns),
		CreatedAt:    rowInt64Any(r, timestampColumns),
	}
}

// TrajectoryFromRow decodes a trajectories row.
func TrajectoryFromRow(r Row) Trajectory {
	return Trajectory{
		ID:        rowString(r, "id"),
		State:     rowString(r, "state"),
		Action:    rowString(r, "action"),
		Outcome:   rowString(r, "outcome"),
		Reward:    rowFloat64(r, "reward"),
		Timestamp: rowInt64Any(r, timestampColumns),
	}
}

// PatternFromRow decodes a neural_patterns row.
func PatternFromRow(r Row) NeuralPattern {
	return NeuralPattern{
		ID:           rowString(r, "id"),
		Content:      rowString(r, "content"),
		Category:     rowString(r, "category"),
		Confidence:   rowFloat64(r, "confidence"),
		UsageCount:   int(rowInt64Any(r, usageColumns)),
		RawEmbedding: rowAny(r, embeddingColumns),
		CreatedAt:    rowInt64(r, "created_at"),
		UpdatedAt:    rowInt64(r, "updated_at"),
	}
}

// EdgeFromRow decodes a memory_edges row.
func EdgeFromRow(r Row) Edge {
	return Edge{
		SourceID:  rowString(r, "source_id"),
		TargetID:  rowString(r, "target_id"),
		EdgeType:  rowString(r, "edge_type"),
		Weight:    rowFloat64(r, "weight"),
		Metadata:  rowString(r, "metadata"),
		UpdatedAt: rowInt64(r, "updated_at"),
	}
}

// AgentFromRow decodes an agents row.
func AgentFromRow(r Row) Agent {
	return Agent{
		ID:        rowString(r, "id"),
		Name:      rowString(r, "name"),
		AgentType: rowString(r, "agent_type"),
		Status:    rowString(r, "status"),
		CreatedAt: rowInt64(r, "created_at"),
		LastSeen:  rowInt64(r, "last_seen"),
		Metadata:  rowString(r, "metadata"),
	}
}

// CompressedFromRow decodes a compressed_patterns row.
func CompressedFromRow(r Row) CompressedPattern {
	var data []byte
	if b, ok := r["data"].([]byte); ok {
		data = b
	}
	return CompressedPattern{
		ID:        rowString(r, "id"),
		Layer:     rowString(r, "layer"),
		Data:      data,
		Ratio:     rowFloat64(r, "compression_ratio"),
		CreatedAt: rowInt64(r, "created_at"),
		Metadata:  rowString(r, "metadata"),
	}
}

func rowAny(r Row, names []string) any {
	for _, n := range names {
		if v, ok := r[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

func rowString(r Row, name string) string {
	switch v := r[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func rowStringAny(r Row, names []string) string {
	for _, n := range names {
		if s := rowString(r, n); s != "" {
			return s
		}
	}
	return ""
}

func rowInt64(r Row, name string) int64 {
	switch v := r[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func rowInt64Any(r Row, names []string) int64 {
	for _, n := range names {
		if _, ok := r[n]; ok {
			return rowInt64(r, n)
		}
	}
	return 0
}

func rowFloat64(r Row, name string) float64 {
	switch v := r[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}
