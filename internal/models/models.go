// Package models defines the domain entities of the knowledge graph and
// the schema-tolerant decoding from raw store rows.
package models

// MemoryRecord is a single logged interaction. Records are created
// externally per interaction and are immutable here except for embedding
// backfill.
type MemoryRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
	// RawEmbedding holds whatever encoding the store returned (packed
	// bytes, numeric array, JSON string). Only the embedding codec may
	// interpret it; everything downstream sees a decoded vector or absent.
	RawEmbedding any   `json:"-"`
	CreatedAt    int64 `json:"createdAt"`
}

// Trajectory is a recorded state→action→outcome→reward sequence from the
// reinforcement-learning subsystem. Append-only and read-only here.
type Trajectory struct {
	ID        string  `json:"id"`
	State     string  `json:"state"`
	Action    string  `json:"action"`
	Outcome   string  `json:"outcome"`
	Reward    float64 `json:"reward"`
	Timestamp int64   `json:"timestamp"`
}

// NeuralPattern is a recurring signal extracted from memory records.
// IDs are derived deterministically (e.g. "filetype:.ts") so rediscovery
// always upserts the same row.
type NeuralPattern struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	UsageCount   int     `json:"usageCount"`
	RawEmbedding any     `json:"-"`
	CreatedAt    int64   `json:"createdAt"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// Edge is a derived graph edge, keyed uniquely by (source, target), not
// by type. A later derivation between the same pair replaces the earlier
// weight and metadata even across rule types.
type Edge struct {
	SourceID  string  `json:"sourceId"`
	TargetID  string  `json:"targetId"`
	EdgeType  string  `json:"edgeType"`
	Weight    float64 `json:"weight"`
	Metadata  string  `json:"metadata,omitempty"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Agent is a collaborating agent, upserted by its unique name.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AgentType string `json:"agentType"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	LastSeen  int64  `json:"lastSeen"`
	Metadata  string `json:"metadata,omitempty"`
}

// CompressedPattern is a long-term compacted representation of a neural
// pattern, keyed by its unique layer id ("neural-" + pattern id).
type CompressedPattern struct {
	ID        string  `json:"id"`
	Layer     string  `json:"layer"`
	Data      []byte  `json:"-"`
	Ratio     float64 `json:"compressionRatio"`
	CreatedAt int64   `json:"createdAt"`
	Metadata  string  `json:"metadata,omitempty"`
}

// Edge type names written by the derivers.
const (
	EdgeTypeTemporal      = "temporal"
	EdgeTypeFileCoEdit    = "file_coedit"
	EdgeTypeTrajectory    = "trajectory"
	EdgeTypePatternSource = "pattern_source"
	EdgeTypeSemantic      = "semantic"
	EdgeTypeBridge        = "semantic_bridge"
)

// Pattern categories produced by the extractor.
const (
	CategoryFileType  = "file_type"
	CategoryDirectory = "directory"
	CategoryComponent = "component"
)
