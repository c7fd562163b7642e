// Package graph derives edges between knowledge-graph nodes: rule-based
// edges from co-occurrence and similarity-based edges from embeddings.
package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

// Synthetic node id prefixes. Memory and pattern nodes use their row ids
// directly; files and trajectories get namespaced ids.
func FileNode(path string) string     { return "file:" + path }
func TrajectoryNode(id string) string { return "trajectory:" + id }

// EdgeWriter upserts edges with replace semantics: the edge is keyed by
// (source, target) only, so a later derivation between the same pair
// replaces the earlier type, weight, and metadata. Weights are never
// summed, which bounds growth across repeated sweeps.
type EdgeWriter struct {
	store store.Store
	now   func() int64
}

// NewEdgeWriter returns a writer over the given store.
func NewEdgeWriter(st store.Store) *EdgeWriter {
	return &EdgeWriter{store: st, now: func() int64 { return time.Now().Unix() }}
}

// Put writes or replaces the edge between source and target.
func (w *EdgeWriter) Put(source, target, edgeType string, weight float64, metadata map[string]any) error {
	if source == "" || target == "" {
		return fmt.Errorf("edge requires source and target, got (%q, %q)", source, target)
	}

	var metaJSON any
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal edge metadata: %w", err)
		}
		metaJSON = string(b)
	}

	err := w.store.UpsertByKey(store.TableEdges,
		models.Row{"source_id": source, "target_id": target},
		models.Row{
			"edge_type":  edgeType,
			"weight":     weight,
			"metadata":   metaJSON,
			"updated_at": w.now(),
		})
	if err != nil {
		return fmt.Errorf("put edge %s->%s: %w", source, target, err)
	}
	return nil
}
