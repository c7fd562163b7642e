package graph

import (
	"context"
	"strings"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/similarity"
	"github.com/iammorganparry/neurograph/internal/store"
)

// SemanticConfig carries the similarity thresholds and the fan-out cap
// for the two similarity passes.
type SemanticConfig struct {
	// SameTypeThreshold gates pairs of memories sharing a type.
	SameTypeThreshold float64
	// CrossTypeThreshold gates memory pairs of differing types.
	CrossTypeThreshold float64
	// BridgeThreshold gates memory-to-pattern pairs. Lower than the
	// memory thresholds: bridges connect otherwise-separate clusters.
	BridgeThreshold float64
	// MaxEdgesPerNode caps accepted pairs per node within one pass.
	MaxEdgesPerNode int
}

// SemanticDeriver derives similarity edges between memories, and bridge
// edges between memories and patterns, from their embeddings.
type SemanticDeriver struct {
	store    store.Store
	edges    *EdgeWriter
	codec    *embedding.Codec
	embedder embedding.Embedder
	diags    *diag.Recorder
	cfg      SemanticConfig
}

// NewSemanticDeriver returns a deriver over the given store and edge
// writer. embedder may be nil, in which case records without a stored
// embedding are skipped instead of backfilled.
func NewSemanticDeriver(st store.Store, edges *EdgeWriter, codec *embedding.Codec, embedder embedding.Embedder, diags *diag.Recorder, cfg SemanticConfig) *SemanticDeriver {
	return &SemanticDeriver{
		store:    st,
		edges:    edges,
		codec:    codec,
		embedder: embedder,
		diags:    diags,
		cfg:      cfg,
	}
}

// DeriveMemoryEdges runs the memory similarity pass over the window:
// pairs of same-type memories above the same-type threshold become
// "semantic" edges, cross-type pairs above the lower cross-type
// threshold become "semantic_bridge" edges. Edge weight is the cosine
// score. A non-trivial window producing zero edges is surfaced as an
// anomaly.
func (s *SemanticDeriver) DeriveMemoryEdges(ctx context.Context, records []models.MemoryRecord) int {
	nodes := make([]similarity.Node, 0, len(records))
	for _, rec := range records {
		vec, ok := s.resolveMemoryVector(ctx, rec)
		if !ok {
			continue
		}
		nodes = append(nodes, similarity.Node{ID: rec.ID, Type: rec.Type, Vec: vec})
	}

	pairs := similarity.RankPairs(nodes, func(typeA, typeB string) (float64, bool) {
		if typeA == typeB {
			return s.cfg.SameTypeThreshold, true
		}
		return s.cfg.CrossTypeThreshold, true
	}, s.cfg.MaxEdgesPerNode)

	created := 0
	for _, p := range pairs {
		edgeType := models.EdgeTypeSemantic
		if p.A.Type != p.B.Type {
			edgeType = models.EdgeTypeBridge
		}
		if err := s.edges.Put(p.A.ID, p.B.ID, edgeType, p.Score, nil); err != nil {
			s.diags.Record(diag.KindStoreUnavailable, "semantic", "semantic edge write failed",
				map[string]any{"source": p.A.ID, "target": p.B.ID, "error": err.Error()})
			continue
		}
		created++
	}

	if created == 0 && len(nodes) >= 2 {
		s.diags.Record(diag.KindAnomaly, "semantic", "similarity pass produced no edges",
			map[string]any{"nodes": len(nodes), "threshold": s.cfg.SameTypeThreshold})
	}
	return created
}

// DerivePatternBridges runs the bridge pass: memory-to-pattern pairs
// above the bridge threshold become "semantic_bridge" edges. Memory and
// pattern node types are namespaced so only cross-kind pairs qualify.
func (s *SemanticDeriver) DerivePatternBridges(ctx context.Context, records []models.MemoryRecord, patterns []models.NeuralPattern) int {
	nodes := make([]similarity.Node, 0, len(records)+len(patterns))
	for _, rec := range records {
		vec, ok := s.resolveMemoryVector(ctx, rec)
		if !ok {
			continue
		}
		nodes = append(nodes, similarity.Node{ID: rec.ID, Type: "memory:" + rec.Type, Vec: vec})
	}
	for _, pat := range patterns {
		vec, ok := s.resolvePatternVector(ctx, pat)
		if !ok {
			continue
		}
		nodes = append(nodes, similarity.Node{ID: pat.ID, Type: "pattern:" + pat.Category, Vec: vec})
	}

	pairs := similarity.RankPairs(nodes, func(typeA, typeB string) (float64, bool) {
		aMem := strings.HasPrefix(typeA, "memory:")
		bMem := strings.HasPrefix(typeB, "memory:")
		if aMem == bMem {
			return 0, false
		}
		return s.cfg.BridgeThreshold, true
	}, s.cfg.MaxEdgesPerNode)

	created := 0
	for _, p := range pairs {
		if err := s.edges.Put(p.A.ID, p.B.ID, models.EdgeTypeBridge, p.Score, nil); err != nil {
			s.diags.Record(diag.KindStoreUnavailable, "semantic", "bridge edge write failed",
				map[string]any{"source": p.A.ID, "target": p.B.ID, "error": err.Error()})
			continue
		}
		created++
	}
	return created
}

// resolveMemoryVector decodes the stored embedding, or embeds the
// content and backfills the row when no valid embedding is stored.
func (s *SemanticDeriver) resolveMemoryVector(ctx context.Context, rec models.MemoryRecord) ([]float32, bool) {
	if vec, ok := s.codec.Parse(rec.RawEmbedding); ok {
		return vec, true
	}
	if rec.RawEmbedding != nil {
		s.diags.Record(diag.KindMalformedInput, "semantic", "stored embedding unusable, treating as absent",
			map[string]any{"id": rec.ID, "table": store.TableMemories})
	}
	return s.backfill(ctx, store.TableMemories, rec.ID, rec.Content)
}

func (s *SemanticDeriver) resolvePatternVector(ctx context.Context, pat models.NeuralPattern) ([]float32, bool) {
	if vec, ok := s.codec.Parse(pat.RawEmbedding); ok {
		return vec, true
	}
	if pat.RawEmbedding != nil {
		s.diags.Record(diag.KindMalformedInput, "semantic", "stored embedding unusable, treating as absent",
			map[string]any{"id": pat.ID, "table": store.TablePatterns})
	}
	return s.backfill(ctx, store.TablePatterns, pat.ID, pat.Content)
}

func (s *SemanticDeriver) backfill(ctx context.Context, table, id, content string) ([]float32, bool) {
	if s.embedder == nil || id == "" || content == "" {
		return nil, false
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.diags.Record(diag.KindMalformedInput, "semantic", "embedding generation failed",
			map[string]any{"id": id, "error": err.Error()})
		return nil, false
	}
	if v := s.codec.Validate(vec); !v.Valid {
		s.diags.Record(diag.KindMalformedInput, "semantic", "generated embedding invalid",
			map[string]any{"id": id, "reason": v.Reason})
		return nil, false
	}

	err = s.store.UpsertByKey(table, models.Row{"id": id}, models.Row{"embedding": s.codec.Serialize(vec)})
	if err != nil {
		// Backfill is best effort: the in-memory vector still serves this
		// sweep even when persisting it fails.
		s.diags.Record(diag.KindStoreUnavailable, "semantic", "embedding backfill write failed",
			map[string]any{"id": id, "table": table, "error": err.Error()})
	}
	return vec, true
}
