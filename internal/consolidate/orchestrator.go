// Package consolidate runs the sweep that keeps the knowledge graph
// consistent: agent registration, edge derivation, pattern extraction,
// compression, and stats synchronization in a fixed idempotent sequence.
package consolidate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iammorganparry/neurograph/internal/compress"
	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/graph"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/patterns"
	"github.com/iammorganparry/neurograph/internal/store"
)

// SystemAgentName is the synthetic agent every full sweep registers.
const SystemAgentName = "neural-consolidator"

// Options bounds the windows each sweep step scans. Zero values take the
// documented defaults.
type Options struct {
	TemporalWindow      int           // records linked by the temporal rule, default 20
	SemanticWindow      int           // records scanned by the similarity pass, default 100
	PatternWindow       int           // records scanned by the pattern detectors, default 100
	TrajectoryWindow    int           // trajectories scanned per sweep, default 50
	TrajectoryTolerance time.Duration // timestamp match window, default 60s
	CoEditLinks         int           // records linked per file edit, default 5
	PatternLinks        int           // source records linked per new pattern, default 5
}

func (o Options) withDefaults() Options {
	if o.TemporalWindow <= 0 {
		o.TemporalWindow = 20
	}
	if o.SemanticWindow <= 0 {
		o.SemanticWindow = 100
	}
	if o.PatternWindow <= 0 {
		o.PatternWindow = 100
	}
	if o.TrajectoryWindow <= 0 {
		o.TrajectoryWindow = 50
	}
	if o.TrajectoryTolerance <= 0 {
		o.TrajectoryTolerance = 60 * time.Second
	}
	if o.CoEditLinks <= 0 {
		o.CoEditLinks = 5
	}
	if o.PatternLinks <= 0 {
		o.PatternLinks = 5
	}
	return o
}

// Result summarizes one sweep or trigger invocation.
type Result struct {
	AgentsTouched   int          `json:"agents_touched"`
	EdgesCreated    int          `json:"edges_created"`
	PatternsCreated int          `json:"patterns_created"`
	StatsSynced     bool         `json:"stats_synced"`
	Diagnostics     []diag.Event `json:"diagnostics,omitempty"`
}

// Orchestrator wires the derivers, extractor, and bridge into the sweep
// sequence. Every step failure is recovered at step level with zero
// effect for that step; the sweep always finishes with a stats update
// reflecting true current state.
type Orchestrator struct {
	store  store.Store
	codec  *embedding.Codec
	det    *graph.DeterministicDeriver
	sem    *graph.SemanticDeriver
	ext    *patterns.Extractor
	bridge *compress.Bridge
	diags  *diag.Recorder
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// New assembles an orchestrator from its components.
func New(st store.Store, codec *embedding.Codec, det *graph.DeterministicDeriver, sem *graph.SemanticDeriver, ext *patterns.Extractor, bridge *compress.Bridge, diags *diag.Recorder, logger *slog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		store:  st,
		codec:  codec,
		det:    det,
		sem:    sem,
		ext:    ext,
		bridge: bridge,
		diags:  diags,
		logger: logger,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// Consolidate runs the full sweep: register the system agent, derive
// deterministic edges, derive semantic edges, extract patterns, mirror
// patterns into compressed storage, then synchronize stats. Re-running
// with unchanged data is a no-op beyond the sweep counters.
func (o *Orchestrator) Consolidate(ctx context.Context) Result {
	var res Result
	start := o.now()

	if o.ensureAgent(SystemAgentName, "system") {
		res.AgentsTouched++
	}

	records := o.recentMemories(o.opts.TemporalWindow)
	res.EdgesCreated += o.det.Temporal(records)

	trajectories := o.recentTrajectories(o.opts.TrajectoryWindow)
	res.EdgesCreated += o.det.TrajectoryLinks(trajectories, records, o.opts.TrajectoryTolerance)

	semRecords := o.recentMemories(o.opts.SemanticWindow)
	res.EdgesCreated += o.sem.DeriveMemoryEdges(ctx, semRecords)

	for _, up := range o.extractPatterns(ctx, o.opts.PatternWindow) {
		if up.New {
			res.PatternsCreated++
			res.EdgesCreated += o.det.PatternEdges(up.ID, up.Contributing, o.opts.PatternLinks)
		}
	}

	// Bridges run after extraction so patterns detected this sweep are
	// linked this sweep, keeping a repeat run a no-op.
	res.EdgesCreated += o.sem.DerivePatternBridges(ctx, semRecords, o.recentPatterns(o.opts.SemanticWindow))

	o.syncCompressed(ctx)

	res.StatsSynced = o.syncStats()
	res.Diagnostics = o.diags.Drain()

	o.logger.Info("consolidation sweep finished",
		"agents_touched", res.AgentsTouched,
		"edges_created", res.EdgesCreated,
		"patterns_created", res.PatternsCreated,
		"stats_synced", res.StatsSynced,
		"duration_ms", o.now().Sub(start).Milliseconds())
	return res
}

// ensureAgent registers or touches an agent by unique name, bumping its
// session count.
func (o *Orchestrator) ensureAgent(name, agentType string) bool {
	now := o.now().Unix()
	sessionCount := 1
	id := uuid.New().String()
	createdAt := now

	rows, err := o.store.SelectRecent(store.TableAgents, 100)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "agent registration skipped",
			map[string]any{"agent": name, "error": err.Error()})
		return false
	}
	for _, row := range rows {
		agent := models.AgentFromRow(row)
		if agent.Name != name {
			continue
		}
		// Touching an existing agent must not rewrite its creation time.
		id = agent.ID
		createdAt = agent.CreatedAt
		var meta struct {
			SessionCount int `json:"session_count"`
		}
		if agent.Metadata != "" {
			_ = json.Unmarshal([]byte(agent.Metadata), &meta)
		}
		sessionCount = meta.SessionCount + 1
		break
	}

	metaJSON, _ := json.Marshal(map[string]any{"session_count": sessionCount})
	err = o.store.UpsertByKey(store.TableAgents,
		models.Row{"name": name},
		models.Row{
			"id":         id,
			"agent_type": agentType,
			"status":     "active",
			"created_at": createdAt,
			"last_seen":  now,
			"metadata":   string(metaJSON),
		})
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "agent upsert failed",
			map[string]any{"agent": name, "error": err.Error()})
		return false
	}
	return true
}

// syncCompressed mirrors patterns into compressed storage. The count
// lands in stats rather than the trigger result.
func (o *Orchestrator) syncCompressed(ctx context.Context) {
	if o.bridge == nil {
		return
	}
	created, err := o.bridge.Sync(ctx)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "compression sync skipped",
			map[string]any{"error": err.Error()})
		return
	}
	if created > 0 {
		o.logger.Info("patterns mirrored to compressed storage", "created", created)
	}
}

func (o *Orchestrator) extractPatterns(ctx context.Context, window int) []patterns.Upserted {
	records := o.recentMemories(window)
	if len(records) == 0 {
		return nil
	}
	upserted, err := o.ext.Extract(ctx, records)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "pattern extraction skipped",
			map[string]any{"error": err.Error()})
		return nil
	}
	return upserted
}

// syncStats recomputes and transactionally persists the aggregate
// counters: per-table counts, the embedding dimension inferred from a
// sample row, the monotonic consolidation counter, and the last
// consolidation timestamp.
func (o *Orchestrator) syncStats() bool {
	values := make(map[string]string)

	for _, table := range store.CountedTables {
		count, err := o.store.Count(table)
		if err != nil {
			o.diags.Record(diag.KindStoreUnavailable, "consolidate", "table count unavailable",
				map[string]any{"table": table, "error": err.Error()})
			count = 0
		}
		values[table+"_count"] = strconv.Itoa(count)
	}

	if dim := o.sampleDimension(); dim > 0 {
		values["embedding_dimension"] = strconv.Itoa(dim)
	}

	values["consolidations"] = strconv.Itoa(o.readCounter("consolidations") + 1)
	values["last_consolidation"] = o.now().UTC().Format(time.RFC3339)

	if err := o.store.SetStats(values); err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "stats sync failed",
			map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// sampleDimension infers the embedding dimension from the most recent
// memory row carrying a decodable vector.
func (o *Orchestrator) sampleDimension() int {
	rows, err := o.store.SelectRecent(store.TableMemories, 10)
	if err != nil {
		return 0
	}
	for _, row := range rows {
		rec := models.MemoryFromRow(row)
		if vec, ok := o.codec.Parse(rec.RawEmbedding); ok {
			return len(vec)
		}
	}
	return 0
}

func (o *Orchestrator) readCounter(name string) int {
	rows, err := o.store.SelectRecent(store.TableStats, 100)
	if err != nil {
		return 0
	}
	for _, row := range rows {
		if rowName, _ := row["name"].(string); rowName == name {
			if s, ok := row["value"].(string); ok {
				if n, err := strconv.Atoi(s); err == nil {
					return n
				}
			}
		}
	}
	return 0
}

func (o *Orchestrator) recentMemories(limit int) []models.MemoryRecord {
	rows, err := o.store.SelectRecent(store.TableMemories, limit)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "memory window unavailable",
			map[string]any{"error": err.Error()})
		return nil
	}
	records := make([]models.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		if rec := models.MemoryFromRow(row); rec.ID != "" {
			records = append(records, rec)
		}
	}
	return records
}

func (o *Orchestrator) recentPatterns(limit int) []models.NeuralPattern {
	rows, err := o.store.SelectRecent(store.TablePatterns, limit)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "pattern window unavailable",
			map[string]any{"error": err.Error()})
		return nil
	}
	result := make([]models.NeuralPattern, 0, len(rows))
	for _, row := range rows {
		if p := models.PatternFromRow(row); p.ID != "" {
			result = append(result, p)
		}
	}
	return result
}

func (o *Orchestrator) recentTrajectories(limit int) []models.Trajectory {
	rows, err := o.store.SelectRecent(store.TableTrajectories, limit)
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "trajectory window unavailable",
			map[string]any{"error": err.Error()})
		return nil
	}
	trajectories := make([]models.Trajectory, 0, len(rows))
	for _, row := range rows {
		if t := models.TrajectoryFromRow(row); t.ID != "" {
			trajectories = append(trajectories, t)
		}
	}
	return trajectories
}
