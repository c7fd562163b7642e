package graph

import (
	"log/slog"
	"time"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/models"
)

// DeterministicDeriver writes rule-based edges from co-occurrence. Each
// rule is independent and writes through the shared replace-semantics
// edge upsert.
type DeterministicDeriver struct {
	edges  *EdgeWriter
	diags  *diag.Recorder
	logger *slog.Logger
}

// NewDeterministicDeriver returns a deriver writing through edges.
func NewDeterministicDeriver(edges *EdgeWriter, diags *diag.Recorder, logger *slog.Logger) *DeterministicDeriver {
	return &DeterministicDeriver{edges: edges, diags: diags, logger: logger}
}

// Temporal links consecutive records by recency with decaying weight
// 1/(rank+1): the two most recent records get 1.0, the next pair 0.5,
// and so on. Records must be ordered most recent first.
func (d *DeterministicDeriver) Temporal(records []models.MemoryRecord) int {
	created := 0
	for i := 0; i+1 < len(records); i++ {
		a, b := records[i], records[i+1]
		if a.ID == "" || b.ID == "" {
			continue
		}
		weight := 1.0 / float64(i+1)
		err := d.edges.Put(a.ID, b.ID, models.EdgeTypeTemporal, weight, map[string]any{
			"rank": i,
		})
		if err != nil {
			d.diags.Record(diag.KindStoreUnavailable, "deterministic", "temporal edge write failed",
				map[string]any{"source": a.ID, "target": b.ID, "error": err.Error()})
			continue
		}
		created++
	}
	return created
}

// FileCoEdit links the k most recent records to the synthetic "file:F"
// node at weight 1.0 after an edit of F.
func (d *DeterministicDeriver) FileCoEdit(file string, records []models.MemoryRecord, k int) int {
	if file == "" {
		return 0
	}
	if k <= 0 {
		k = 5
	}
	target := FileNode(file)

	created := 0
	for i, rec := range records {
		if i >= k {
			break
		}
		if rec.ID == "" {
			continue
		}
		err := d.edges.Put(rec.ID, target, models.EdgeTypeFileCoEdit, 1.0, map[string]any{
			"file": file,
		})
		if err != nil {
			d.diags.Record(diag.KindStoreUnavailable, "deterministic", "co-edit edge write failed",
				map[string]any{"source": rec.ID, "target": target, "error": err.Error()})
			continue
		}
		created++
	}
	return created
}

// TrajectoryLinks matches each trajectory to the record nearest in time
// within the tolerance window and links them at weight = reward.
func (d *DeterministicDeriver) TrajectoryLinks(trajectories []models.Trajectory, records []models.MemoryRecord, tolerance time.Duration) int {
	if len(records) == 0 {
		return 0
	}
	tolSecs := int64(tolerance.Seconds())

	created := 0
	for _, traj := range trajectories {
		if traj.ID == "" {
			continue
		}

		bestID := ""
		bestDelta := tolSecs + 1
		for _, rec := range records {
			if rec.ID == "" {
				continue
			}
			delta := traj.Timestamp - rec.CreatedAt
			if delta < 0 {
				delta = -delta
			}
			if delta < bestDelta {
				bestDelta = delta
				bestID = rec.ID
			}
		}
		if bestID == "" || bestDelta > tolSecs {
			continue
		}

		err := d.edges.Put(TrajectoryNode(traj.ID), bestID, models.EdgeTypeTrajectory, traj.Reward, map[string]any{
			"action":  traj.Action,
			"outcome": traj.Outcome,
		})
		if err != nil {
			d.diags.Record(diag.KindStoreUnavailable, "deterministic", "trajectory edge write failed",
				map[string]any{"trajectory": traj.ID, "target": bestID, "error": err.Error()})
			continue
		}
		created++
	}
	return created
}

// PatternEdges links a newly extracted pattern to the records that
// contributed to it, bounded at maxLinks, at fixed weight 0.5.
func (d *DeterministicDeriver) PatternEdges(patternID string, contributing []string, maxLinks int) int {
	if maxLinks <= 0 {
		maxLinks = 5
	}

	created := 0
	for i, recID := range contributing {
		if i >= maxLinks {
			break
		}
		if recID == "" {
			continue
		}
		err := d.edges.Put(patternID, recID, models.EdgeTypePatternSource, 0.5, nil)
		if err != nil {
			d.diags.Record(diag.KindStoreUnavailable, "deterministic", "pattern edge write failed",
				map[string]any{"pattern": patternID, "target": recID, "error": err.Error()})
			continue
		}
		created++
	}
	return created
}
