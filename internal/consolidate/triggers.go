package consolidate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

// Trigger is the per-event entry point the host exposes. Each event kind
// records the interaction, runs the subset of the sweep it can cheaply
// affect, and synchronizes stats.
type Trigger interface {
	OnEdit(ctx context.Context, file string) Result
	OnCommand(ctx context.Context, command string) Result
	OnSessionStart(ctx context.Context, agent, session string) Result
	OnSessionEnd(ctx context.Context) Result
	OnConsolidate(ctx context.Context) Result
}

var _ Trigger = (*Orchestrator)(nil)

// OnEdit records a file edit and links the most recent records to the
// file's synthetic node.
func (o *Orchestrator) OnEdit(ctx context.Context, file string) Result {
	var res Result

	file = normalizePath(file)
	o.recordInteraction("edit", fmt.Sprintf("Edited %s", file))

	records := o.recentMemories(o.opts.TemporalWindow)
	coEdit := records
	if len(coEdit) > o.opts.CoEditLinks {
		coEdit = coEdit[:o.opts.CoEditLinks]
	}
	res.EdgesCreated += o.det.FileCoEdit(file, coEdit, o.opts.CoEditLinks)
	res.EdgesCreated += o.det.Temporal(records)

	res.StatsSynced = o.syncStats()
	res.Diagnostics = o.diags.Drain()
	return res
}

// OnCommand records a command execution and refreshes temporal edges
// over the recent window.
func (o *Orchestrator) OnCommand(ctx context.Context, command string) Result {
	var res Result

	o.recordInteraction("command", fmt.Sprintf("Ran command: %s", command))

	res.EdgesCreated += o.det.Temporal(o.recentMemories(o.opts.TemporalWindow))
	res.StatsSynced = o.syncStats()
	res.Diagnostics = o.diags.Drain()
	return res
}

// OnSessionStart registers or touches the named agent and records the
// session spawn.
func (o *Orchestrator) OnSessionStart(ctx context.Context, agent, session string) Result {
	var res Result

	if agent == "" {
		agent = SystemAgentName
	}
	if o.ensureAgent(agent, "session") {
		res.AgentsTouched++
	}
	o.recordInteraction("agent_spawn", fmt.Sprintf("Session %s started for agent %s", session, agent))

	res.StatsSynced = o.syncStats()
	res.Diagnostics = o.diags.Drain()
	return res
}

// OnSessionEnd extracts patterns from the session's recent window and
// mirrors new patterns into compressed storage.
func (o *Orchestrator) OnSessionEnd(ctx context.Context) Result {
	var res Result

	for _, up := range o.extractPatterns(ctx, o.opts.PatternWindow) {
		if up.New {
			res.PatternsCreated++
			res.EdgesCreated += o.det.PatternEdges(up.ID, up.Contributing, o.opts.PatternLinks)
		}
	}

	o.syncCompressed(ctx)

	res.StatsSynced = o.syncStats()
	res.Diagnostics = o.diags.Drain()
	return res
}

// OnConsolidate runs the full sweep.
func (o *Orchestrator) OnConsolidate(ctx context.Context) Result {
	return o.Consolidate(ctx)
}

// recordInteraction appends a memory record for a triggering event.
// Failure is recovered: edge derivation still runs over whatever the
// window holds.
func (o *Orchestrator) recordInteraction(recType, content string) {
	err := o.store.Insert(store.TableMemories, models.Row{
		"id":         uuid.New().String(),
		"type":       recType,
		"content":    content,
		"created_at": o.now().Unix(),
	})
	if err != nil {
		o.diags.Record(diag.KindStoreUnavailable, "consolidate", "interaction record insert failed",
			map[string]any{"type": recType, "error": err.Error()})
	}
}

// normalizePath collapses a file path for co-edit node naming so edits
// through differing relative spellings share a node.
func normalizePath(path string) string {
	return filepath.Clean(path)
}
