package graph

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

func testDeriver(t *testing.T) (*DeterministicDeriver, *EdgeWriter, *store.MemStore, *diag.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemStore()
	edges := NewEdgeWriter(st)
	diags := diag.NewRecorder(logger)
	return NewDeterministicDeriver(edges, diags, logger), edges, st, diags
}

func loadEdges(t *testing.T, st store.Store) map[[2]string]models.Edge {
	t.Helper()
	rows, err := st.SelectRecent(store.TableEdges, 100)
	if err != nil {
		t.Fatalf("select edges: %v", err)
	}
	out := make(map[[2]string]models.Edge, len(rows))
	for _, r := range rows {
		e := models.EdgeFromRow(r)
		out[[2]string{e.SourceID, e.TargetID}] = e
	}
	return out
}

func TestTemporal(t *testing.T) {
	det, _, st, _ := testDeriver(t)

	records := []models.MemoryRecord{
		{ID: "newest"}, {ID: "mid"}, {ID: "oldest"},
	}
	if n := det.Temporal(records); n != 2 {
		t.Fatalf("expected 2 edges, got %d", n)
	}

	edges := loadEdges(t, st)
	first := edges[[2]string{"newest", "mid"}]
	if first.Weight != 1.0 || first.EdgeType != models.EdgeTypeTemporal {
		t.Fatalf("unexpected first edge: %+v", first)
	}
	second := edges[[2]string{"mid", "oldest"}]
	if second.Weight != 0.5 {
		t.Fatalf("expected decaying weight 0.5, got %v", second.Weight)
	}
}

func TestFileCoEdit(t *testing.T) {
	det, _, st, _ := testDeriver(t)

	records := []models.MemoryRecord{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}
	if n := det.FileCoEdit("src/main.go", records, 2); n != 2 {
		t.Fatalf("expected k edges, got %d", n)
	}

	edges := loadEdges(t, st)
	for _, id := range []string{"r1", "r2"} {
		e, ok := edges[[2]string{id, "file:src/main.go"}]
		if !ok || e.Weight != 1.0 || e.EdgeType != models.EdgeTypeFileCoEdit {
			t.Fatalf("missing or wrong co-edit edge for %s: %+v", id, e)
		}
	}
	if _, ok := edges[[2]string{"r3", "file:src/main.go"}]; ok {
		t.Fatal("record past the cap should not be linked")
	}
}

func TestTrajectoryLinks(t *testing.T) {
	det, _, st, _ := testDeriver(t)

	records := []models.MemoryRecord{
		{ID: "near", CreatedAt: 1000},
		{ID: "far", CreatedAt: 500},
	}
	trajectories := []models.Trajectory{
		{ID: "t1", Reward: 0.9, Timestamp: 1010},
		{ID: "t2", Reward: 0.4, Timestamp: 5000}, // outside tolerance
	}

	if n := det.TrajectoryLinks(trajectories, records, 60*time.Second); n != 1 {
		t.Fatalf("expected 1 edge, got %d", n)
	}

	edges := loadEdges(t, st)
	e, ok := edges[[2]string{"trajectory:t1", "near"}]
	if !ok {
		t.Fatalf("expected edge to nearest record, got %v", edges)
	}
	if e.Weight != 0.9 || e.EdgeType != models.EdgeTypeTrajectory {
		t.Fatalf("expected weight = reward, got %+v", e)
	}
	if _, ok := edges[[2]string{"trajectory:t2", "near"}]; ok {
		t.Fatal("trajectory outside tolerance should not be linked")
	}
}

func TestPatternEdges(t *testing.T) {
	det, _, st, _ := testDeriver(t)

	sources := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	if n := det.PatternEdges("filetype:.go", sources, 5); n != 5 {
		t.Fatalf("expected bounded links, got %d", n)
	}

	edges := loadEdges(t, st)
	if len(edges) != 5 {
		t.Fatalf("expected 5 edges, got %d", len(edges))
	}
	e := edges[[2]string{"filetype:.go", "r1"}]
	if e.Weight != 0.5 || e.EdgeType != models.EdgeTypePatternSource {
		t.Fatalf("unexpected pattern edge: %+v", e)
	}
}

func TestEdgeReplaceAcrossRules(t *testing.T) {
	det, edges, st, _ := testDeriver(t)

	records := []models.MemoryRecord{{ID: "a"}}
	if n := det.FileCoEdit("x.go", records, 5); n != 1 {
		t.Fatalf("expected 1 edge, got %d", n)
	}
	// A later derivation between the same pair replaces, never sums.
	if err := edges.Put("a", "file:x.go", models.EdgeTypeSemantic, 0.77, nil); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	all := loadEdges(t, st)
	if len(all) != 1 {
		t.Fatalf("expected single edge row, got %d", len(all))
	}
	e := all[[2]string{"a", "file:x.go"}]
	if e.EdgeType != models.EdgeTypeSemantic || e.Weight != 0.77 {
		t.Fatalf("expected replaced edge at 0.77, got %+v", e)
	}
}

func TestDeterministicStoreFailureIsRecovered(t *testing.T) {
	det, _, st, diags := testDeriver(t)
	st.Fail[store.TableEdges] = errTable("memory_edges")

	if n := det.Temporal([]models.MemoryRecord{{ID: "a"}, {ID: "b"}}); n != 0 {
		t.Fatalf("expected zero effect, got %d", n)
	}
	events := diags.Drain()
	if len(events) == 0 || events[0].Kind != diag.KindStoreUnavailable {
		t.Fatalf("expected store_unavailable diagnostic, got %v", events)
	}
}

type errTable string

func (e errTable) Error() string { return "no such table: " + string(e) }
