package patterns

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

type countingEmbedder struct {
	dim   int
	calls int
	fail  bool
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("embedder down")
	}
	vec := make([]float32, e.dim)
	vec[0] = 1
	return vec, nil
}

func testExtractor(t *testing.T, embedder embedding.Embedder) (*Extractor, *store.MemStore, *diag.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemStore()
	diags := diag.NewRecorder(logger)
	ext := NewExtractor(st, embedding.NewCodec(3), embedder, diags, logger, 300)
	return ext, st, diags
}

func tsRecords(n int) []models.MemoryRecord {
	records := make([]models.MemoryRecord, n)
	for i := range records {
		records[i] = models.MemoryRecord{
			ID:      fmt.Sprintf("r%d", i),
			Type:    "edit",
			Content: fmt.Sprintf("Edited src/file%d.ts", i),
		}
	}
	return records
}

func TestDetectFileType(t *testing.T) {
	ext, _, _ := testExtractor(t, nil)

	detections := ext.Detect(tsRecords(5))
	var ts *Detection
	for i := range detections {
		if detections[i].ID == "filetype:.ts" {
			ts = &detections[i]
		}
	}
	if ts == nil {
		t.Fatalf("expected filetype:.ts detection, got %+v", detections)
	}
	// min(0.3 + 0.1*5, 0.9) = 0.8
	if ts.Confidence < 0.799 || ts.Confidence > 0.801 {
		t.Fatalf("expected confidence 0.8, got %v", ts.Confidence)
	}
	if ts.Category != models.CategoryFileType {
		t.Fatalf("unexpected category %q", ts.Category)
	}
	if len(ts.Contributing) != 5 {
		t.Fatalf("expected 5 contributing records, got %d", len(ts.Contributing))
	}
}

func TestDetectFileTypeConfidenceCap(t *testing.T) {
	ext, _, _ := testExtractor(t, nil)

	detections := ext.Detect(tsRecords(20))
	for _, d := range detections {
		if d.ID == "filetype:.ts" && d.Confidence != 0.9 {
			t.Fatalf("expected capped confidence 0.9, got %v", d.Confidence)
		}
	}
}

func TestDetectDirectory(t *testing.T) {
	ext, _, _ := testExtractor(t, nil)

	records := []models.MemoryRecord{
		{ID: "r1", Content: "working in src/ on the parser"},
		{ID: "r2", Content: "moved helpers in src/ around"},
		{ID: "r3", Content: "one mention in docs/ only"},
	}
	detections := ext.Detect(records)

	ids := make(map[string]bool)
	for _, d := range detections {
		ids[d.ID] = true
	}
	if !ids["directory:src"] {
		t.Fatalf("expected directory:src, got %v", ids)
	}
	if ids["directory:docs"] {
		t.Fatal("single mention should not yield a pattern")
	}
}

func TestDetectComponent(t *testing.T) {
	ext, _, _ := testExtractor(t, nil)

	records := []models.MemoryRecord{
		{ID: "r1", Type: "command", Content: "a"},
		{ID: "r2", Type: "command", Content: "b"},
		{ID: "r3", Type: "command", Content: "c"},
		{ID: "r4", Type: "search", Content: "d"},
	}
	detections := ext.Detect(records)

	var comp *Detection
	for i := range detections {
		if detections[i].ID == "component:command" {
			comp = &detections[i]
		}
	}
	if comp == nil {
		t.Fatalf("expected component:command, got %+v", detections)
	}
	// min(0.4 + 0.05*3, 0.95) = 0.55
	if comp.Confidence < 0.549 || comp.Confidence > 0.551 {
		t.Fatalf("expected confidence 0.55, got %v", comp.Confidence)
	}
	for _, d := range detections {
		if d.ID == "component:search" {
			t.Fatal("two occurrences should not yield a component pattern")
		}
	}
}

func TestExtractUpsertLifecycle(t *testing.T) {
	embedder := &countingEmbedder{dim: 3}
	ext, st, _ := testExtractor(t, embedder)
	ctx := context.Background()

	records := tsRecords(5)

	upserted, err := ext.Extract(ctx, records)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	var first *Upserted
	for i := range upserted {
		if upserted[i].ID == "filetype:.ts" {
			first = &upserted[i]
		}
	}
	if first == nil || !first.New {
		t.Fatalf("expected new filetype:.ts, got %+v", upserted)
	}

	loadPattern := func() models.NeuralPattern {
		rows, err := st.SelectRecent(store.TablePatterns, 50)
		if err != nil {
			t.Fatalf("select patterns: %v", err)
		}
		for _, r := range rows {
			if p := models.PatternFromRow(r); p.ID == "filetype:.ts" {
				return p
			}
		}
		t.Fatal("pattern not stored")
		return models.NeuralPattern{}
	}

	created := loadPattern()
	if created.UsageCount != 1 {
		t.Fatalf("expected usage 1, got %d", created.UsageCount)
	}
	if created.Confidence < 0.799 || created.Confidence > 0.801 {
		t.Fatalf("expected confidence 0.8, got %v", created.Confidence)
	}
	if created.RawEmbedding == nil {
		t.Fatal("expected immediate embedding on first insert")
	}
	embedsAfterInsert := embedder.calls

	t.Run("rediscovery bumps confidence and usage, keeps content", func(t *testing.T) {
		if _, err := ext.Extract(ctx, records); err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		again := loadPattern()
		if again.UsageCount != 2 {
			t.Fatalf("expected usage 2, got %d", again.UsageCount)
		}
		if again.Confidence < 0.849 || again.Confidence > 0.851 {
			t.Fatalf("expected confidence 0.85, got %v", again.Confidence)
		}
		if again.Content != created.Content || again.Category != created.Category {
			t.Fatal("content and category must never be overwritten")
		}
		if embedder.calls != embedsAfterInsert {
			t.Fatalf("embedding must not be recomputed when present, calls went %d -> %d", embedsAfterInsert, embedder.calls)
		}
	})

	t.Run("confidence never exceeds the category cap", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			if _, err := ext.Extract(ctx, records); err != nil {
				t.Fatalf("extract failed: %v", err)
			}
		}
		capped := loadPattern()
		if capped.Confidence > 0.9 {
			t.Fatalf("confidence exceeded cap: %v", capped.Confidence)
		}
		if capped.UsageCount != 7 {
			t.Fatalf("usage must strictly increase, got %d", capped.UsageCount)
		}
	})
}

func TestExtractEmbeddingFailureIsReported(t *testing.T) {
	embedder := &countingEmbedder{dim: 3, fail: true}
	ext, st, diags := testExtractor(t, embedder)

	upserted, err := ext.Extract(context.Background(), tsRecords(3))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(upserted) == 0 {
		t.Fatal("pattern should be stored even without an embedding")
	}

	found := false
	for _, e := range diags.Drain() {
		if e.Kind == diag.KindMalformedInput && e.Fields["pattern_id"] != nil {
			found = true
		}
	}
	if !found {
		t.Fatal("embedding failure must surface the pattern id")
	}

	rows, _ := st.SelectRecent(store.TablePatterns, 10)
	for _, r := range rows {
		if p := models.PatternFromRow(r); p.ID == "filetype:.ts" && p.RawEmbedding != nil {
			t.Fatal("failed embedding should leave the column empty")
		}
	}
}
