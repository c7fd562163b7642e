package compress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

type fakeCompressor struct {
	compressCalls int
	compactCalls  int
	fail          bool
}

func (f *fakeCompressor) Compress(_ context.Context, patternID string, vec []float32, _ map[string]any) ([]byte, float64, error) {
	f.compressCalls++
	if f.fail {
		return nil, 0, fmt.Errorf("compressor offline")
	}
	return []byte(patternID), 4.0, nil
}

func (f *fakeCompressor) Compact(context.Context) error {
	f.compactCalls++
	return nil
}

func testBridge(t *testing.T, factory Factory) (*Bridge, *store.MemStore, *diag.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemStore()
	diags := diag.NewRecorder(logger)
	return NewBridge(st, embedding.NewCodec(3), factory, diags, logger, 300), st, diags
}

func seedPattern(t *testing.T, st store.Store, id string, vec []float32) {
	t.Helper()
	row := models.Row{
		"id": id, "content": "pattern " + id, "category": "file_type",
		"confidence": 0.8, "usage_count": 1, "created_at": int64(1), "updated_at": int64(1),
	}
	if vec != nil {
		row["embedding"] = embedding.NewCodec(len(vec)).Serialize(vec)
	}
	if err := st.Insert(store.TablePatterns, row); err != nil {
		t.Fatalf("seed pattern: %v", err)
	}
}

func loadCompressed(t *testing.T, st store.Store) map[string]models.CompressedPattern {
	t.Helper()
	rows, err := st.SelectRecent(store.TableCompressed, 100)
	if err != nil {
		t.Fatalf("select compressed: %v", err)
	}
	out := make(map[string]models.CompressedPattern, len(rows))
	for _, r := range rows {
		cp := models.CompressedFromRow(r)
		out[cp.Layer] = cp
	}
	return out
}

func TestBridgeDirectPath(t *testing.T) {
	bridge, st, _ := testBridge(t, nil)
	seedPattern(t, st, "filetype:.go", []float32{1, 0, 0})

	created, err := bridge.Sync(context.Background())
	if err != nil || created != 1 {
		t.Fatalf("expected 1 mirrored pattern, got %d err=%v", created, err)
	}

	compressed := loadCompressed(t, st)
	cp, ok := compressed["neural-filetype:.go"]
	if !ok {
		t.Fatalf("expected layer neural-filetype:.go, got %v", compressed)
	}
	if cp.Ratio != 1.0 {
		t.Fatalf("direct path must store ratio 1.0, got %v", cp.Ratio)
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(cp.Metadata), &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if meta["method"] != "direct" {
		t.Fatalf("expected method direct, got %v", meta["method"])
	}
	if vec, ok := embedding.NewCodec(3).Parse(cp.Data); !ok || vec[0] != 1 {
		t.Fatalf("direct path must store the raw vector, got %v ok=%v", vec, ok)
	}
}

func TestBridgeSyncIsIdempotent(t *testing.T) {
	bridge, st, _ := testBridge(t, nil)
	seedPattern(t, st, "p1", []float32{1, 0, 0})
	seedPattern(t, st, "p2", nil)

	if created, err := bridge.Sync(context.Background()); err != nil || created != 2 {
		t.Fatalf("expected 2 mirrored, got %d err=%v", created, err)
	}
	if created, err := bridge.Sync(context.Background()); err != nil || created != 0 {
		t.Fatalf("second sync must be a no-op, got %d err=%v", created, err)
	}
	if n, _ := st.Count(store.TableCompressed); n != 2 {
		t.Fatalf("expected 2 compressed rows, got %d", n)
	}
}

func TestBridgeFactoryFailsTwice(t *testing.T) {
	attempts := 0
	factory := func() (Compressor, error) {
		attempts++
		return nil, fmt.Errorf("unreachable")
	}
	bridge, st, diags := testBridge(t, factory)

	if attempts != 2 {
		t.Fatalf("factory must be tried twice, got %d", attempts)
	}
	events := diags.Drain()
	if len(events) != 2 || events[0].Kind != diag.KindCompressor {
		t.Fatalf("expected two compressor diagnostics, got %v", events)
	}

	// Construction failure settles on the direct path permanently.
	seedPattern(t, st, "p1", []float32{1, 0, 0})
	if created, err := bridge.Sync(context.Background()); err != nil || created != 1 {
		t.Fatalf("expected direct fallback to work, got %d err=%v", created, err)
	}
	cp := loadCompressed(t, st)["neural-p1"]
	if cp.Ratio != 1.0 {
		t.Fatalf("expected direct ratio 1.0, got %v", cp.Ratio)
	}
}

func TestBridgeUsesCompressorAndCompacts(t *testing.T) {
	fake := &fakeCompressor{}
	bridge, st, _ := testBridge(t, func() (Compressor, error) { return fake, nil })
	seedPattern(t, st, "p1", []float32{1, 0, 0})

	if created, err := bridge.Sync(context.Background()); err != nil || created != 1 {
		t.Fatalf("expected 1 mirrored, got %d err=%v", created, err)
	}
	cp := loadCompressed(t, st)["neural-p1"]
	if cp.Ratio != 4.0 || string(cp.Data) != "p1" {
		t.Fatalf("expected compressor output stored, got %+v", cp)
	}
	if fake.compactCalls != 1 {
		t.Fatalf("expected best-effort compact call, got %d", fake.compactCalls)
	}

	t.Run("compact runs even when nothing new is mirrored", func(t *testing.T) {
		if created, err := bridge.Sync(context.Background()); err != nil || created != 0 {
			t.Fatalf("expected no-op sync, got %d err=%v", created, err)
		}
		if fake.compactCalls != 2 {
			t.Fatalf("compact must close every sync, got %d calls", fake.compactCalls)
		}
	})
}

func TestBridgeCompressorFailureFallsBackPerPattern(t *testing.T) {
	fake := &fakeCompressor{fail: true}
	bridge, st, diags := testBridge(t, func() (Compressor, error) { return fake, nil })
	seedPattern(t, st, "p1", []float32{1, 0, 0})

	if created, err := bridge.Sync(context.Background()); err != nil || created != 1 {
		t.Fatalf("expected direct fallback row, got %d err=%v", created, err)
	}
	cp := loadCompressed(t, st)["neural-p1"]
	if cp.Ratio != 1.0 {
		t.Fatalf("expected fallback ratio 1.0, got %v", cp.Ratio)
	}

	found := false
	for _, e := range diags.Drain() {
		if e.Kind == diag.KindCompressor {
			found = true
		}
	}
	if !found {
		t.Fatal("compressor failure must be surfaced")
	}
}
