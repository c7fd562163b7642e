package compress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

// Layer returns the compressed-pattern layer id mirroring a pattern.
func Layer(patternID string) string { return "neural-" + patternID }

// Bridge mirrors each neural pattern into the compressed store exactly
// once, keyed by layer id. Construction tries the compressor factory
// twice; after a second failure the bridge runs permanently on the
// direct path, which stores the raw vector at ratio 1.0.
type Bridge struct {
	store      store.Store
	codec      *embedding.Codec
	compressor Compressor
	diags      *diag.Recorder
	logger     *slog.Logger
	now        func() int64

	// window bounds how many pattern and compressed rows one sync scans.
	window int
}

// NewBridge builds a bridge, probing the compressor factory twice before
// settling on the direct path. factory may be nil for direct-only use.
func NewBridge(st store.Store, codec *embedding.Codec, factory Factory, diags *diag.Recorder, logger *slog.Logger, window int) *Bridge {
	if window <= 0 {
		window = 300
	}
	b := &Bridge{
		store:  st,
		codec:  codec,
		diags:  diags,
		logger: logger,
		now:    func() int64 { return time.Now().Unix() },
		window: window,
	}

	if factory == nil {
		return b
	}
	for attempt := 1; attempt <= 2; attempt++ {
		comp, err := factory()
		if err == nil {
			b.compressor = comp
			return b
		}
		diags.Record(diag.KindCompressor, "compress", "compressor construction failed",
			map[string]any{"attempt": attempt, "error": err.Error()})
	}
	logger.Warn("compressor unavailable, using direct compaction path")
	return b
}

// Sync mirrors every pattern without a compressed counterpart and
// returns how many rows it created. Compressor failure on any single
// pattern falls back to the direct path for that pattern. When a
// compressor is present, its batch compaction step runs afterwards as a
// best-effort call whose failure never rolls anything back.
func (b *Bridge) Sync(ctx context.Context) (int, error) {
	patterns, err := b.store.SelectRecent(store.TablePatterns, b.window)
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool)
	compressed, err := b.store.SelectRecent(store.TableCompressed, b.window)
	if err != nil {
		return 0, err
	}
	for _, row := range compressed {
		cp := models.CompressedFromRow(row)
		if cp.Layer != "" {
			existing[cp.Layer] = true
		}
	}

	created := 0
	for _, row := range patterns {
		pat := models.PatternFromRow(row)
		if pat.ID == "" || existing[Layer(pat.ID)] {
			continue
		}
		if err := b.mirror(ctx, pat); err != nil {
			b.diags.Record(diag.KindStoreUnavailable, "compress", "compressed pattern insert failed",
				map[string]any{"pattern_id": pat.ID, "error": err.Error()})
			continue
		}
		created++
	}

	if b.compressor != nil {
		if err := b.compressor.Compact(ctx); err != nil {
			b.diags.Record(diag.KindCompressor, "compress", "batch compaction failed",
				map[string]any{"error": err.Error()})
		}
	}
	return created, nil
}

func (b *Bridge) mirror(ctx context.Context, pat models.NeuralPattern) error {
	vec, _ := b.codec.Parse(pat.RawEmbedding)

	meta := map[string]any{
		"pattern_id": pat.ID,
		"category":   pat.Category,
		"confidence": pat.Confidence,
	}

	var data []byte
	ratio := 1.0
	method := "direct"

	if b.compressor != nil && len(vec) > 0 {
		compressed, r, err := b.compressor.Compress(ctx, pat.ID, vec, meta)
		if err != nil {
			b.diags.Record(diag.KindCompressor, "compress", "compressor failed, falling back to direct path",
				map[string]any{"pattern_id": pat.ID, "error": err.Error()})
		} else {
			data = compressed
			ratio = r
			method = "compressor"
		}
	}
	if data == nil {
		if len(vec) > 0 {
			data = b.codec.Serialize(vec)
		} else {
			data = []byte(pat.Content)
		}
	}
	meta["method"] = method

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return b.store.Insert(store.TableCompressed, models.Row{
		"id":                uuid.New().String(),
		"layer":             Layer(pat.ID),
		"data":              data,
		"compression_ratio": ratio,
		"created_at":        b.now(),
		"metadata":          string(metaJSON),
	})
}
