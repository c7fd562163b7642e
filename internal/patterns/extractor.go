// Package patterns detects recurring signals in recent memory records
// and maintains a deduplicated, confidence-weighted pattern catalogue.
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/models"
	"github.com/iammorganparry/neurograph/internal/store"
)

// Confidence caps per category. Rediscovery raises confidence by
// RediscoveryIncrement until the category cap.
const (
	capFileType  = 0.9
	capDirectory = 0.9
	capComponent = 0.95

	// RediscoveryIncrement is added to confidence each time an existing
	// pattern is detected again.
	RediscoveryIncrement = 0.05
)

var (
	extensionRe = regexp.MustCompile(`\.[a-zA-Z][a-zA-Z0-9]{0,7}\b`)
	directoryRe = regexp.MustCompile(`(?i)\b(?:in|to|from|at|under|inside)\s+([\w.-]+)/`)
)

// Detection is one recurring signal found in the window, before it is
// reconciled with the stored catalogue.
type Detection struct {
	ID           string
	Category     string
	Content      string
	Confidence   float64
	Contributing []string
}

// Upserted reports one catalogue write: the pattern id, whether the row
// was newly created, and the record ids that contributed to the
// detection. New patterns are what the deterministic deriver links back
// to their sources.
type Upserted struct {
	ID           string
	New          bool
	Contributing []string
}

// Extractor runs the three detectors and reconciles detections with the
// stored catalogue.
type Extractor struct {
	store    store.Store
	codec    *embedding.Codec
	embedder embedding.Embedder
	diags    *diag.Recorder
	logger   *slog.Logger
	now      func() int64

	// catalogueWindow bounds how many stored patterns are loaded for
	// reconciliation per sweep.
	catalogueWindow int
}

// NewExtractor returns an extractor over the given store. embedder may
// be nil, in which case patterns are catalogued without embeddings.
func NewExtractor(st store.Store, codec *embedding.Codec, embedder embedding.Embedder, diags *diag.Recorder, logger *slog.Logger, catalogueWindow int) *Extractor {
	if catalogueWindow <= 0 {
		catalogueWindow = 300
	}
	return &Extractor{
		store:           st,
		codec:           codec,
		embedder:        embedder,
		diags:           diags,
		logger:          logger,
		now:             func() int64 { return time.Now().Unix() },
		catalogueWindow: catalogueWindow,
	}
}

// Detect runs the three detectors over the window and returns the
// deduplicated detections, ordered by pattern id for determinism.
func (e *Extractor) Detect(records []models.MemoryRecord) []Detection {
	byID := make(map[string]*Detection)

	add := func(id, category, content string, confidence float64, recordID string) {
		d, ok := byID[id]
		if !ok {
			d = &Detection{ID: id, Category: category, Content: content, Confidence: confidence}
			byID[id] = d
		} else {
			d.Confidence = confidence
		}
		if recordID != "" && !contains(d.Contributing, recordID) {
			d.Contributing = append(d.Contributing, recordID)
		}
	}

	// File-type: tally extension mentions across the window.
	extCounts := make(map[string]int)
	extSources := make(map[string][]string)
	for _, rec := range records {
		for _, ext := range extensionRe.FindAllString(rec.Content, -1) {
			ext = strings.ToLower(ext)
			extCounts[ext]++
			extSources[ext] = append(extSources[ext], rec.ID)
		}
	}
	for ext, count := range extCounts {
		if count < 2 {
			continue
		}
		conf := min64(0.3+0.1*float64(count), capFileType)
		id := "filetype:" + ext
		content := fmt.Sprintf("Frequent work with %s files (%d mentions)", ext, count)
		for _, src := range extSources[ext] {
			add(id, models.CategoryFileType, content, conf, src)
		}
	}

	// Directory: simple prepositional match ("in src/", "under pkg/").
	dirCounts := make(map[string]int)
	dirSources := make(map[string][]string)
	for _, rec := range records {
		for _, m := range directoryRe.FindAllStringSubmatch(rec.Content, -1) {
			dir := m[1]
			dirCounts[dir]++
			dirSources[dir] = append(dirSources[dir], rec.ID)
		}
	}
	for dir, count := range dirCounts {
		if count < 2 {
			continue
		}
		conf := min64(0.3+0.1*float64(count), capDirectory)
		id := "directory:" + dir
		content := fmt.Sprintf("Frequent work in directory %s (%d mentions)", dir, count)
		for _, src := range dirSources[dir] {
			add(id, models.CategoryDirectory, content, conf, src)
		}
	}

	// Component/action: tally record types.
	typeCounts := make(map[string]int)
	typeSources := make(map[string][]string)
	for _, rec := range records {
		if rec.Type == "" {
			continue
		}
		typeCounts[rec.Type]++
		typeSources[rec.Type] = append(typeSources[rec.Type], rec.ID)
	}
	for recType, count := range typeCounts {
		if count < 3 {
			continue
		}
		conf := min64(0.4+0.05*float64(count), capComponent)
		id := "component:" + recType
		content := fmt.Sprintf("Recurring %s activity (%d occurrences)", recType, count)
		for _, src := range typeSources[recType] {
			add(id, models.CategoryComponent, content, conf, src)
		}
	}

	out := make([]Detection, 0, len(byID))
	for _, d := range byID {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Extract detects patterns in the window and reconciles them with the
// stored catalogue. New ids are inserted with an immediately generated
// embedding; rediscovered ids get confidence raised by the fixed
// increment up to the category cap, usage incremented, and an embedding
// computed only if the row has none. Content and category are never
// overwritten on rediscovery.
func (e *Extractor) Extract(ctx context.Context, records []models.MemoryRecord) ([]Upserted, error) {
	detections := e.Detect(records)
	if len(detections) == 0 {
		return nil, nil
	}

	existing, err := e.loadCatalogue()
	if err != nil {
		return nil, fmt.Errorf("load pattern catalogue: %w", err)
	}

	var results []Upserted
	for _, d := range detections {
		now := e.now()
		prior, found := existing[d.ID]

		if !found {
			fields := models.Row{
				"content":     d.Content,
				"category":    d.Category,
				"confidence":  d.Confidence,
				"usage_count": 1,
				"created_at":  now,
				"updated_at":  now,
			}
			if vec := e.embed(ctx, d.ID, d.Content); vec != nil {
				fields["embedding"] = e.codec.Serialize(vec)
			}
			if err := e.store.UpsertByKey(store.TablePatterns, models.Row{"id": d.ID}, fields); err != nil {
				e.diags.Record(diag.KindStoreUnavailable, "patterns", "pattern insert failed",
					map[string]any{"id": d.ID, "error": err.Error()})
				continue
			}
			results = append(results, Upserted{ID: d.ID, New: true, Contributing: d.Contributing})
			continue
		}

		conf := min64(prior.Confidence+RediscoveryIncrement, categoryCap(prior.Category))
		fields := models.Row{
			"confidence":  conf,
			"usage_count": prior.UsageCount + 1,
			"updated_at":  now,
		}
		if _, ok := e.codec.Parse(prior.RawEmbedding); !ok {
			if vec := e.embed(ctx, d.ID, prior.Content); vec != nil {
				fields["embedding"] = e.codec.Serialize(vec)
			}
		}
		if err := e.store.UpsertByKey(store.TablePatterns, models.Row{"id": d.ID}, fields); err != nil {
			e.diags.Record(diag.KindStoreUnavailable, "patterns", "pattern update failed",
				map[string]any{"id": d.ID, "error": err.Error()})
			continue
		}
		results = append(results, Upserted{ID: d.ID, New: false, Contributing: d.Contributing})
	}
	return results, nil
}

func (e *Extractor) loadCatalogue() (map[string]models.NeuralPattern, error) {
	rows, err := e.store.SelectRecent(store.TablePatterns, e.catalogueWindow)
	if err != nil {
		return nil, err
	}
	catalogue := make(map[string]models.NeuralPattern, len(rows))
	for _, row := range rows {
		pat := models.PatternFromRow(row)
		if pat.ID != "" {
			catalogue[pat.ID] = pat
		}
	}
	return catalogue, nil
}

// embed generates an embedding for a pattern, returning nil on any
// failure. Failures are never silent: the pattern id is always logged.
func (e *Extractor) embed(ctx context.Context, patternID, content string) []float32 {
	if e.embedder == nil || content == "" {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		e.logger.Warn("pattern embedding generation failed", "pattern_id", patternID, "error", err)
		e.diags.Record(diag.KindMalformedInput, "patterns", "pattern embedding generation failed",
			map[string]any{"pattern_id": patternID, "error": err.Error()})
		return nil
	}
	if v := e.codec.Validate(vec); !v.Valid {
		e.logger.Warn("pattern embedding invalid", "pattern_id", patternID, "reason", v.Reason)
		return nil
	}
	return vec
}

func categoryCap(category string) float64 {
	switch category {
	case models.CategoryComponent:
		return capComponent
	default:
		return capFileType
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
