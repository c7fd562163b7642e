// Package diag is the structured channel every recovered failure passes
// through. The pipeline never aborts a sweep on local failure, but
// nothing recovered is allowed to vanish silently either: each event is
// logged and collected for the sweep result.
package diag

import (
	"log/slog"
	"sync"
)

// Kind classifies a recovered failure.
type Kind string

const (
	// KindMalformedInput covers bad embedding encodings, missing schema
	// columns, and similar data problems recovered by treating the value
	// as absent.
	KindMalformedInput Kind = "malformed_input"
	// KindStoreUnavailable covers missing tables and connection failures
	// recovered by skipping a step with zero effect.
	KindStoreUnavailable Kind = "store_unavailable"
	// KindAnomaly marks conditions that indicate misconfiguration rather
	// than bad data, such as a similarity pass over a non-trivial window
	// producing zero edges.
	KindAnomaly Kind = "anomaly"
	// KindCompressor covers external compressor failures, always
	// recovered by the direct compaction path.
	KindCompressor Kind = "compressor"
)

// Event is one recovered failure.
type Event struct {
	Kind      Kind           `json:"kind"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Recorder collects events and mirrors them to a logger. Anomalies log at
// warn, everything else at info: they were recovered, but a reader
// scanning logs should still find them.
type Recorder struct {
	logger *slog.Logger

	mu     sync.Mutex
	events []Event
}

// NewRecorder returns a recorder mirroring to logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record logs and collects one event.
func (r *Recorder) Record(kind Kind, component, message string, fields map[string]any) {
	attrs := []any{"kind", string(kind), "component", component}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	if kind == KindAnomaly {
		r.logger.Warn(message, attrs...)
	} else {
		r.logger.Info(message, attrs...)
	}

	r.mu.Lock()
	r.events = append(r.events, Event{
		Kind:      kind,
		Component: component,
		Message:   message,
		Fields:    fields,
	})
	r.mu.Unlock()
}

// Drain returns the collected events and clears the recorder.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}
