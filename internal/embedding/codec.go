// Package embedding handles vector encoding and generation. Raw stored
// embeddings are heterogeneous (packed bytes, numeric arrays, JSON
// strings from older writers); the codec decodes them once at this
// boundary so the rest of the pipeline only ever sees a fixed-length
// vector or absent.
package embedding

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
)

// Codec parses, validates, and serializes fixed-length float32 vectors.
// All methods are pure; malformed input is expected historical data and
// decodes to absent rather than an error.
type Codec struct {
	dim int
}

// NewCodec returns a codec for vectors of the given dimension.
func NewCodec(dim int) *Codec {
	return &Codec{dim: dim}
}

// Dim returns the configured vector dimension.
func (c *Codec) Dim() int { return c.dim }

// Parse decodes a raw stored embedding into a vector. It accepts a packed
// little-endian float32 buffer, a numeric slice, or a JSON-encoded array
// string. The second return is false (absent) unless the decoded length
// matches the configured dimension and every element is finite.
func (c *Codec) Parse(raw any) ([]float32, bool) {
	var vec []float32

	switch v := raw.(type) {
	case nil:
		return nil, false
	case []float32:
		vec = append([]float32{}, v...)
	case []float64:
		vec = make([]float32, len(v))
		for i, f := range v {
			vec[i] = float32(f)
		}
	case []any:
		vec = make([]float32, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				vec = append(vec, float32(n))
			case int64:
				vec = append(vec, float32(n))
			case int:
				vec = append(vec, float32(n))
			default:
				return nil, false
			}
		}
	case []byte:
		// Older writers stored JSON text in the blob column; sniff for it
		// before treating the buffer as packed floats.
		if looksLikeJSONArray(v) {
			return c.parseJSON(string(v))
		}
		if len(v) == 0 || len(v)%4 != 0 {
			return nil, false
		}
		vec = make([]float32, len(v)/4)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(v[i*4:]))
		}
	case string:
		return c.parseJSON(v)
	default:
		return nil, false
	}

	if c.Validate(vec).Valid {
		return vec, true
	}
	return nil, false
}

func (c *Codec) parseJSON(s string) ([]float32, bool) {
	var parsed []float64
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, false
	}
	vec := make([]float32, len(parsed))
	for i, f := range parsed {
		vec[i] = float32(f)
	}
	if c.Validate(vec).Valid {
		return vec, true
	}
	return nil, false
}

// Serialize encodes a vector as a packed little-endian float32 buffer of
// dim*4 bytes, the inverse of Parse on the packed form.
func (c *Codec) Serialize(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Validation reports why a vector failed validation. BadIndex is the
// position of the first non-finite element, or -1.
type Validation struct {
	Valid    bool
	Reason   string
	BadIndex int
}

// Validate checks a decoded vector against the configured dimension and
// for non-finite elements.
func (c *Codec) Validate(vec []float32) Validation {
	if len(vec) != c.dim {
		return Validation{
			Valid:    false,
			Reason:   "dimension mismatch",
			BadIndex: -1,
		}
	}
	for i, f := range vec {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return Validation{
				Valid:    false,
				Reason:   "non-finite element",
				BadIndex: i,
			}
		}
	}
	return Validation{Valid: true, BadIndex: -1}
}

func looksLikeJSONArray(b []byte) bool {
	s := strings.TrimSpace(string(b))
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}
