package embedding

import (
	"math"
	"testing"
)

func TestCodecParse(t *testing.T) {
	c := NewCodec(3)

	t.Run("packed little-endian bytes decode", func(t *testing.T) {
		vec, ok := c.Parse(c.Serialize([]float32{1, -2, 0.5}))
		if !ok {
			t.Fatal("expected packed buffer to decode")
		}
		if vec[0] != 1 || vec[1] != -2 || vec[2] != 0.5 {
			t.Fatalf("unexpected vector: %v", vec)
		}
	})

	t.Run("numeric slice decodes", func(t *testing.T) {
		vec, ok := c.Parse([]float64{1, 2, 3})
		if !ok || vec[2] != 3 {
			t.Fatalf("expected decode, got %v ok=%v", vec, ok)
		}
	})

	t.Run("JSON array string decodes", func(t *testing.T) {
		vec, ok := c.Parse("[0.1, 0.2, 0.3]")
		if !ok || len(vec) != 3 {
			t.Fatalf("expected decode, got %v ok=%v", vec, ok)
		}
	})

	t.Run("JSON stored in a blob column decodes", func(t *testing.T) {
		_, ok := c.Parse([]byte("[1, 2, 3]"))
		if !ok {
			t.Fatal("expected JSON blob to decode")
		}
	})

	t.Run("wrong length is absent", func(t *testing.T) {
		if _, ok := c.Parse([]float64{1, 2}); ok {
			t.Fatal("expected wrong-length vector to be absent")
		}
	})

	t.Run("non-finite element is absent", func(t *testing.T) {
		if _, ok := c.Parse([]float64{1, math.NaN(), 3}); ok {
			t.Fatal("expected NaN vector to be absent")
		}
		if _, ok := c.Parse([]float64{1, math.Inf(1), 3}); ok {
			t.Fatal("expected Inf vector to be absent")
		}
	})

	t.Run("garbage never errors, only absent", func(t *testing.T) {
		for _, raw := range []any{nil, "not json", []byte{1, 2, 3}, 42, []any{"a", "b", "c"}} {
			if _, ok := c.Parse(raw); ok {
				t.Fatalf("expected %v to be absent", raw)
			}
		}
	})
}

func TestCodecSerialize(t *testing.T) {
	c := NewCodec(4)
	vec := []float32{0.25, -1, 3.5, 0}

	buf := c.Serialize(vec)
	if len(buf) != 16 {
		t.Fatalf("expected dim*4 bytes, got %d", len(buf))
	}

	back, ok := c.Parse(buf)
	if !ok {
		t.Fatal("expected serialized buffer to parse")
	}
	for i := range vec {
		if back[i] != vec[i] {
			t.Fatalf("round trip mismatch at %d: %v != %v", i, back[i], vec[i])
		}
	}
}

func TestCodecValidate(t *testing.T) {
	c := NewCodec(3)

	t.Run("reports dimension mismatch", func(t *testing.T) {
		v := c.Validate([]float32{1})
		if v.Valid || v.Reason != "dimension mismatch" {
			t.Fatalf("unexpected validation: %+v", v)
		}
	})

	t.Run("reports first non-finite index", func(t *testing.T) {
		v := c.Validate([]float32{1, float32(math.NaN()), float32(math.NaN())})
		if v.Valid || v.BadIndex != 1 {
			t.Fatalf("unexpected validation: %+v", v)
		}
	})

	t.Run("accepts well-formed vector", func(t *testing.T) {
		if v := c.Validate([]float32{1, 2, 3}); !v.Valid {
			t.Fatalf("unexpected validation: %+v", v)
		}
	})
}
