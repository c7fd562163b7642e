// Package compress folds neural patterns into compacted long-term
// records, through an external compressor when one is reachable or a
// direct storage path when not.
package compress

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Compressor is the external compaction service abstraction. Compress
// folds one pattern's vector into a compact representation; Compact asks
// the service to run its batch maintenance step.
type Compressor interface {
	Compress(ctx context.Context, patternID string, vec []float32, metadata map[string]any) (data []byte, ratio float64, err error)
	Compact(ctx context.Context) error
}

// Factory constructs a Compressor, typically probing connectivity.
type Factory func() (Compressor, error)

// HTTPCompressor talks to a compression service over HTTP.
type HTTPCompressor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCompressor returns a client for the compressor at baseURL after
// verifying it is reachable.
func NewHTTPCompressor(baseURL string) (*HTTPCompressor, error) {
	c := &HTTPCompressor{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	resp, err := c.httpClient.Get(baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("compressor health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compressor health check: status %d", resp.StatusCode)
	}
	return c, nil
}

type compressRequest struct {
	PatternID string         `json:"pattern_id"`
	Vector    []float32      `json:"vector"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type compressResponse struct {
	Data  string  `json:"data"`
	Ratio float64 `json:"ratio"`
}

// Compress sends one pattern vector to the service.
func (c *HTTPCompressor) Compress(ctx context.Context, patternID string, vec []float32, metadata map[string]any) ([]byte, float64, error) {
	reqBody := compressRequest{
		PatternID: patternID,
		Vector:    vec,
		Metadata:  metadata,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal compress request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/compress", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build compress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("compressor compress: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read compress response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("compressor compress: status %d: %s", resp.StatusCode, string(body))
	}

	var result compressResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, 0, fmt.Errorf("decode compress response: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode compress payload: %w", err)
	}
	if result.Ratio <= 0 {
		return nil, 0, fmt.Errorf("compressor returned non-positive ratio %v", result.Ratio)
	}
	return data, result.Ratio, nil
}

// Compact asks the service to run its batch compaction step.
func (c *HTTPCompressor) Compact(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/compact", nil)
	if err != nil {
		return fmt.Errorf("build compact request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("compressor compact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("compressor compact: status %d", resp.StatusCode)
	}
	return nil
}

var _ Compressor = (*HTTPCompressor)(nil)
