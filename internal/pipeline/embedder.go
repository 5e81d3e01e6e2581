// Package pipeline implements the chunking and embedding pipeline: it
// splits note bodies into overlapping windows, embeds them through an
// injected model, and keeps the store's vector index consistent with the
// configured model and dimensionality.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Model() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedderConfig configures the OpenAI-compatible embeddings client.
type HTTPEmbedderConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint. It retries
// transient failures with capped exponential backoff and honors Retry-After.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dims       int
	client     *http.Client
	maxRetries int
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates the embeddings client. The API key is read once
// from the named environment variable; an empty variable is allowed for
// endpoints that do not authenticate (local model servers).
func NewHTTPEmbedder(cfg HTTPEmbedderConfig) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pipeline: embedder base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("pipeline: embedder model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pipeline: embedder dimensions must be positive")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &HTTPEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dims:       cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 5,
	}, nil
}

// Model returns the configured model name.
func (e *HTTPEmbedder) Model() string { return e.model }

// Dimensions returns the configured vector dimensionality.
func (e *HTTPEmbedder) Dimensions() int { return e.dims }

// Embed returns one vector per input text, in order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, _ := json.Marshal(map[string]any{
		"model": e.model,
		"input": texts,
	})
	url := e.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("pipeline: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			if !sleepBackoff(ctx, attempt, "") {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("pipeline: embeddings endpoint: %s", resp.Status)
			if !sleepBackoff(ctx, attempt, retryAfter) {
				return nil, ctx.Err()
			}
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			if !sleepBackoff(ctx, attempt, "") {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("pipeline: embeddings endpoint: %s: %s", resp.Status, truncate(payload, 200))
		}

		vecs, err := decodeEmbeddings(payload, len(texts))
		if err != nil {
			return nil, err
		}
		for i, v := range vecs {
			if len(v) != e.dims {
				return nil, fmt.Errorf("pipeline: embedding %d has %d dims, want %d", i, len(v), e.dims)
			}
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("pipeline: embed failed after %d retries: %w", e.maxRetries, lastErr)
}

// decodeEmbeddings accepts the OpenAI response shape ({data:[{embedding}]})
// and the bare {embeddings:[...]} shape some local servers emit.
func decodeEmbeddings(payload []byte, want int) ([][]float32, error) {
	var openai struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openai); err == nil && len(openai.Data) == want {
		out := make([][]float32, want)
		for i, d := range openai.Data {
			out[i] = d.Embedding
		}
		return out, nil
	}

	var bare struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(payload, &bare); err == nil && len(bare.Embeddings) == want {
		return bare.Embeddings, nil
	}

	return nil, fmt.Errorf("pipeline: unrecognized embeddings response: %s", truncate(payload, 200))
}

// sleepBackoff waits before the next retry: Retry-After seconds when given,
// otherwise exponential backoff capped at 5s. Returns false when ctx ends.
func sleepBackoff(ctx context.Context, attempt int, retryAfter string) bool {
	delay := time.Duration(1<<attempt) * 250 * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			delay = time.Duration(secs) * time.Second
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
