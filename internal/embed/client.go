// Package embed provides the embedding endpoint client, the canonical
// full-trace text builder, and the chunker feeding the vector index.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/embedcache"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// Request bounds.
const (
	// defaultEmbedTimeout bounds one embedding round trip.
	defaultEmbedTimeout = 90 * time.Second

	// maxAttempts caps retries on server-side failures.
	maxAttempts = 3

	// backoffBase is the base for exponential retry backoff: 2s, 4s, 8s.
	backoffBase = 2 * time.Second
)

// ErrNoEmbedding is recorded when the endpoint returns an empty or
// malformed embeddings array.
var ErrNoEmbedding = errors.New("embed: endpoint returned no embedding")

// Client talks to an Ollama-style embedding endpoint. The first successful
// response pins the vector size; until then the configured expected
// dimension is used for zero-vector fallbacks.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
	metrics  *checkpoint.Registry
	cache    *embedcache.Cache
	logger   *slog.Logger

	mu         sync.Mutex
	vectorSize int
}

// NewClient creates an embedding client. expectedDim sizes zero-vector
// fallbacks until the first successful response fixes the real dimension.
func NewClient(endpoint, model string, expectedDim int, metrics *checkpoint.Registry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		model:      model,
		http:       &http.Client{Timeout: defaultEmbedTimeout},
		metrics:    metrics,
		logger:     logger,
		vectorSize: expectedDim,
	}
}

// SetCache attaches a vector cache. Only real endpoint responses are
// cached; zero-vector fallbacks never are.
func (c *Client) SetCache(cache *embedcache.Cache) {
	c.cache = cache
}

// VectorSize returns the current vector dimension.
func (c *Client) VectorSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.vectorSize
}

// Embed returns the vector for one input text. Inputs are truncated to the
// embed-text bound. Server-side failures retry with exponential backoff up
// to maxAttempts; any other failure yields a zero vector of the expected
// dimension and records an error sample. Latency is always recorded.
func (c *Client) Embed(ctx context.Context, input string) ([]float32, error) {
	input = logmodel.Truncate(input, logmodel.MaxEmbedTextBytes)

	if c.cache != nil {
		if vector := c.cache.Get(input); vector != nil {
			return vector, nil
		}
	}

	var lastErr error

	for attempt := range maxAttempts {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vector, retryable, err := c.embedOnce(ctx, input)
		if err == nil {
			if c.cache != nil {
				c.cache.Put(input, vector)
			}

			return vector, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !retryable {
			break
		}
	}

	c.recordError(ctx)
	c.logger.Warn("embedding failed, substituting zero vector",
		slog.String("error", lastErr.Error()),
	)

	return c.zeroVector(), nil
}

// EmbedBatch embeds each text in order. The returned slice is positional;
// failed entries hold zero vectors.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		vectors[i] = vector
	}

	return vectors, nil
}

// embedOnce performs a single request. The second return value reports
// whether the failure is retryable (server-side).
func (c *Client) embedOnce(ctx context.Context, input string) ([]float32, bool, error) {
	start := time.Now()

	vector, retryable, err := c.doRequest(ctx, input)

	c.recordLatency(ctx, time.Since(start))

	return vector, retryable, err
}

func (c *Client) doRequest(ctx context.Context, input string) ([]float32, bool, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": input,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build embed request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("embed request: server status %d", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("embed request: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read embed response: %w", err)
	}

	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}

	unmarshalErr := json.Unmarshal(data, &parsed)
	if unmarshalErr != nil {
		return nil, false, fmt.Errorf("decode embed response: %w", unmarshalErr)
	}

	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, false, ErrNoEmbedding
	}

	vector := parsed.Embeddings[0]

	c.mu.Lock()
	c.vectorSize = len(vector)
	c.mu.Unlock()

	return vector, false, nil
}

func (c *Client) zeroVector() []float32 {
	return make([]float32, c.VectorSize())
}

func (c *Client) recordLatency(ctx context.Context, d time.Duration) {
	if c.metrics == nil {
		return
	}

	err := c.metrics.RecordLatency(ctx, checkpoint.ServiceEmbed, float64(d.Milliseconds()))
	if err != nil {
		c.logger.Debug("latency sample dropped", slog.String("error", err.Error()))
	}
}

func (c *Client) recordError(ctx context.Context) {
	if c.metrics == nil {
		return
	}

	err := c.metrics.RecordError(ctx, checkpoint.ServiceEmbed)
	if err != nil {
		c.logger.Debug("error sample dropped", slog.String("error", err.Error()))
	}
}
