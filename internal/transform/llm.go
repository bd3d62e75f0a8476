package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/normalize"
)

// enrichBatchSize bounds how many rows go into one generation request.
const enrichBatchSize = 10

// defaultGenerateTimeout bounds one generation round trip.
const defaultGenerateTimeout = 60 * time.Second

// enrichmentCategories is the fixed category allowlist for LLM output.
// Anything outside this set is discarded.
var enrichmentCategories = map[string]bool{
	"authentication": true,
	"authorization":  true,
	"data_access":    true,
	"deployment":     true,
	"error":          true,
	"performance":    true,
	"security":       true,
	"system":         true,
	"application":    true,
	"network":        true,
	"configuration":  true,
	"other":          true,
}

// weakCategories are the heuristic outcomes worth refining.
var weakCategories = map[string]bool{
	normalize.CategoryInfo:  true,
	normalize.CategoryDebug: true,
	"other":                 true,
}

// responseLinePattern matches one "<index>. <category>" line.
var responseLinePattern = regexp.MustCompile(`^\s*(\d+)\.\s*([a-z_]+)\s*$`)

// LLMEnricher refines weak message categories through a local
// text-generation endpoint. It is strictly additive: rows keep their
// heuristic category unless the model returns a valid replacement.
type LLMEnricher struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewLLMEnricher creates an enricher against an Ollama-style /api/generate
// endpoint.
func NewLLMEnricher(endpoint, model string, logger *slog.Logger) *LLMEnricher {
	if logger == nil {
		logger = slog.Default()
	}

	return &LLMEnricher{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: defaultGenerateTimeout},
		logger:   logger,
	}
}

// Transform implements Transformer. Heuristic rules run first; rows left
// with a weak category are refined in sub-batches. Any enrichment failure
// downgrades to the heuristic result.
func (e *LLMEnricher) Transform(ctx context.Context, logs []*logmodel.CanonicalLog) error {
	var weak []*logmodel.CanonicalLog

	for _, c := range logs {
		ApplyHeuristic(c)

		if weakCategories[c.MessageCategory] {
			weak = append(weak, c)
		}
	}

	for start := 0; start < len(weak); start += enrichBatchSize {
		end := min(start+enrichBatchSize, len(weak))

		err := e.enrichBatch(ctx, weak[start:end])
		if err != nil {
			e.logger.Warn("llm enrichment failed, keeping heuristic categories",
				slog.Int("batch_start", start),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (e *LLMEnricher) enrichBatch(ctx context.Context, batch []*logmodel.CanonicalLog) error {
	categories, err := e.classify(ctx, batch)
	if err != nil {
		return err
	}

	for idx, category := range categories {
		if idx < len(batch) && category != "" {
			batch[idx].MessageCategory = category
		}
	}

	return nil
}

// classify sends one prompt for the batch and parses the indexed response
// lines. The returned slice is positional; empty entries mean "keep".
func (e *LLMEnricher) classify(ctx context.Context, batch []*logmodel.CanonicalLog) ([]string, error) {
	prompt := buildPrompt(batch)

	body, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate request: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generate response: %w", err)
	}

	var parsed struct {
		Response string `json:"response"`
	}

	unmarshalErr := json.Unmarshal(data, &parsed)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("decode generate response: %w", unmarshalErr)
	}

	return ParseCategoryLines(parsed.Response, len(batch)), nil
}

func buildPrompt(batch []*logmodel.CanonicalLog) string {
	var b strings.Builder

	b.WriteString("Classify each log message into exactly one category from: ")
	b.WriteString("authentication, authorization, data_access, deployment, error, performance, ")
	b.WriteString("security, system, application, network, configuration, other.\n")
	b.WriteString("Respond with one line per message, formatted as \"<index>. <category>\" and nothing else.\n\n")

	for idx, c := range batch {
		b.WriteString(strconv.Itoa(idx + 1))
		b.WriteString(". ")
		b.WriteString(c.MessageSummary)
		b.WriteString("\n")
	}

	return b.String()
}

// ParseCategoryLines extracts allowlisted categories from indexed response
// lines. Indexes are 1-based in the response; out-of-range or unknown
// categories are ignored.
func ParseCategoryLines(response string, count int) []string {
	out := make([]string, count)

	for line := range strings.Lines(response) {
		match := responseLinePattern.FindStringSubmatch(strings.TrimRight(line, "\n"))
		if match == nil {
			continue
		}

		idx, err := strconv.Atoi(match[1])
		if err != nil || idx < 1 || idx > count {
			continue
		}

		category := strings.ToLower(match[2])
		if enrichmentCategories[category] {
			out[idx-1] = category
		}
	}

	return out
}
