package transform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

func TestHeuristic_FillsMissingCategory(t *testing.T) {
	t.Parallel()

	c := &logmodel.CanonicalLog{Message: "hello"}

	err := NewHeuristic().Transform(context.Background(), []*logmodel.CanonicalLog{c})
	require.NoError(t, err)

	assert.Equal(t, "info", c.MessageCategory)
}

func TestParseCategoryLines(t *testing.T) {
	t.Parallel()

	response := "1. security\n2. network\n3. nonsense\n4. deployment\nnoise line\n"

	got := ParseCategoryLines(response, 4)

	assert.Equal(t, []string{"security", "network", "", "deployment"}, got)
}

func TestParseCategoryLines_OutOfRangeIgnored(t *testing.T) {
	t.Parallel()

	got := ParseCategoryLines("9. security\n1. error\n", 2)

	assert.Equal(t, []string{"error", ""}, got)
}

func TestLLMEnricher_RefinesWeakCategories(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"1. configuration\n"}`))
	}))
	defer server.Close()

	logs := []*logmodel.CanonicalLog{
		{MessageSummary: "reloaded settings", MessageCategory: "info"},
		{MessageSummary: "upstream exploded", MessageCategory: "error"},
	}

	enricher := NewLLMEnricher(server.URL, "test-model", nil)

	err := enricher.Transform(context.Background(), logs)
	require.NoError(t, err)

	assert.Equal(t, "configuration", logs[0].MessageCategory)
	// Strong categories are never sent for refinement.
	assert.Equal(t, "error", logs[1].MessageCategory)
}

func TestLLMEnricher_DowngradesOnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logs := []*logmodel.CanonicalLog{
		{MessageSummary: "ordinary line", MessageCategory: "info"},
	}

	enricher := NewLLMEnricher(server.URL, "test-model", nil)

	err := enricher.Transform(context.Background(), logs)
	require.NoError(t, err)

	assert.Equal(t, "info", logs[0].MessageCategory)
}
