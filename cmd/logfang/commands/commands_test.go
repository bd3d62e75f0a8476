package commands

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Second))
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("not-a-duration", time.Second))
	assert.Equal(t, time.Second, parseDuration("-2s", time.Second))
}

func TestTruncateDisplay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateDisplay("short", 10))
	assert.Equal(t, "exact", truncateDisplay("exact", 5))
	assert.Equal(t, "abcd…", truncateDisplay("abcdefgh", 5))

	// Multibyte input must not be split mid-rune.
	assert.Equal(t, "héll…", truncateDisplay("héllo wörld", 5))
}

func TestShortID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "8f14e45f", shortID("8f14e45f-ceea-467f-9c4e-1b6a7c2d3e4f"))
	assert.Equal(t, "short", shortID("short"))
}

func TestStatusCell(t *testing.T) {
	color.NoColor = true //nolint:reassign // plain strings keep assertions stable

	assert.Equal(t, "COMPLETED", statusCell("COMPLETED"))
	assert.Equal(t, "FAILED", statusCell("FAILED"))
	assert.Equal(t, "PARTIAL", statusCell("PARTIAL"))
	assert.Equal(t, "RUNNING", statusCell("RUNNING"))
}
