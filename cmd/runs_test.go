package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)

	runs := []model.VerificationRun{
		{
			ID:          "6f1c2a9e-0000-0000-0000-000000000000",
			Variable:    model.VarTemperature2m,
			Models:      []string{"gencast", "aifs"},
			Status:      model.RunStatusComplete,
			Rows:        48,
			Failures:    1,
			StartedAt:   started,
			CompletedAt: &completed,
		},
		{
			ID:        "abc",
			Variable:  model.VarWindSpeed10m,
			Models:    []string{"graphcast"},
			Status:    model.RunStatusRunning,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "6f1c2a9e")
	assert.NotContains(t, out, "6f1c2a9e-0000", "uuid should be shortened")
	assert.Contains(t, out, "gencast,aifs")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "-", "incomplete run has no duration")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "6f1c2a9e", shortID("6f1c2a9e-0000-0000-0000-000000000000"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestFormatSources(t *testing.T) {
	var buf bytes.Buffer
	formatSources(&buf, catalog.Default())
	out := buf.String()

	assert.Contains(t, out, "ID")
	for _, id := range []string{"aifs", "gencast", "graphcast", "fourcastnet", "era5"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "global")
}
