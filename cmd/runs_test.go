package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadpipe/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	runs := []model.Run{
		{
			ID:       "abc12345-6789-0000-0000-000000000000",
			Source:   model.SourceTwitterCSV,
			Provider: "clado",
			Status:   model.RunStatusComplete,
			Counters: model.RunCounters{
				Fetched:   20,
				Qualified: 12,
				Enriched:  9,
			},
			StartedAt:  now,
			FinishedAt: &done,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Source:    model.SourceLinkedInJobs,
			Provider:  "apollo",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "clado")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "def12345")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
	// An unfinished run has no duration to show.
	assert.Contains(t, output, "-")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	first := now.Add(2 * time.Minute)
	second := now.Add(8 * time.Minute)

	runs := []model.Run{
		{
			ID:         "1",
			Status:     model.RunStatusComplete,
			Counters:   model.RunCounters{Fetched: 50, Qualified: 30, Enriched: 25},
			StartedAt:  now,
			FinishedAt: &first,
		},
		{
			ID:         "2",
			Status:     model.RunStatusComplete,
			Counters:   model.RunCounters{Fetched: 40, Qualified: 20, Enriched: 18},
			StartedAt:  now.Add(5 * time.Minute),
			FinishedAt: &second,
		},
		{
			ID:        "3",
			Status:    model.RunStatusFailed,
			Error:     "pipeline: fetch: connection refused",
			Counters:  model.RunCounters{Fetched: 10},
			StartedAt: now.Add(10 * time.Minute),
		},
		{
			ID:        "4",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(15 * time.Minute),
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Complete)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 100, stats.Fetched)
	assert.Equal(t, 50, stats.Qualified)
	assert.Equal(t, 43, stats.Enriched)
	// Average duration of the 2 complete runs: (120s + 180s) / 2 = 150s.
	assert.InDelta(t, 150.0, stats.AvgDurSecs, 0.1)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "4")
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "Running:")
	assert.Contains(t, output, "Candidates fetched:")
	assert.Contains(t, output, "100")
	assert.Contains(t, output, "150.0s")
}

func TestRunsStats_Empty(t *testing.T) {
	stats := computeRunStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AvgDurSecs)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
