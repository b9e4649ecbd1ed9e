package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	// Given: zero-valued status info
	info := StatusInfo{}

	// Then: all fields are zero/empty
	assert.Empty(t, info.Repository)
	assert.Empty(t, info.State)
	assert.Equal(t, 0, info.TotalFiles)
	assert.Equal(t, int64(0), info.Chunks)
	assert.True(t, info.StartedAt.IsZero())
	assert.Nil(t, info.CompletedAt)
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	// Given: populated status info
	completed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	info := StatusInfo{
		Repository:   "test-project",
		State:        "completed",
		IndexedFiles: 100,
		TotalFiles:   100,
		StartedAt:    completed.Add(-2 * time.Minute),
		CompletedAt:  &completed,
		Chunks:       500,
		Nodes:        320,
		Edges:        480,
		Languages:    []string{"go", "python"},
	}

	// When: serializing to JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: JSON is valid and contains expected fields
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "test-project", parsed["repository"])
	assert.Equal(t, "completed", parsed["state"])
	assert.Equal(t, float64(100), parsed["indexed_files"])
	assert.Equal(t, float64(500), parsed["chunks"])
	assert.Equal(t, float64(320), parsed["nodes"])
}

func TestStatusRenderer_Render_Completed(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering a completed repository
	completed := time.Now().Add(-2 * time.Hour)
	info := StatusInfo{
		Repository:   "my-project",
		State:        "completed",
		IndexedFiles: 50,
		TotalFiles:   50,
		CompletedAt:  &completed,
		Chunks:       250,
		Nodes:        180,
		Edges:        300,
		Languages:    []string{"go"},
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: output contains key information
	output := buf.String()
	assert.Contains(t, output, "my-project")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "250")
	assert.Contains(t, output, "2 hours ago")
	assert.Contains(t, output, "go")
}

func TestStatusRenderer_Render_InProgress(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering an in-progress repository
	info := StatusInfo{
		Repository:   "busy-project",
		State:        "in_progress",
		IndexedFiles: 30,
		TotalFiles:   120,
		StartedAt:    time.Now().Add(-30 * time.Second),
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: progress fraction is shown
	output := buf.String()
	assert.Contains(t, output, "in_progress")
	assert.Contains(t, output, "30 / 120")
	assert.Contains(t, output, "just now")
}

func TestStatusRenderer_Render_Failed(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering a failed run
	failedAt := time.Now().Add(-5 * time.Minute)
	info := StatusInfo{
		Repository:  "broken-project",
		State:       "failed",
		CompletedAt: &failedAt,
		Error:       "store unavailable",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: the error is surfaced
	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "store unavailable")
	assert.Contains(t, output, "5 minutes ago")
}

func TestStatusRenderer_Render_NotIndexed(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering a repository that was never indexed
	info := StatusInfo{
		Repository: "fresh-project",
		State:      "not_indexed",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no stored-totals section appears
	output := buf.String()
	assert.Contains(t, output, "not_indexed")
	assert.NotContains(t, output, "Stored:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering as JSON
	info := StatusInfo{
		Repository:   "json-project",
		State:        "completed",
		IndexedFiles: 25,
		Chunks:       100,
	}

	err := r.RenderJSON(info)
	require.NoError(t, err)

	// Then: output is valid JSON
	var parsed StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "json-project", parsed.Repository)
	assert.Equal(t, 25, parsed.IndexedFiles)
}

func TestStatusRenderer_NoColor(t *testing.T) {
	// Given: status renderer with noColor
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	info := StatusInfo{
		Repository: "nocolor-project",
		State:      "completed",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatTime_Relative(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", now.Add(-10 * time.Second), "just now"},
		{"one minute", now.Add(-90 * time.Second), "1 minute ago"},
		{"minutes", now.Add(-10 * time.Minute), "10 minutes ago"},
		{"one hour", now.Add(-90 * time.Minute), "1 hour ago"},
		{"hours", now.Add(-5 * time.Hour), "5 hours ago"},
		{"one day", now.Add(-30 * time.Hour), "1 day ago"},
		{"days", now.Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTime(tt.t))
		})
	}
}

func TestFormatTime_Absolute(t *testing.T) {
	// Given: a time more than a week ago
	old := time.Date(2025, 3, 1, 14, 30, 0, 0, time.Local)

	// Then: falls back to an absolute timestamp
	assert.Equal(t, "2025-03-01 14:30", formatTime(old))
}
