package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// StatusInfo is the terminal view of one repository's indexing state.
type StatusInfo struct {
	Repository   string     `json:"repository"`
	State        string     `json:"state"` // "not_indexed", "in_progress", "completed", "failed"
	IndexedFiles int        `json:"indexed_files"`
	TotalFiles   int        `json:"total_files"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`

	// Stored totals, zero until the first run completes.
	Chunks    int64    `json:"chunks"`
	Nodes     int64    `json:"nodes"`
	Edges     int64    `json:"edges"`
	Languages []string `json:"languages,omitempty"`
}

// StatusRenderer displays repository status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Repository: "+info.Repository))

	_, _ = fmt.Fprintf(r.out, "  State:  %s\n", r.renderState(info.State))

	switch info.State {
	case "in_progress":
		if info.TotalFiles > 0 {
			_, _ = fmt.Fprintf(r.out, "  Files:  %d / %d\n", info.IndexedFiles, info.TotalFiles)
		}
		if !info.StartedAt.IsZero() {
			_, _ = fmt.Fprintf(r.out, "  Started: %s\n", formatTime(info.StartedAt))
		}
	case "failed":
		if info.Error != "" {
			_, _ = fmt.Fprintf(r.out, "  Error:  %s\n", r.styles.Error.Render(info.Error))
		}
		if info.CompletedAt != nil {
			_, _ = fmt.Fprintf(r.out, "  Failed: %s\n", formatTime(*info.CompletedAt))
		}
	case "completed":
		_, _ = fmt.Fprintf(r.out, "  Files:  %d\n", info.IndexedFiles)
		if info.CompletedAt != nil {
			_, _ = fmt.Fprintf(r.out, "  Indexed: %s\n", formatTime(*info.CompletedAt))
		}
	}

	if info.Chunks > 0 || info.Nodes > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Stored:")
		_, _ = fmt.Fprintf(r.out, "    Chunks: %d\n", info.Chunks)
		_, _ = fmt.Fprintf(r.out, "    Nodes:  %d\n", info.Nodes)
		_, _ = fmt.Fprintf(r.out, "    Edges:  %d\n", info.Edges)
	}

	if len(info.Languages) > 0 {
		_, _ = fmt.Fprintf(r.out, "\n  Languages: %s\n", strings.Join(info.Languages, ", "))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderState colors a repository state.
func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "completed":
		return r.styles.Success.Render(state)
	case "in_progress":
		return r.styles.Active.Render(state)
	case "failed":
		return r.styles.Error.Render(state)
	case "not_indexed":
		return r.styles.Dim.Render(state)
	default:
		return state
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
