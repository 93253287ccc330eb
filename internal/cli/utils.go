// Package cli provides CLI output formatting for sakuin.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
	"github.com/hyperjump/sakuin/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

var (
	heading = color.New(color.FgGreen, color.Bold).SprintFunc()
	label   = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
	score   = color.New(color.FgYellow).SprintfFunc()
)

// ParseFormat returns the output format named by s; anything but "json" is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(s, string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a semantic search response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SemanticSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%s\n\n", heading(fmt.Sprintf("Found %d results in %dms", response.TotalResults, response.SearchTime)))
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	if len(response.Suggestions) > 0 {
		fmt.Fprintf(w, "%s %s\n", label("Try:"), strings.Join(response.Suggestions, " | "))
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.SemanticSearchResult) {
	fmt.Fprintln(w, faint(rule))
	fmt.Fprintf(w, "%s %d | %s %s | %s %s\n", label("Rank:"), rank, label("Score:"), score("%.4f", result.Score),
		label("Type:"), result.Metadata.Type)
	fmt.Fprintf(w, "%s %s\n", label("ID:"), result.ID)
	if title := result.Metadata.Source.Title; title != "" {
		fmt.Fprintf(w, "%s %s\n", label("Title:"), title)
	}
	if result.Metadata.ProjectID != "" {
		fmt.Fprintf(w, "%s %s\n", label("Project:"), result.Metadata.ProjectID)
	}
	if len(result.Chunks) > 1 {
		fmt.Fprintf(w, "%s %d matching chunks\n", label("Chunks:"), len(result.Chunks))
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Content, 200))
}

// WriteContext writes an assembled RAG context to w.
func WriteContext(w io.Writer, rc *models.RAGContext, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rc)
	}
	fmt.Fprintf(w, "\n%s\n", heading(fmt.Sprintf("Context for %q: %d chunks, %d tokens", rc.Query, len(rc.Chunks), rc.TotalTokens)))
	fmt.Fprintf(w, "%s %s | %s %s\n\n", label("Method:"), rc.RetrievalMethod, label("Confidence:"), score("%.4f", rc.Confidence))
	for _, ch := range rc.Chunks {
		fmt.Fprintln(w, faint(rule))
		fmt.Fprintf(w, "%s\n", faint(ch.ID))
		if ch.Metadata.Speaker != "" {
			fmt.Fprintf(w, "%s ", label(ch.Metadata.Speaker+":"))
		}
		fmt.Fprintf(w, "%s\n\n", ch.Text)
	}
	if len(rc.Sources) > 0 {
		fmt.Fprintln(w, label("Sources:"))
		for _, src := range rc.Sources {
			title := src.Title
			if title == "" {
				title = src.DocumentID
			}
			fmt.Fprintf(w, "  - %s (%s, %d chunks, %s)\n", title, src.Type, len(src.ChunkIDs), score("%.4f", src.Score))
		}
	}
	return nil
}

// WriteStats writes storage statistics and search performance to w.
func WriteStats(w io.Writer, stats *store.StorageStats, perf store.SearchPerformance, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"storage": stats, "search": perf})
	}
	fmt.Fprintln(w, heading("Storage"))
	fmt.Fprintf(w, "  %s %d\n", label("Documents:"), stats.TotalDocuments)
	fmt.Fprintf(w, "  %s %d\n", label("Chunks:"), stats.TotalChunks)
	fmt.Fprintf(w, "  %s %d\n", label("Vectors:"), stats.TotalVectors)
	fmt.Fprintf(w, "  %s %d (%s)\n", label("Indices:"), stats.IndexCount, FormatBytes(stats.EstimatedIndexBytes))
	if stats.DiskBytes > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Disk:"), FormatBytes(stats.DiskBytes))
	}
	for t, n := range stats.ByContentType {
		fmt.Fprintf(w, "  %s %d\n", label(t+":"), n)
	}
	fmt.Fprintln(w, heading("Search"))
	fmt.Fprintf(w, "  %s %d (%d failed)\n", label("Searches:"), perf.TotalSearches, perf.FailedSearches)
	if perf.TotalSearches > 0 {
		fmt.Fprintf(w, "  %s avg %.2fms, min %.2fms, max %.2fms\n", label("Latency:"),
			perf.AvgLatencyMs, perf.MinLatencyMs, perf.MaxLatencyMs)
	}
	return nil
}

// WriteKnowledgeBase writes a knowledge base summary to w.
func WriteKnowledgeBase(w io.Writer, kb *models.KnowledgeBase, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, kb)
	}
	fmt.Fprintln(w, heading(fmt.Sprintf("Knowledge base %s (version %d)", kb.ProjectID, kb.Version)))
	fmt.Fprintf(w, "  %s %d (%d transcriptions, %d documents)\n", label("Items:"), kb.DocumentCount,
		kb.Metadata.Statistics.TranscriptionCount, kb.Metadata.Statistics.DocumentCount)
	fmt.Fprintf(w, "  %s %d\n", label("Chunks:"), kb.ChunkCount)
	fmt.Fprintf(w, "  %s %d\n", label("Tokens:"), kb.TotalTokens)
	if len(kb.Metadata.Languages) > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Languages:"), strings.Join(kb.Metadata.Languages, ", "))
	}
	if len(kb.Metadata.Tags) > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Tags:"), strings.Join(kb.Metadata.Tags, ", "))
	}
	fmt.Fprintf(w, "  %s %s\n", label("Updated:"), kb.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// WriteIndices writes vector index descriptions to w.
func WriteIndices(w io.Writer, infos []vector.IndexInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%s  %s dim=%d metric=%s vectors=%d documents=%d size=%s\n", heading(info.Name), info.Type,
			info.Dimension, info.Metric, info.TotalVectors, info.TotalDocuments, FormatBytes(info.EstimatedBytes))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
