package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/spf13/cobra"
)

const previewLen = 60

// ChunksCmd returns the chunks command group
func ChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Inspect the persisted chunk index",
		Long:  "List, view and search the chunks stored by the last ingest. Positions are 1-based and follow document order.",
	}
	cmd.PersistentFlags().Bool("json", false, "Output as JSON")
	addDatabaseFlags(cmd.PersistentFlags())

	cmd.AddCommand(chunksListCmd(), chunksViewCmd(), chunksSearchCmd())
	return cmd
}

func chunksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chunks in sequence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetInt("start")
			count, _ := cmd.Flags().GetInt("count")
			return withInspector(cmd, func(ctx context.Context, inspector *service.ChunkInspector) error {
				listing, err := inspector.List(ctx, start, count)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), listingJSON(listing))
				}
				printListing(cmd.OutOrStdout(), listing)
				return nil
			})
		},
	}
	cmd.Flags().Int("start", 1, "First position to show")
	cmd.Flags().Int("count", 20, "Number of chunks to show")
	return cmd
}

func chunksViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <position>",
		Short: "Show one chunk with line statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", args[0], err)
			}
			return withInspector(cmd, func(ctx context.Context, inspector *service.ChunkInspector) error {
				view, err := inspector.View(ctx, position)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), viewJSON(view))
				}
				printView(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

func chunksSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Find chunks containing a term (case-insensitive)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			maxResults, _ := cmd.Flags().GetInt("max")
			return withInspector(cmd, func(ctx context.Context, inspector *service.ChunkInspector) error {
				matches, err := inspector.Search(ctx, term, maxResults)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), matches)
				}
				printMatches(cmd.OutOrStdout(), term, matches)
				return nil
			})
		},
	}
	cmd.Flags().Int("max", 10, "Maximum number of matches")
	return cmd
}

func withInspector(cmd *cobra.Command, fn func(context.Context, *service.ChunkInspector) error) error {
	ctx := contextOrBackground(cmd)

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.UsesPostgres() {
		return fmt.Errorf("chunk inspection reads the persisted index and requires the pgvector backend")
	}
	return fn(ctx, service.NewChunkInspector(a.index))
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type chunkJSON struct {
	Position    int    `json:"position"`
	ID          string `json:"id"`
	SourceFile  string `json:"source_file"`
	PageNumber  *int   `json:"page_number"`
	Fingerprint string `json:"fingerprint"`
	Length      int    `json:"length"`
	Text        string `json:"text,omitempty"`
}

func toChunkJSON(position int, c domain.IndexedChunk, withText bool) chunkJSON {
	out := chunkJSON{
		Position:    position,
		ID:          c.ID,
		SourceFile:  c.Chunk.SourceFile,
		PageNumber:  c.Chunk.PageNumber,
		Fingerprint: c.Fingerprint,
		Length:      c.Chunk.Len(),
	}
	if withText {
		out.Text = c.Chunk.Text
	}
	return out
}

func listingJSON(l *service.ChunkListing) map[string]any {
	chunks := make([]chunkJSON, 0, len(l.Chunks))
	for i, c := range l.Chunks {
		chunks = append(chunks, toChunkJSON(l.Start+i, c, false))
	}
	return map[string]any{"start": l.Start, "total": l.Total, "chunks": chunks}
}

func viewJSON(v *service.ChunkView) map[string]any {
	return map[string]any{
		"chunk":           toChunkJSON(v.Position, v.Chunk, true),
		"total_lines":     v.TotalLines,
		"non_empty_lines": v.NonEmptyLines,
		"avg_line_length": v.AvgLineLength,
		"formula_lines":   v.FormulaLines,
	}
}

func pageLabel(page *int) string {
	if page == nil {
		return "-"
	}
	return strconv.Itoa(*page)
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen]) + "..."
}

func printListing(w io.Writer, l *service.ChunkListing) {
	if len(l.Chunks) == 0 {
		fmt.Fprintf(w, "No chunks at position %d (index holds %d).\n", l.Start, l.Total)
		return
	}
	fmt.Fprintf(w, "Chunks %d-%d of %d\n\n", l.Start, l.Start+len(l.Chunks)-1, l.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tSOURCE\tPAGE\tLEN\tPREVIEW")
	for i, c := range l.Chunks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", l.Start+i, c.Chunk.SourceFile, pageLabel(c.Chunk.PageNumber), c.Chunk.Len(), preview(c.Chunk.Text))
	}
	_ = tw.Flush()
}

func printView(w io.Writer, v *service.ChunkView) {
	fmt.Fprintf(w, "Chunk %d\n", v.Position)
	fmt.Fprintf(w, "  ID:          %s\n", v.Chunk.ID)
	fmt.Fprintf(w, "  Source:      %s\n", v.Chunk.Chunk.SourceFile)
	fmt.Fprintf(w, "  Page:        %s\n", pageLabel(v.Chunk.Chunk.PageNumber))
	fmt.Fprintf(w, "  Fingerprint: %s\n", v.Chunk.Fingerprint)
	fmt.Fprintf(w, "  Length:      %d characters\n\n", v.Length)

	for _, line := range v.Lines {
		fmt.Fprintf(w, "%4d | %s\n", line.Number, line.Text)
	}

	fmt.Fprintf(w, "\nLines: %d total, %d non-empty, %.1f average length\n", v.TotalLines, v.NonEmptyLines, v.AvgLineLength)
	if len(v.FormulaLines) > 0 {
		fmt.Fprintln(w, "\nFormula lines:")
		for _, line := range v.FormulaLines {
			fmt.Fprintf(w, "%4d | %s\n", line.Number, strings.TrimSpace(line.Text))
		}
		if v.FormulaOverrun > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", v.FormulaOverrun)
		}
	}
}

func printMatches(w io.Writer, term string, matches []service.ChunkMatch) {
	if len(matches) == 0 {
		fmt.Fprintf(w, "No chunks contain %q.\n", term)
		return
	}
	fmt.Fprintf(w, "%d match(es) for %q\n\n", len(matches), term)
	for _, m := range matches {
		fmt.Fprintf(w, "[%d] at %d: ...%s...\n", m.Position, m.Offset, strings.ReplaceAll(m.Context, "\n", " "))
	}
}
