package admin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/spf13/cobra"
)

// IndexCmd returns the index command group
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the persisted chunk index",
	}
	addDatabaseFlags(cmd.PersistentFlags())

	cmd.AddCommand(indexStatusCmd(), indexDropCmd())
	return cmd
}

func indexStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the index size and the latest build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.cfg.UsesPostgres() {
				return fmt.Errorf("index status requires the pgvector backend")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index:  %s\n", a.cfg.IndexName)

			exists, err := a.index.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintln(out, "Status: missing (run \"docchatd ingest\")")
			} else {
				count, err := a.index.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Status: ready, %d chunks\n", count)
			}

			run, err := a.runs.Latest(ctx)
			switch {
			case errors.Is(err, domain.ErrBuildRunNotFound):
				fmt.Fprintln(out, "Last build: none recorded")
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(out, "Last build: %s at %s (%d persisted, %d duplicates, %s)\n",
				run.RunID, run.StartedAt.Local().Format(time.DateTime), run.ChunksPersisted, run.DuplicatesDropped,
				run.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  Source: %s\n", run.Source)
			return nil
		},
	}
}

func indexDropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete the chunk index",
		Long:  "Delete the chunk index table. Chat requests fail with 503 until the next ingest.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.cfg.UsesPostgres() {
				return fmt.Errorf("index drop requires the pgvector backend")
			}

			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Drop index %q?", a.cfg.IndexName)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			if err := a.index.Drop(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped index %s\n", a.cfg.IndexName)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
