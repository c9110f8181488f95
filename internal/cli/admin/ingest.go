package admin

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/loader"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the chunk index from the document corpus",
		Long: `Load every supported document under the source, split it into chunks,
drop duplicates, embed the rest and replace the pgvector index.

The source is a local directory or s3://bucket/prefix. With --watch the
command keeps running and rebuilds after local files change.`,
		Example: `  docchatd ingest --source ./docs
  docchatd ingest --source s3://course-notes/week1 --chunk-size 800
  docchatd ingest --watch --interval 1m`,
		Args: cobra.NoArgs,
		RunE: runIngest,
	}

	cmd.Flags().Bool("watch", false, "Keep running and rebuild when documents change")
	cmd.Flags().Duration("interval", 30*time.Second, "Minimum time between rebuilds with --watch")
	addDatabaseFlags(cmd.Flags())
	cmd.Flags().AddFlagSet(cli.BuildFlags())

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.UsesPostgres() {
		return fmt.Errorf("ingest writes a persistent index and requires the pgvector backend")
	}

	watchDocs, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	if watchDocs && loader.IsS3URI(a.cfg.DocsPath) {
		return fmt.Errorf("--watch is not supported for S3 sources")
	}

	builder, err := a.corpusBuilder(ctx)
	if err != nil {
		return err
	}

	result, err := builder.Build(ctx, a.cfg.DocsPath)
	if err != nil {
		return err
	}
	printBuildResult(cmd.OutOrStdout(), result)

	if !watchDocs {
		return nil
	}

	worker, err := a.startReindexWorker(ctx, interval)
	if err != nil {
		return err
	}
	<-ctx.Done()
	worker.Stop()
	return nil
}

func printBuildResult(w io.Writer, r *domain.BuildResult) {
	fmt.Fprintf(w, "Run:                %s\n", r.RunID)
	fmt.Fprintf(w, "Source:             %s\n", r.Source)
	fmt.Fprintf(w, "Documents loaded:   %d\n", r.DocumentsLoaded)
	if r.DocumentsSkipped > 0 {
		fmt.Fprintf(w, "Documents skipped:  %d\n", r.DocumentsSkipped)
	}
	fmt.Fprintf(w, "Chunks split:       %d\n", r.ChunksSplit)
	fmt.Fprintf(w, "Duplicates dropped: %d\n", r.DuplicatesDropped)
	fmt.Fprintf(w, "Chunks persisted:   %d\n", r.ChunksPersisted)
	fmt.Fprintf(w, "Duration:           %s\n", r.Duration.Round(time.Millisecond))
}

// contextOrBackground guards commands invoked without ExecuteContext.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
