package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cortex/internal/system"
)

// indexCmd builds or refreshes the workspace index
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the workspace",
	Long: `Parses every source file in the workspace into summaries and code
chunks and stores them in the local vector index. Unchanged files are
skipped via content hashes; a matching cache marker skips the run
entirely.`,
	RunE: runIndex,
}

// watchCmd indexes, then keeps the index live
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and reindex on change",
	Long: `Runs the indexer, then watches the workspace for file changes and
reindexes incrementally. Editor save storms are debounced into single
batches. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func runIndex(cmd *cobra.Command, args []string) error {
	sys, err := system.Boot(cmd.Context(), workspace)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.EnsureIndexed(cmd.Context()); err != nil {
		return err
	}

	stats := sys.Indexer.Stats()
	fmt.Println(headerStyle.Render("Index"))
	if stats.SkippedCache {
		fmt.Println("  up to date (cache markers match)")
		return nil
	}
	fmt.Printf("  files indexed:   %d\n", stats.FilesIndexed)
	fmt.Printf("  summaries added: %d\n", stats.SummariesAdded)
	fmt.Printf("  chunks added:    %d\n", stats.ChunksAdded)
	fmt.Printf("  duration:        %s\n", stats.Duration)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := system.Boot(ctx, workspace)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.EnsureIndexed(ctx); err != nil {
		return err
	}
	if err := sys.StartWatcher(ctx); err != nil {
		return err
	}
	fmt.Println(headerStyle.Render("Watching ") + workspace)

	<-ctx.Done()

	ws := sys.Watcher().Stats()
	fmt.Printf("\n  events seen: %d  debounced: %d  batches: %d  reindexed: %d  deleted: %d\n",
		ws.EventsSeen, ws.EventsDebounced, ws.BatchesFlushed, ws.FilesReindexed, ws.FilesDeleted)
	return nil
}
