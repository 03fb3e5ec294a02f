package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/treescope/internal/config"
	"github.com/conneroisu/treescope/internal/ingest"
	"github.com/conneroisu/treescope/internal/tree"
)

var replayFollow bool

var replayCmd = &cobra.Command{
	Use:   "replay <session.jsonl>",
	Short: "Replay a recorded session into a fresh tree",
	Long: `Replay a recorded session log into a fresh tree and report what it
builds. Malformed lines are counted and skipped, the same way live
ingestion treats them.

With --follow the command keeps the tree alive after the replay and
tails the log for further events until interrupted.

Examples:
  treescope replay session.jsonl       # replay and summarize
  treescope replay -f session.jsonl    # replay, then tail the log`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolVarP(&replayFollow, "follow", "f", false, "Keep tailing the session log after replay")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)
	path := args[0]

	t := tree.New(nil)
	defer t.Close()
	applier := ingest.NewApplier(t, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if replayFollow {
		// The follower's initial catch-up performs the replay.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		fmt.Printf("Following %s (Ctrl+C to stop)\n", path)
		follower := ingest.NewFollower(path, applier, logger, 0)
		if err := follower.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("following session: %w", err)
		}
		fmt.Printf("Final tree: %d nodes\n", t.Len())
		return nil
	}

	applied, rejected, err := ingest.ReplayFile(ctx, path, applier)
	if err != nil {
		return fmt.Errorf("replaying session: %w", err)
	}

	fmt.Printf("Replayed %s: %d events applied, %d rejected\n", path, applied, rejected)
	fmt.Printf("Resulting tree: %d nodes, %d attached in document order\n",
		t.Len(), attachedCount(t))
	return nil
}

// attachedCount walks the document once; materialized but detached nodes are
// mapped yet unreachable from the root.
func attachedCount(t *tree.Tree) int {
	count := 0
	t.Walk(func(*tree.Node) bool {
		count++
		return false
	}, tree.None, tree.None)
	return count
}
