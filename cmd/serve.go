package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/treescope/internal/config"
	"github.com/conneroisu/treescope/internal/ingest"
	"github.com/conneroisu/treescope/internal/metrics"
	"github.com/conneroisu/treescope/internal/notify"
	"github.com/conneroisu/treescope/internal/server"
	"github.com/conneroisu/treescope/internal/tree"
)

var (
	serveSeedHTML string
	serveRecord   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inspector server",
	Long: `Start the inspector server: an HTTP API over the live tree, a minimal
index page, Prometheus metrics and a websocket streaming subtree deltas.

Mutation events arrive through POST /api/events as JSON lines, or by
tailing a session log (ingest.session_file with ingest.follow).

Examples:
  treescope serve                          # empty tree, wait for events
  treescope serve -p 9000                  # custom port
  treescope serve --seed-html index.html   # seed the tree from a document
  treescope serve --record session.jsonl   # record ingested events`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8675, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringVar(&serveSeedHTML, "seed-html", "", "Seed the tree from an HTML document")
	serveCmd.Flags().StringVar(&serveRecord, "record", "", "Append ingested events to a session log")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	sched := notify.NewBatcher(cfg.Notify.Tick)
	t := tree.New(sched)
	defer t.Close()
	m := metrics.New()

	srv := server.New(cfg, logger, t, m)

	if serveSeedHTML != "" {
		f, err := os.Open(serveSeedHTML)
		if err != nil {
			return fmt.Errorf("opening seed document: %w", err)
		}
		count, err := ingest.ImportHTML(t, f, tree.RootID)
		f.Close()
		if err != nil {
			return fmt.Errorf("seeding tree: %w", err)
		}
		fmt.Printf("Seeded %d nodes from %s\n", count, serveSeedHTML)
	}

	if serveRecord != "" {
		rec, err := ingest.CreateRecorder(serveRecord)
		if err != nil {
			return fmt.Errorf("opening session log: %w", err)
		}
		defer rec.Close()
		srv.Applier().WithRecorder(rec)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Ingest.SessionFile != "" && cfg.Ingest.Follow {
		follower := ingest.NewFollower(cfg.Ingest.SessionFile,
			ingest.NewApplier(t, logger, m), logger, 0)
		go func() {
			if err := follower.Run(ctx); err != nil {
				logger.Error(ctx, err, "session follower stopped")
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Error(ctx, shutdownErr, "error during shutdown")
		}
		cancel()
	}()

	fmt.Printf("Starting treescope inspector at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
