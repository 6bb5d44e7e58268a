package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"observatory/internal/config"
	"observatory/internal/graph"
	"observatory/internal/logging"
	"observatory/internal/pipeline"
	"observatory/internal/platform/moltbook"
	"observatory/internal/publish"
	"observatory/internal/reasoning"
	"observatory/internal/report"
	"observatory/internal/reputation"
	"observatory/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	// Run flags
	skipIngest bool

	// Queue flags
	queueStatus string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "observatory",
	Short: "Moltbook Observatory - batch analytics over scraped platform activity",
	Long: `Moltbook Observatory ingests scraped social activity in batches and derives
an interaction graph, meme genealogy, a conflict ledger, reputation scores,
and injection-pattern alerts. Each batch ends in a field report that is
deliberated by a reviewer council before anything is published.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		return logging.Initialize(cwd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full observation batch",
	Long: `Runs a complete batch under the exclusive run lock:
  1. Ingest recent posts, comment trees, and author profiles
  2. Derive the interaction graph, memes, conflicts, reputation, and alerts
  3. Assemble the field report and put it before the council
  4. Publish the approved artifact set atomically

A second run on the same host exits immediately while the lock is held.
Use --skip-ingest to re-analyze previously ingested activity only.`,
	RunE: runBatch,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull recent feed activity into the store without analyzing",
	RunE:  runIngest,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the field report for the latest batch from stored data",
	RunE:  printReport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents, lock state, and configuration health",
	RunE:  showStatus,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List publications by status",
	RunE:  showQueue,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "observatory.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	runCmd.Flags().BoolVar(&skipIngest, "skip-ingest", false, "Analyze previously ingested activity only")
	queueCmd.Flags().StringVar(&queueStatus, "status", store.StatusPendingReview, "Publication status to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runContext returns a context cancelled by the timeout or SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

func openStore() (*store.Store, error) {
	return store.New(cfg.Storage.DatabasePath)
}

func feedClient() *moltbook.Client {
	return moltbook.NewClient(moltbook.Config{
		BaseURL: cfg.Platform.BaseURL,
		APIKey:  cfg.Platform.APIKey,
		Timeout: cfg.GetPlatformTimeout(),
	})
}

func reasoningClient() reasoning.Client {
	if cfg.LLM.APIKey == "" {
		logger.Warn("No OpenRouter API key configured; council deliberation will fail closed")
	}
	return reasoning.NewOpenRouterClientWithConfig(reasoning.OpenRouterConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.CouncilModel(),
		Timeout:     cfg.GetLLMTimeout(),
		MaxRetries:  cfg.LLM.MaxRetries,
		MinInterval: cfg.GetLLMMinInterval(),
		SiteURL:     cfg.LLM.Referer,
		SiteName:    cfg.LLM.Title,
	})
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := runContext()
	defer cancel()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var feed moltbook.Feed
	if !skipIngest {
		feed = feedClient()
	}

	runner := pipeline.New(st, cfg, reasoningClient(), feed)
	res, err := runner.Run(ctx)
	if errors.Is(err, publish.ErrLockHeld) {
		logger.Warn("Another run holds the lock; exiting", zap.String("lock", cfg.Publish.LockPath))
		return err
	}
	if err != nil {
		return err
	}

	logger.Info("Batch complete",
		zap.Int64("batch", res.Batch.Seq),
		zap.Int("posts", res.Ingested.Posts),
		zap.Int("comments", res.Ingested.Comments),
		zap.Int("skipped", res.Ingested.Skipped),
		zap.Int("edges", res.Edges),
		zap.Int("memes", res.Memes),
		zap.Int("new_alerts", res.NewAlerts),
		zap.String("publication", res.Outcome.Verdict),
	)
	if res.Outcome.ArtifactPath != "" {
		fmt.Printf("Published: %s\n", res.Outcome.ArtifactPath)
	} else {
		fmt.Printf("Publication %s: %s\n", res.Outcome.Verdict, res.Outcome.FailureNote)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	batch, err := st.BeginBatch(fmt.Sprintf("ingest-%d", time.Now().Unix()))
	if err != nil {
		return err
	}

	ing := pipeline.NewIngestor(st, feedClient(), cfg.Platform.PageSize)
	stats, err := ing.Ingest(ctx, batch.Seq)
	if err != nil {
		return err
	}
	if err := st.CompleteBatch(batch.ID, stats.Posts, stats.Comments, stats.Skipped); err != nil {
		return err
	}

	fmt.Printf("Batch %d: %d posts, %d comments, %d actors (%d skipped)\n",
		batch.Seq, stats.Posts, stats.Comments, stats.Actors, stats.Skipped)
	return nil
}

// printReport rebuilds the latest batch's report from stored tables. It
// performs no ingestion, deliberation, or publication.
func printReport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	seq, err := st.LatestBatchSeq()
	if err != nil {
		return err
	}
	if seq == 0 {
		return fmt.Errorf("no batches on record; run 'observatory run' first")
	}

	snap, err := st.LoadSnapshot()
	if err != nil {
		return err
	}
	memes, err := st.SurfacedMemes()
	if err != nil {
		return err
	}
	conflicts, err := st.AllConflicts()
	if err != nil {
		return err
	}
	entries, err := st.ReputationForBatch(seq)
	if err != nil {
		return err
	}
	shocks, err := reputation.New(st, cfg.Analysis.Reputation).Shocks(seq)
	if err != nil {
		return err
	}
	alerts, err := st.AllAlerts()
	if err != nil {
		return err
	}
	attempts, err := st.AttemptCounts()
	if err != nil {
		return err
	}
	var campaigns []string
	for actor, n := range attempts {
		if n >= cfg.Analysis.Security.CampaignThreshold {
			campaigns = append(campaigns, actor)
		}
	}
	sort.Strings(campaigns)

	in := &report.Inputs{
		Snapshot:   snap,
		Graph:      graph.Build(snap),
		Memes:      memes,
		Conflicts:  conflicts,
		Reputation: entries,
		Shocks:     shocks,
		Alerts:     alerts,
		Campaigns:  campaigns,
	}
	rep := report.New().Assemble(seq, in)
	fmt.Print(rep.Content)
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("Moltbook Observatory Status")
	fmt.Println("===========================")
	fmt.Printf("Version: %s\n", cfg.Version)
	fmt.Printf("Config:  %s\n", configPath)
	fmt.Println()

	if cfg.LLM.APIKey != "" {
		fmt.Println("✓ OpenRouter API key configured")
	} else {
		fmt.Println("✗ OpenRouter API key not configured")
	}
	fmt.Printf("✓ Council model: %s\n", cfg.CouncilModel())

	info, err := publish.InspectLock(cfg.Publish.LockPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Println("✓ No run in progress")
	case err != nil:
		fmt.Printf("✗ Lock unreadable: %v\n", err)
	default:
		fmt.Printf("! Run in progress: owner=%s pid=%d since=%s\n",
			info.Owner, info.PID, info.AcquiredAt.Format(time.RFC3339))
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	seq, err := st.LatestBatchSeq()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Latest batch: %d\n", seq)

	stats, err := st.GetStats()
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(stats))
	for t := range stats {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	fmt.Println("\nStore:")
	for _, t := range tables {
		fmt.Printf("  %-20s %d\n", t, stats[t])
	}
	return nil
}

func showQueue(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pubs, err := st.PublicationsByStatus(queueStatus)
	if err != nil {
		return err
	}
	if len(pubs) == 0 {
		fmt.Printf("No publications with status %q\n", queueStatus)
		return nil
	}

	fmt.Printf("%-36s  %-19s  %s\n", "ID", "UPDATED", "TITLE")
	for _, p := range pubs {
		fmt.Printf("%-36s  %-19s  %s\n", p.ID, p.UpdatedAt.Format("2006-01-02 15:04:05"), p.Title)
		if p.ArtifactPath != "" {
			fmt.Printf("%38s%s\n", "", p.ArtifactPath)
		}
	}
	return nil
}
