package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/catalog"
	"github.com/light-rec/lr-ibcf/internal/config"
	"github.com/light-rec/lr-ibcf/internal/logging"
	"github.com/light-rec/lr-ibcf/internal/recommend"
	"github.com/light-rec/lr-ibcf/internal/server"
	"github.com/light-rec/lr-ibcf/internal/ui"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
	"github.com/light-rec/lr-ibcf/internal/watcher"
)

var (
	// version is set at build time
	version = "dev"

	// CLI flags
	debug        bool
	configPath   string
	forceReindex bool
	limit        int
	copyIDs      bool
	watch        bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lr-ibcf",
		Short:         "Item-to-item recommendations from user ratings",
		Long:          "lr-ibcf ranks catalog items by the cosine similarity of their rating vectors and keeps the best N",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.lr-ibcf/config.yaml)")

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Set ranking and storage options",
		Args:  cobra.NoArgs,
		RunE:  runConfigure,
	}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Load the catalog into the vector store",
		Args:  cobra.NoArgs,
		RunE:  runIndex,
	}
	indexCmd.Flags().BoolVarP(&forceReindex, "force", "f", false, "Force reindexing (bypass cache)")

	listItemsCmd := &cobra.Command{
		Use:   "list-items",
		Short: "List indexed items",
		Args:  cobra.NoArgs,
		RunE:  runListItems,
	}

	similarCmd := &cobra.Command{
		Use:   "similar <item-id>",
		Short: "Show the items most similar to an item",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimilar,
	}
	similarCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of items to return (default from config)")
	similarCmd.Flags().BoolVar(&copyIDs, "copy", false, "Copy the returned item IDs to the clipboard")

	scoreCmd := &cobra.Command{
		Use:   "score <item-a> <item-b>",
		Short: "Show the similarity of two items",
		Args:  cobra.ExactArgs(2),
		RunE:  runScore,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reindex when catalog files change")

	rootCmd.AddCommand(configureCmd, indexCmd, listItemsCmd, similarCmd, scoreCmd, serveCmd)
	return rootCmd
}

// setup loads configuration and builds the logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(debug || cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Debug("configuration loaded",
		zap.Int("capacity", cfg.TopK.Capacity),
		zap.String("zero_magnitude", string(cfg.TopK.ZeroMagnitude)),
		zap.String("catalog_dir", cfg.Catalog.Dir),
		zap.String("store", string(cfg.Store.Driver)))

	return cfg, logger, nil
}

// openEngine indexes the catalog (reusing a valid store) and builds an engine over it
func openEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*recommend.Manager, *recommend.Engine, error) {
	manager := recommend.NewManager(cfg, logger)
	if _, err := manager.Index(ctx, false); err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("failed to index catalog: %w", err)
	}

	engine, err := recommend.NewEngine(manager.Store(), recommend.Options{
		Capacity:      cfg.TopK.Capacity,
		ZeroMagnitude: cfg.TopK.ZeroMagnitude,
		Logger:        logger,
	})
	if err != nil {
		manager.Close()
		return nil, nil, err
	}

	return manager, engine, nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	ui.ShowSection("lr-ibcf Configuration")

	exists, err := config.Exists(configPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if !exists {
			return err
		}
		ui.ShowWarning(fmt.Sprintf("Existing configuration is invalid: %v", err))
		if cfg, err = config.Default(); err != nil {
			return err
		}
	}
	if !exists {
		ui.ShowInfo("No configuration found. Starting from defaults.\n")
	}

	if err := ui.PromptConfig(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	path := configPath
	if path == "" {
		path, _ = config.GetConfigPath()
	}
	ui.ShowSuccess(fmt.Sprintf("Configuration saved to %s", path))

	if err := os.MkdirAll(cfg.Catalog.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	has, err := catalog.HasItems(cfg.Catalog.Dir)
	if err != nil {
		return err
	}
	if !has {
		ui.ShowInfo(fmt.Sprintf("Add item files (.md with features in the frontmatter) to: %s", cfg.Catalog.Dir))
		return nil
	}

	reindex, err := ui.PromptYesNo("Index the catalog now?", true)
	if err != nil || !reindex {
		return err
	}
	return runIndex(cmd, nil)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ui.ShowSection("Indexing Catalog")

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	has, err := catalog.HasItems(cfg.Catalog.Dir)
	if err != nil {
		return fmt.Errorf("failed to check for items: %w", err)
	}
	if !has {
		ui.ShowWarning("No item files found")
		ui.ShowInfo(fmt.Sprintf("Add .md files to: %s", cfg.Catalog.Dir))
		return nil
	}

	if forceReindex {
		ui.ShowInfo("Force reindexing (--force flag)")
	}

	manager := recommend.NewManager(cfg, logger)
	defer manager.Close()

	stats, err := manager.Index(cmd.Context(), forceReindex)
	if err != nil {
		return fmt.Errorf("failed to index catalog: %w", err)
	}

	if stats.Cached {
		ui.ShowSuccess(fmt.Sprintf("Store is up to date (%d items)", stats.Items))
		return nil
	}
	ui.ShowSuccess(fmt.Sprintf("Indexed %d items (%s, %.1fs)", stats.Items, stats.Reason, stats.Duration.Seconds()))

	fmt.Println()
	for _, item := range manager.Items() {
		fmt.Printf("  • %s (%d ratings)\n", item.ID, len(item.Features))
	}

	return nil
}

func runListItems(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	manager, _, err := openEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	var records []vectorstore.Record
	err = manager.Store().Scan(cmd.Context(), func(rec vectorstore.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return err
	}

	if len(records) == 0 {
		ui.ShowWarning("No items indexed")
		ui.ShowInfo(fmt.Sprintf("Add .md files to %s and run 'lr-ibcf index'", cfg.Catalog.Dir))
		return nil
	}

	ui.ShowSection("Items")
	fmt.Printf("Indexed %s\n\n", ui.FormatAge(manager.IndexTime()))

	cyan := color.New(color.FgCyan)
	for _, rec := range records {
		cyan.Printf("%s", rec.ID)
		if rec.Title != "" {
			fmt.Printf("  %s", rec.Title)
		}
		fmt.Println()
		fmt.Printf("   Ratings: %d\n", len(rec.Vector))
		if cats := rec.Metadata["categories"]; cats != "" {
			fmt.Printf("   Categories: %s\n", cats)
		}
	}

	fmt.Printf("\nCatalog directory: %s\n", cfg.Catalog.Dir)
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	manager, engine, err := openEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	res, err := engine.Similar(cmd.Context(), args[0], limit)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			ui.ShowError(fmt.Sprintf("Unknown item: %s", args[0]))
			ui.ShowInfo("Run 'lr-ibcf list-items' to see indexed items")
		}
		return err
	}

	plain := !ui.IsTerminal(os.Stdout)
	if err := ui.WriteMatches(os.Stdout, res.Items, plain); err != nil {
		return err
	}
	if !plain {
		fmt.Printf("\n%d candidates: %d admitted, %d rejected, %d skipped\n",
			res.Considered, res.Admitted, res.Rejected, res.Skipped)
	}

	if copyIDs {
		if err := clipboard.WriteAll(ui.MatchIDs(res.Items)); err != nil {
			ui.ShowError(fmt.Sprintf("Failed to copy to clipboard: %v", err))
		} else {
			ui.ShowSuccess("Item IDs copied to clipboard!")
		}
	}

	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	manager, engine, err := openEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	score, err := engine.Score(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("%.6f\n", score)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, engine, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	if watch {
		if err := manager.EnsureCatalogDir(); err != nil {
			return err
		}
		w := watcher.NewWatcher(cfg.Catalog.Dir, func() {
			if _, err := manager.Index(ctx, false); err != nil {
				logger.Warn("reindex after catalog change failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch catalog: %w", err)
		}
		defer w.Stop()
		logger.Info("Watching catalog", zap.String("dir", cfg.Catalog.Dir))
	}

	srv := server.NewServer(engine, manager.Store(), cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
