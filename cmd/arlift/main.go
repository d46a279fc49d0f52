package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arlift/arlift/internal/config"
	"github.com/arlift/arlift/internal/deploy"
	"github.com/arlift/arlift/internal/gitx"
	"github.com/arlift/arlift/internal/registry"
	"github.com/arlift/arlift/internal/store"
	"github.com/arlift/arlift/internal/tracked"
	"github.com/arlift/arlift/internal/tracker"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arlift",
	Short: "Incremental deployment of app directories to permanent storage",
	Long: `arlift publishes an application directory to a content-addressed permanent
storage gateway. Only files whose content changed since the last deployment
are uploaded; a path manifest is reconciled, published, and registered in a
name registry under a commit-derived name.

Change detection is driven by git: only committed/staged files ever leave
the machine, hashed with git's own content hash.`,
	SilenceUsage: true,
}

var deployCmd = &cobra.Command{
	Use:   "deploy [app-dir]",
	Short: "Deploy the app directory, uploading only changed files",
	Long: `Deploy compares the app directory's tracked files against the hashes stored
at the last deployment, uploads what changed, publishes the reconciled path
manifest and points the deployment name at it.

With --dry-run nothing is uploaded or written; placeholder addresses show
what the deployment would produce.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDeploy,
}

var statusCmd = &cobra.Command{
	Use:   "status [app-dir]",
	Short: "Show the last deployment recorded for the app directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arlift %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/arlift/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Deploy command flags
	deployCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate the deployment without uploading or writing anything")

	// Add commands
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appDir := cfg.App.Dir
	if len(args) == 1 {
		appDir = args[0]
	}

	// Create dependencies
	gitClient := gitx.NewShellClient()
	reg := registry.NewHTTPRegistry(cfg.Registry.URL, logger)

	var contentStore store.ContentStore
	if dryRun {
		contentStore = store.NewDryRunStore()
	} else {
		contentStore, err = store.NewHTTPStore(cfg.Gateway.URL, cfg.Gateway.APIKeyFile, cfg.GatewayTimeout(), logger)
		if err != nil {
			return fmt.Errorf("failed to create gateway client: %w", err)
		}
	}

	engine := deploy.NewEngine(cfg, appDir, gitClient, contentStore, reg, logger, dryRun)

	result, err := engine.Deploy(ctx)
	if err != nil {
		logger.Error("deployment failed", "error", err)
		return err
	}

	switch result.Status {
	case deploy.StatusSkipped:
		fmt.Printf("skipped: %s (%s)\n", result.SkipReason, result.Reference)
	case deploy.StatusSucceeded:
		mode := ""
		if result.DryRun {
			mode = " (dry-run)"
		}
		fmt.Printf("deployed%s: %s -> %s\n", mode, result.Name, result.ManifestAddress)
		fmt.Printf("  uploaded: %d files, %d bytes\n", result.Stats.FilesUploaded, result.Stats.BytesUploaded)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appDir := cfg.App.Dir
	if len(args) == 1 {
		appDir = args[0]
	}

	track, err := tracker.Load(trackerPath(appDir))
	if err != nil {
		return err
	}

	if track.LastDeployedReference == "" {
		fmt.Println("never deployed")
		return nil
	}

	fmt.Printf("last deployed: %s at %s\n", track.LastDeployedReference, track.LastDeployedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("deployments:   %d\n", track.DeploymentCount)
	fmt.Printf("tracked files: %d\n", len(track.FileHashes))
	for _, rec := range track.RecentDeployments {
		fmt.Printf("  %s  %s  %s  (%d changed)\n",
			rec.Timestamp.Format("2006-01-02 15:04"), rec.Reference[:min(8, len(rec.Reference))], rec.ContentAddress, len(rec.ChangedPaths))
	}
	return nil
}

func trackerPath(appDir string) string {
	return filepath.Join(appDir, tracked.TrackerFileName)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/arlift/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"app_dir", cfg.App.Dir,
		"gateway", cfg.Gateway.URL,
		"registry", cfg.Registry.URL)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
