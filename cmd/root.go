package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/app"
	"github.com/JakeFAU/irc-crawler/internal/checkpoint"
	"github.com/JakeFAU/irc-crawler/internal/config"
	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/logging"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
	"github.com/JakeFAU/irc-crawler/internal/tracker"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close() error
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetStore() *local.Store
	GetTracker() *tracker.Tracker
	GetCheckpoints() *checkpoint.Store
	Engine(ctx context.Context) (*crawler.Engine, error)
	Reset() error
}

// newApp is the application factory. It's a variable so we can
// replace it in tests.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	app       App
	logCloser io.Closer
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "irccrawler",
		Short: "Resumable crawler for the Internal Revenue Code table of contents.",
		Long: `irccrawler walks the public IRC table of contents one page at a time,
writing every section to disk as JSON. Progress is checkpointed after each
section and subtitle, so an interrupted crawl resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load config, build the logger, then build and inject the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, closer, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        logFile(cfg),
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			appInstance, err := newApp(cfg, logger)
			if err != nil {
				_ = closer.Close()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, &runtime{app: appInstance, logCloser: closer})
			cmd.SetContext(ctx)
			return nil
		},

		// Shut services down once the subcommand returns.
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			rt, ok := cmd.Context().Value(appKey).(*runtime)
			if !ok || rt == nil {
				return nil
			}
			err := rt.app.Close()
			_ = rt.app.GetLogger().Sync()
			_ = rt.logCloser.Close()
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); IRCCRAWLER_* env vars override it")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// logFile resolves a relative log file into the output directory.
func logFile(cfg config.Config) string {
	if cfg.Logging.File == "" || filepath.IsAbs(cfg.Logging.File) {
		return cfg.Logging.File
	}
	return filepath.Join(cfg.Output.Dir, cfg.Logging.File)
}

func resolveApp(ctx context.Context) (App, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil || rt.app == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return rt.app, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "irccrawler: %v\n", err)
		os.Exit(1)
	}
}
