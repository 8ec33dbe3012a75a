// Package cmd defines and implements the CLI commands for the irccrawler executable.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/irc-crawler/internal/api"
	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

type crawlMode int

const (
	modeCancel crawlMode = iota
	modeFresh
	modeResume
)

type crawlFlags struct {
	resume    bool
	fresh     bool
	yes       bool
	subtitles []string
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the table of contents and writes every section",
		Long: `Walks subtitle, chapter, subchapter, part, and subpart pages down to
individual sections and writes each section to {output}/{subtitle}/{chapter}.
Press Ctrl+C once to pause after the current unit; progress is saved and the
next 'crawl --resume' continues from there. A second Ctrl+C exits immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume from the saved checkpoint")
	cmd.Flags().BoolVar(&flags.fresh, "fresh", false, "ignore the saved tree checkpoint (completed sections are still skipped)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "do not prompt; resume when a checkpoint exists")
	cmd.Flags().StringSliceVar(&flags.subtitles, "subtitle", nil, "only crawl these subtitles (letters, repeatable)")
	cmd.MarkFlagsMutuallyExclusive("resume", "fresh")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, flags *crawlFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	out := cmd.OutOrStdout()

	mode, err := selectMode(cmd.InOrStdin(), out, flags, appInstance)
	if err != nil {
		return err
	}
	if mode == modeCancel {
		fmt.Fprintln(out, "Crawl cancelled.")
		return nil
	}

	engine, err := appInstance.Engine(cmd.Context())
	if err != nil {
		return err
	}

	runCtx, pause := context.WithCancel(cmd.Context())
	defer pause()
	stopSignals := watchSignals(pause, logger)
	defer stopSignals()

	if addr := appInstance.GetConfig().Status.Addr; addr != "" {
		server := api.NewServer(
			api.NewProgressHandler(engine, appInstance.GetCheckpoints(), logger.Named("api")),
			logger.Named("api"),
		)
		serverCtx, stopServer := context.WithCancel(context.WithoutCancel(cmd.Context()))
		var servers errgroup.Group
		servers.Go(func() error {
			return server.ListenAndServe(serverCtx, addr)
		})
		defer func() {
			stopServer()
			if err := servers.Wait(); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	if mode == modeResume {
		fmt.Fprintln(out, "Resuming from last saved progress. Press Ctrl+C to pause.")
	} else {
		fmt.Fprintln(out, "Starting fresh crawl. Press Ctrl+C to pause.")
	}

	result, err := engine.Run(runCtx, crawler.RunOptions{
		Resume:    mode == modeResume,
		Subtitles: flags.subtitles,
	})
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}

	printResult(out, result, appInstance.GetConfig().Output.Dir)
	logger.Info("Crawl command finished.",
		zap.String("run_id", result.RunID),
		zap.Bool("paused", result.Paused),
		zap.Int64("sections_written", result.Stats.SectionsWritten))
	return nil
}

// selectMode turns flags, and when needed an interactive answer, into a mode.
func selectMode(in io.Reader, out io.Writer, flags *crawlFlags, appInstance App) (crawlMode, error) {
	switch {
	case flags.resume:
		return modeResume, nil
	case flags.fresh:
		return modeFresh, nil
	}

	hasCheckpoint := appInstance.GetCheckpoints().Exists()
	completedSubtitles := 0
	if hasCheckpoint {
		tree, err := appInstance.GetCheckpoints().Load()
		if err != nil {
			return modeCancel, fmt.Errorf("read tree checkpoint: %w", err)
		}
		completedSubtitles = len(tree.CompletedSubtitles())
	}
	if flags.yes {
		if hasCheckpoint {
			return modeResume, nil
		}
		return modeFresh, nil
	}

	return prompt(in, out, hasCheckpoint, completedSubtitles, appInstance.GetTracker().Len())
}

func prompt(in io.Reader, out io.Writer, hasCheckpoint bool, completedSubtitles, completedSections int) (crawlMode, error) {
	reader := bufio.NewReader(in)
	if !hasCheckpoint {
		fmt.Fprint(out, "Start crawling? (yes/no): ")
		answer, err := readAnswer(reader)
		if err != nil {
			return modeCancel, err
		}
		if answer == "yes" || answer == "y" {
			return modeFresh, nil
		}
		return modeCancel, nil
	}

	fmt.Fprintf(out, "Existing progress detected: %d subtitles complete, %d sections complete.\n",
		completedSubtitles, completedSections)
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  1. Start fresh crawl (completed sections are kept)")
	fmt.Fprintln(out, "  2. Resume from last saved progress")
	fmt.Fprintln(out, "  3. Cancel")
	fmt.Fprint(out, "Choose option (1/2/3): ")
	answer, err := readAnswer(reader)
	if err != nil {
		return modeCancel, err
	}
	switch answer {
	case "1":
		return modeFresh, nil
	case "2":
		return modeResume, nil
	default:
		return modeCancel, nil
	}
}

func readAnswer(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// watchSignals pauses the crawl on the first SIGINT/SIGTERM and exits the
// process on the second.
func watchSignals(pause context.CancelFunc, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("Pause requested, finishing current unit", zap.String("signal", sig.String()))
			pause()
		case <-done:
			return
		}
		select {
		case sig := <-sigCh:
			logger.Error("Second signal received, exiting without saving", zap.String("signal", sig.String()))
			os.Exit(130)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func printResult(out io.Writer, result crawler.RunResult, outputDir string) {
	stats := result.Stats
	switch {
	case result.Paused:
		fmt.Fprintln(out, "Crawl paused. Run 'irccrawler crawl --resume' to continue.")
	case result.Final:
		fmt.Fprintf(out, "Crawl completed. Results are in %s.\n", outputDir)
	default:
		fmt.Fprintln(out, "Crawl finished.")
	}
	fmt.Fprintf(out, "  Sections written: %d\n", stats.SectionsWritten)
	fmt.Fprintf(out, "  Sections skipped: %d\n", stats.SectionsSkipped)
	fmt.Fprintf(out, "  Sections failed:  %d\n", stats.SectionsFailed)
	fmt.Fprintf(out, "  Pages fetched:    %d\n", stats.PagesFetched)
}
