package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/tracker"
)

const timeLayout = "2006-01-02 15:04:05 MST"

func newStatusCmd() *cobra.Command {
	var asMarkdown bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints progress recorded in the output directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			progress, err := tracker.ReadProgress(appInstance.GetStore())
			if err != nil {
				return fmt.Errorf("read completion set: %w", err)
			}
			tree, err := appInstance.GetCheckpoints().Load()
			if errors.Is(err, crawler.ErrNoCheckpoint) {
				tree = nil
			} else if err != nil {
				return fmt.Errorf("read tree checkpoint: %w", err)
			}

			baseDir := appInstance.GetStore().BaseDir()
			if asMarkdown {
				return writeStatusMarkdown(cmd.OutOrStdout(), baseDir, progress, tree)
			}
			writeStatusText(cmd.OutOrStdout(), baseDir, progress, tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asMarkdown, "markdown", false, "print the report as Markdown")
	return cmd
}

func writeStatusText(out io.Writer, baseDir string, progress tracker.Progress, tree *crawler.Tree) {
	fmt.Fprintf(out, "Output directory: %s\n", baseDir)
	fmt.Fprintf(out, "Completed sections: %d\n", progress.TotalCompleted)
	if !progress.LastUpdated.IsZero() {
		fmt.Fprintf(out, "Last updated: %s\n", progress.LastUpdated.Format(timeLayout))
	}
	if tree == nil {
		fmt.Fprintln(out, "No tree checkpoint.")
		return
	}
	complete := len(tree.CompletedSubtitles())
	fmt.Fprintf(out, "Subtitles: %d complete, %d partial\n", complete, len(tree.Subtitles)-complete)
	for _, node := range tree.Subtitles {
		mark := " "
		if node.Complete {
			mark = "x"
		}
		fmt.Fprintf(out, "  [%s] %s (%d sections)\n", mark, node.Title, node.CountLevel(crawler.LevelSection))
	}
}

func writeStatusMarkdown(out io.Writer, baseDir string, progress tracker.Progress, tree *crawler.Tree) error {
	md := markdown.NewMarkdown(out)
	md.H1("IRC Crawl Status")
	md.PlainText("")

	lastUpdated := "never"
	if !progress.LastUpdated.IsZero() {
		lastUpdated = progress.LastUpdated.Format(timeLayout)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Output Directory", "`" + baseDir + "`"},
			{"Completed Sections", strconv.Itoa(progress.TotalCompleted)},
			{"Last Updated", lastUpdated},
		},
	})
	md.PlainText("")

	md.H2("Subtitles")
	md.PlainText("")
	if tree == nil {
		md.PlainText("No tree checkpoint.")
		return md.Build()
	}
	rows := make([][]string, 0, len(tree.Subtitles))
	for _, node := range tree.Subtitles {
		state := "partial"
		if node.Complete {
			state = "complete"
		}
		rows = append(rows, []string{
			node.Title,
			state,
			strconv.Itoa(node.CountLevel(crawler.LevelChapter)),
			strconv.Itoa(node.CountLevel(crawler.LevelSection)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Subtitle", "State", "Chapters", "Sections"},
		Rows:   rows,
	})
	return md.Build()
}
