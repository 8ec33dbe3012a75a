package crawler

import (
	"errors"
	"strings"
)

// Config holds the settings for a crawl run.
// It is decoupled from Viper so the engine can be configured in tests directly.
type Config struct {
	// TOCURL is the root table-of-contents page.
	TOCURL string
	// NotifyTopic is the topic section notifications are published to.
	NotifyTopic string
}

// Validate checks the configuration for required values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TOCURL) == "" {
		return errors.New("toc url is required")
	}
	return nil
}

// RunOptions selects how a run treats existing checkpoints.
type RunOptions struct {
	// Resume skips subtitles recorded complete in the tree checkpoint.
	Resume bool
	// Subtitles restricts the run to subtitles with these letters.
	Subtitles []string
}

// RunResult summarizes a finished, paused, or aborted run.
type RunResult struct {
	RunID  string
	Paused bool
	Final  bool
	Stats  StatsSnapshot
	Tree   *Tree
}
