package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

const (
	defaultSubtitleLimit = 100
	maxSubtitleLimit     = 1000
)

// StatsSource reports live crawl counters.
type StatsSource interface {
	Stats() crawler.StatsSnapshot
}

// TreeLoader reads the last saved tree checkpoint.
type TreeLoader interface {
	Load() (*crawler.Tree, error)
}

// ProgressHandler exposes read-only crawl progress endpoints.
type ProgressHandler struct {
	stats  StatsSource
	trees  TreeLoader
	logger *zap.Logger
}

// NewProgressHandler wires the stats source, checkpoint reader, and logger.
func NewProgressHandler(stats StatsSource, trees TreeLoader, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		stats:  stats,
		trees:  trees,
		logger: logger,
	}
}

// Live handles GET /progress and returns the engine's counters.
func (h *ProgressHandler) Live(w http.ResponseWriter, _ *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl not running")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// Subtitles handles GET /progress/subtitles?status=&limit=&offset=. It returns
// {"subtitles": [...], "total_sections": n} from the tree checkpoint, 404 when
// no checkpoint has been written yet, or 400 for invalid filters.
func (h *ProgressHandler) Subtitles(w http.ResponseWriter, r *http.Request) {
	if h.trees == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoint store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSubtitleLimit, maxSubtitleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tree, err := h.trees.Load()
	if err != nil {
		if errors.Is(err, crawler.ErrNoCheckpoint) {
			writeError(w, http.StatusNotFound, "no checkpoint")
			return
		}
		h.logger.Error("load checkpoint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load checkpoint")
		return
	}

	subtitles := make([]subtitleDTO, 0, len(tree.Subtitles))
	for _, node := range tree.Subtitles {
		if filter != "" && (filter == "complete") != node.Complete {
			continue
		}
		subtitles = append(subtitles, toSubtitleDTO(node))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated_at":     tree.Metadata.UpdatedAt,
		"total_sections": tree.SectionCount(),
		"subtitles":      page(subtitles, limit, offset),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "all":
		return "", nil
	case "complete", "done":
		return "complete", nil
	case "partial", "incomplete":
		return "partial", nil
	default:
		return "", errors.New("invalid status")
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func toSubtitleDTO(node *crawler.Node) subtitleDTO {
	return subtitleDTO{
		Title:    node.Title,
		URL:      node.URL,
		Complete: node.Complete,
		Chapters: node.CountLevel(crawler.LevelChapter),
		Sections: len(node.Leaves()),
	}
}

type subtitleDTO struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Complete bool   `json:"complete"`
	Chapters int    `json:"chapters"`
	Sections int    `json:"sections"`
}
