// Package sink writes section payloads and chapter summaries beneath the
// output directory, optionally mirroring each file to remote stores.
package sink

import (
	"context"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/storage"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
)

// ChapterSummaryFile is written in each chapter directory once the chapter completes.
const ChapterSummaryFile = "_chapter_summary.json"

const maxNameRunes = 50

var (
	invalidNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)
	whitespaceRuns   = regexp.MustCompile(`\s+`)
)

// SanitizeName turns a hierarchy title into a directory name: characters
// other than letters, digits, underscore, whitespace, and hyphen are removed,
// whitespace runs become one underscore, and the result is cut to 50 runes.
func SanitizeName(name string) string {
	cleaned := invalidNameChars.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, "_")
	if runes := []rune(cleaned); len(runes) > maxNameRunes {
		cleaned = string(runes[:maxNameRunes])
	}
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// SectionObject is the path of a section file relative to the output root.
func SectionObject(subtitle, chapter, number string) string {
	return path.Join(SanitizeName(subtitle), SanitizeName(chapter), "section_"+number+".json")
}

// ChapterSummary is the payload of a chapter summary file.
type ChapterSummary struct {
	Subtitle     string `json:"subtitle"`
	SectionCount int    `json:"section_count"`
	*crawler.Node
}

// FileSystemSink implements crawler.SectionWriter on the local store.
type FileSystemSink struct {
	store   *local.Store
	mirrors []storage.Provider
	logger  *zap.Logger
}

// New returns a sink writing into store. Mirror failures are logged and
// never fail the write.
func New(store *local.Store, logger *zap.Logger, mirrors ...storage.Provider) *FileSystemSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemSink{store: store, mirrors: mirrors, logger: logger}
}

// WriteSection writes {subtitle}/{chapter}/section_{number}.json, replacing
// any existing file, and returns its path.
func (s *FileSystemSink) WriteSection(
	ctx context.Context,
	content crawler.SectionContent,
	subtitle, chapter, number string,
) (string, error) {
	return s.write(ctx, SectionObject(subtitle, chapter, number), content)
}

// WriteChapterSummary writes {subtitle}/{chapter}/_chapter_summary.json.
func (s *FileSystemSink) WriteChapterSummary(ctx context.Context, chapter *crawler.Node, subtitle string) (string, error) {
	name := path.Join(SanitizeName(subtitle), SanitizeName(chapter.Title), ChapterSummaryFile)
	return s.write(ctx, name, ChapterSummary{
		Subtitle:     subtitle,
		SectionCount: chapter.CountLevel(crawler.LevelSection),
		Node:         chapter,
	})
}

func (s *FileSystemSink) write(ctx context.Context, name string, payload any) (string, error) {
	fullPath, err := s.store.Path(name)
	if err != nil {
		return "", &crawler.PersistenceError{Op: "resolve", Path: name, Err: err}
	}
	data, err := storage.EncodeJSON(payload)
	if err != nil {
		return "", &crawler.PersistenceError{Op: "encode", Path: fullPath, Err: err}
	}
	if err := s.store.Save(ctx, name, data); err != nil {
		return "", &crawler.PersistenceError{Op: "write", Path: fullPath, Err: err}
	}
	for _, mirror := range s.mirrors {
		if err := mirror.Save(ctx, name, data); err != nil {
			s.logger.Warn("mirror write failed", zap.String("object", name), zap.Error(err))
		}
	}
	return fullPath, nil
}
