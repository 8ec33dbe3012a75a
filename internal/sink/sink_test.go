package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/storage"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Subtitle A — Income Taxes":       "Subtitle_A_Income_Taxes",
		"  Chapter 1 (Sections 1 to 5)  ": "Chapter_1_Sections_1_to_5",
		"Part I-A: Special rules, etc.":   "Part_I-A_Special_rules_etc",
		"":                                "unknown",
		"§§§":                             "unknown",
		strings.Repeat("abcdefghij", 8):   strings.Repeat("abcdefghij", 5),
		"Chapter 2A\tUnearned  income":    "Chapter_2A_Unearned_income",
	}
	for in, want := range cases {
		got := SanitizeName(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.LessOrEqual(t, len([]rune(got)), 50)
	}
}

func newSink(t *testing.T, mirrors ...storage.Provider) (*FileSystemSink, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	return New(store, nil, mirrors...), dir
}

func TestWriteSectionLayoutAndOverwrite(t *testing.T) {
	t.Parallel()

	s, dir := newSink(t)
	content := crawler.SectionContent{
		SectionNumber: "1",
		Title:         "Tax imposed",
		Citation:      "26 U.S.C. § 1",
		Subsections: []crawler.Subsection{
			{ID: "a", Citation: "26 U.S.C. § 1(a)", Text: "(a) Married individuals", HTML: "<p>(a) Married individuals</p>"},
		},
	}

	path, err := s.WriteSection(context.Background(), content, "Subtitle A — Income Taxes", "Chapter 1 — Normal Taxes", "1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Subtitle_A_Income_Taxes", "Chapter_1_Normal_Taxes", "section_1.json"), path)

	content.Title = "Tax imposed (amended)"
	_, err = s.WriteSection(context.Background(), content, "Subtitle A — Income Taxes", "Chapter 1 — Normal Taxes", "1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got crawler.SectionContent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Tax imposed (amended)", got.Title)
	assert.Contains(t, string(data), "<p>(a) Married individuals</p>", "markup is not HTML-escaped")
}

func TestWriteChapterSummary(t *testing.T) {
	t.Parallel()

	s, dir := newSink(t)
	chapter := &crawler.Node{
		Title: "Chapter 1 — Normal Taxes",
		Level: crawler.LevelChapter,
		Children: []*crawler.Node{
			{Title: "Sec. 1", Level: crawler.LevelSection, SectionNumber: "1", Complete: true},
			{Title: "Part I", Level: crawler.LevelPart, Children: []*crawler.Node{
				{Title: "Sec. 2", Level: crawler.LevelSection, SectionNumber: "2", Complete: true},
			}},
		},
	}

	path, err := s.WriteChapterSummary(context.Background(), chapter, "Subtitle A")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Subtitle_A", "Chapter_1_Normal_Taxes", ChapterSummaryFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Subtitle A", got["subtitle"])
	assert.EqualValues(t, 2, got["section_count"])
	assert.Equal(t, "Chapter 1 — Normal Taxes", got["title"])
}

func TestWriteSectionMirrorsAndToleratesMirrorFailure(t *testing.T) {
	t.Parallel()

	good := &storage.MockProvider{}
	good.On("Save", mock.Anything, "Subtitle_A/Chapter_1/section_2.json", mock.Anything).Return(nil).Once()
	bad := &storage.MockProvider{}
	bad.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unavailable")).Once()

	s, _ := newSink(t, good, bad)
	_, err := s.WriteSection(context.Background(), crawler.SectionContent{SectionNumber: "2"}, "Subtitle A", "Chapter 1", "2")
	require.NoError(t, err)

	good.AssertExpectations(t)
	bad.AssertExpectations(t)
}

func TestWriteSectionReportsPersistenceError(t *testing.T) {
	t.Parallel()

	s, dir := newSink(t)
	blocker := filepath.Join(dir, "Subtitle_A")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o600))

	_, err := s.WriteSection(context.Background(), crawler.SectionContent{}, "Subtitle A", "Chapter 1", "3")
	var perr *crawler.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "write", perr.Op)
}
