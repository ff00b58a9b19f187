package review

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reviewbot/internal/diff"
	"reviewbot/internal/retriever"
	"reviewbot/internal/store"
)

type fakeRetriever struct {
	chunks  []store.GuidelineChunk
	queries []string
}

func (f *fakeRetriever) Search(ctx context.Context, query string, opts retriever.Options) ([]store.GuidelineChunk, error) {
	f.queries = append(f.queries, query)
	return f.chunks, nil
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func newTestReviewer(response string) (*Reviewer, *fakeRetriever, *fakeGenerator) {
	ret := &fakeRetriever{}
	gen := &fakeGenerator{response: response}
	return NewReviewer(ret, gen, zap.NewNop()), ret, gen
}

const simpleDiff = `diff --git a/src/main.py b/src/main.py
--- a/src/main.py
+++ b/src/main.py
@@ -1,3 +1,4 @@
 import os
+password = "hunter2"
 import sys
`

func TestParseResponseFencedJSON(t *testing.T) {
	r, _, _ := newTestReviewer("")
	response := "```json\n" +
		`[{"file": "src/main.py", "line": 5, "severity": "critical", "message": "security issue"}]` +
		"\n```"

	comments := r.parseResponse(response, "src/main.py")

	require.Len(t, comments, 1)
	assert.Equal(t, SeverityCritical, comments[0].Severity)
	assert.Equal(t, 5, comments[0].Line)
}

func TestParseResponseBareJSON(t *testing.T) {
	r, _, _ := newTestReviewer("")
	comments := r.parseResponse(`[{"file": "a.py", "line": 1, "severity": "info", "message": "ok"}]`, "a.py")
	assert.Len(t, comments, 1)
}

func TestParseResponseEmptyArray(t *testing.T) {
	r, _, _ := newTestReviewer("")
	assert.Empty(t, r.parseResponse("[]", "a.py"))
}

func TestParseResponseInvalidJSON(t *testing.T) {
	r, _, _ := newTestReviewer("")
	assert.Empty(t, r.parseResponse("this is not JSON at all", "a.py"))
}

func TestParseResponseMultipleComments(t *testing.T) {
	r, _, _ := newTestReviewer("")
	response := "```json\n" + `[
  {"file": "a.py", "line": 3, "severity": "critical", "message": "SQL injection risk"},
  {"file": "a.py", "line": 10, "severity": "warning", "message": "bare except clause"},
  {"file": "a.py", "line": 15, "severity": "info", "message": "consider type hints"}
]` + "\n```"

	comments := r.parseResponse(response, "a.py")

	require.Len(t, comments, 3)
	assert.Equal(t, SeverityCritical, comments[0].Severity)
	assert.Equal(t, SeverityWarning, comments[1].Severity)
	assert.Equal(t, SeverityInfo, comments[2].Severity)
}

func TestParseResponseDefaultsMissingFields(t *testing.T) {
	r, _, _ := newTestReviewer("")
	comments := r.parseResponse(`[{"message": "found a problem"}]`, "fallback.py")

	require.Len(t, comments, 1)
	assert.Equal(t, "fallback.py", comments[0].File)
	assert.Zero(t, comments[0].Line)
	assert.Equal(t, SeverityInfo, comments[0].Severity)
}

func TestReviewCallsRetrieverPerFile(t *testing.T) {
	r, ret, gen := newTestReviewer("[]")

	comments, err := r.Review(context.Background(), simpleDiff)

	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Len(t, ret.queries, 1)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, ret.queries[0], "password")
}

func TestReviewReturnsComments(t *testing.T) {
	response := "```json\n" +
		`[{"file": "src/main.py", "line": 2, "severity": "critical", "message": "hardcoded credential"}]` +
		"\n```"
	r, _, _ := newTestReviewer(response)

	comments, err := r.Review(context.Background(), simpleDiff)

	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "src/main.py", comments[0].File)
}

func TestReviewSkipsBinaryFiles(t *testing.T) {
	r, _, gen := newTestReviewer("[]")

	diffText := `diff --git a/image.png b/image.png
new file mode 100644
Binary files /dev/null and b/image.png differ`

	comments, err := r.Review(context.Background(), diffText)

	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Zero(t, gen.calls)
}

func TestReviewPromptContainsGuidelinesAndDiff(t *testing.T) {
	ret := &fakeRetriever{chunks: []store.GuidelineChunk{
		{ID: 1, Category: "security", Content: "Never hardcode secrets."},
	}}
	gen := &fakeGenerator{response: "[]"}
	r := NewReviewer(ret, gen, zap.NewNop())

	_, err := r.Review(context.Background(), simpleDiff)

	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Never hardcode secrets.")
	assert.Contains(t, gen.prompts[0], "`src/main.py`")
	assert.Contains(t, gen.prompts[0], `+password = "hunter2"`)
}

func TestBuildSearchQueryTruncates(t *testing.T) {
	var lines []diff.Line
	for i := 0; i < 100; i++ {
		lines = append(lines, diff.Line{
			Number:  i + 1,
			Content: strings.Repeat(fmt.Sprintf("line %d ", i), 20),
			Type:    diff.LineAdd,
		})
	}
	file := &diff.FileDiff{
		Filename: "long.py",
		Hunks:    []diff.Hunk{{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 100, Lines: lines}},
	}

	query := buildSearchQuery(file)
	assert.NotEmpty(t, query)
	assert.LessOrEqual(t, len(query), maxQueryLen)
}

func TestBuildSearchQueryKeepsValidUTF8(t *testing.T) {
	// 3-byte runes that never align with the byte cap.
	content := strings.Repeat("함수 이름은 동사로 시작한다 ", 40)
	file := &diff.FileDiff{
		Filename: "korean.py",
		Hunks: []diff.Hunk{{
			OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1,
			Lines: []diff.Line{{Number: 1, Content: content, Type: diff.LineAdd}},
		}},
	}

	query := buildSearchQuery(file)
	assert.LessOrEqual(t, len(query), maxQueryLen)
	assert.True(t, utf8.ValidString(query))
}

func TestTruncateDoesNotSplitRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))

	s := "a한글"
	got := truncate(s, 2) // cap lands mid-rune
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(got))
}

func TestBuildSearchQueryFallsBackToDeletedLines(t *testing.T) {
	file := &diff.FileDiff{
		Filename: "removed.py",
		Hunks: []diff.Hunk{{
			OldStart: 1, OldCount: 2, NewStart: 0, NewCount: 0,
			Lines: []diff.Line{
				{Number: 1, Content: "legacy_helper()", Type: diff.LineDelete},
				{Number: 1, Content: "", Type: diff.LineDelete},
			},
		}},
	}

	query := buildSearchQuery(file)
	assert.Equal(t, "legacy_helper()", query)
}
