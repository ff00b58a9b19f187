package review

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"reviewbot/internal/diff"
	"reviewbot/internal/retriever"
	"reviewbot/internal/store"
)

// maxQueryLen caps the guideline search query built from changed lines.
const maxQueryLen = 500

// Generator produces an LLM completion for a prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GuidelineRetriever finds guideline chunks relevant to a query.
type GuidelineRetriever interface {
	Search(ctx context.Context, query string, opts retriever.Options) ([]store.GuidelineChunk, error)
}

// Reviewer runs the per-file review pipeline: retrieve guidelines, prompt
// the LLM, parse the structured response.
type Reviewer struct {
	retriever      GuidelineRetriever
	generator      Generator
	logger         *zap.Logger
	includeFewShot bool
}

// NewReviewer creates a Reviewer. Few-shot examples are included in the
// system prompt by default.
func NewReviewer(guidelines GuidelineRetriever, generator Generator, logger *zap.Logger) *Reviewer {
	return &Reviewer{
		retriever:      guidelines,
		generator:      generator,
		logger:         logger,
		includeFewShot: true,
	}
}

// Review analyzes unified diff text and returns review comments for every
// reviewable changed file.
func (r *Reviewer) Review(ctx context.Context, diffText string) ([]Comment, error) {
	result := diff.Parse(diffText)

	var all []Comment
	for _, file := range result.ReviewableFiles() {
		if len(file.AddedLines()) == 0 && len(file.DeletedLines()) == 0 {
			continue
		}

		comments, err := r.reviewFile(ctx, &file)
		if err != nil {
			return nil, fmt.Errorf("review %s: %w", file.Filename, err)
		}
		all = append(all, comments...)
	}
	return all, nil
}

func (r *Reviewer) reviewFile(ctx context.Context, file *diff.FileDiff) ([]Comment, error) {
	query := buildSearchQuery(file)
	guidelines, err := r.retriever.Search(ctx, query, retriever.Options{})
	if err != nil {
		return nil, fmt.Errorf("retrieve guidelines: %w", err)
	}

	system, user := BuildPrompt(file, guidelines, r.includeFewShot)

	response, err := r.generator.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate review: %w", err)
	}

	return r.parseResponse(response, file.Filename), nil
}

// buildSearchQuery derives a guideline search query from the changed
// lines: added lines first, deleted lines when the change only removes
// code, truncated to keep the embedding input small.
func buildSearchQuery(file *diff.FileDiff) string {
	lines := nonBlankContents(file.AddedLines())
	if len(lines) == 0 {
		lines = nonBlankContents(file.DeletedLines())
	}

	return truncate(strings.Join(lines, "\n"), maxQueryLen)
}

func nonBlankContents(lines []diff.Line) []string {
	var contents []string
	for _, l := range lines {
		if strings.TrimSpace(l.Content) != "" {
			contents = append(contents, l.Content)
		}
	}
	return contents
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)\[.*\]`)
)

// rawComment tolerates partial LLM output; missing fields get defaults.
type rawComment struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// parseResponse extracts the JSON comment array from the LLM response.
// Models wrap the array in a ```json fence, emit it bare, or sometimes
// produce garbage; anything unparseable yields no comments rather than an
// error so one bad response never fails the whole review.
func (r *Reviewer) parseResponse(response, filename string) []Comment {
	var jsonStr string
	if m := fencedJSONRe.FindStringSubmatch(response); m != nil {
		jsonStr = m[1]
	} else if m := bareJSONRe.FindString(response); m != "" {
		jsonStr = m
	} else {
		r.logger.Warn("no JSON array in LLM response", zap.String("snippet", truncate(response, 200)))
		return nil
	}

	var items []rawComment
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		r.logger.Warn("failed to parse LLM response JSON",
			zap.String("snippet", truncate(jsonStr, 200)),
			zap.Error(err),
		)
		return nil
	}

	comments := make([]Comment, 0, len(items))
	for _, item := range items {
		comment := Comment{
			File:     item.File,
			Line:     item.Line,
			Severity: Severity(item.Severity),
			Message:  item.Message,
		}
		if comment.File == "" {
			comment.File = filename
		}
		if comment.Severity == "" {
			comment.Severity = SeverityInfo
		}
		comments = append(comments, comment)
	}
	return comments
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
// Queries and log snippets can carry multibyte guideline or diff text.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
