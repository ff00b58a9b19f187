package ingest

import (
	"strings"
)

// Chunk is one section of a guideline document, ready for embedding.
type Chunk struct {
	Content    string
	Category   string
	Source     string
	ChunkIndex int
	Headers    []string
}

// categoryKeywords maps guideline categories to keywords looked up in a
// chunk's headers and leading content.
var categoryKeywords = map[string][]string{
	"naming":         {"naming", "name", "identifier", "variable name", "function name", "class name", "method name", "package name"},
	"error_handling": {"error", "exception", "panic", "null", "nil", "resource cleanup", "recover"},
	"security":       {"security", "injection", "sensitive", "secret", "credential", "input validation", "sanitize"},
	"performance":    {"performance", "n+1", "async", "cache", "pagination", "allocation", "collection"},
	"code_structure": {"structure", "import", "function size", "method size", "type hint", "logging", "layout"},
}

// DetectCategory infers a chunk's category from its headers and the start
// of its body. Returns "" when no keyword matches.
func DetectCategory(headers []string, content string) string {
	head := content
	if len(head) > 200 {
		head = head[:200]
	}
	text := strings.ToLower(strings.Join(headers, " ") + " " + head)
	for _, category := range []string{"naming", "error_handling", "security", "performance", "code_structure"} {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(text, kw) {
				return category
			}
		}
	}
	return ""
}

// ChunkMarkdown splits a markdown document into chunks at h2 boundaries.
// The document title (h1) is carried as context into every chunk, h3 and
// deeper headings stay inside their h2 section, and fenced code blocks
// are never split or scanned for headings.
func ChunkMarkdown(text, source string) []Chunk {
	var (
		chunks         []Chunk
		h1Header       string
		currentHeaders []string
		currentLines   []string
		chunkIndex     int
	)

	flush := func() {
		body := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if body == "" {
			return
		}

		content := body
		if headerContext := strings.Join(currentHeaders, "\n"); headerContext != "" {
			content = headerContext + "\n\n" + body
		}

		chunks = append(chunks, Chunk{
			Content:    content,
			Category:   DetectCategory(currentHeaders, body),
			Source:     source,
			ChunkIndex: chunkIndex,
			Headers:    append([]string(nil), currentHeaders...),
		})
		chunkIndex++
	}

	inCodeBlock := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			currentLines = append(currentLines, line)
			continue
		}
		if inCodeBlock {
			currentLines = append(currentLines, line)
			continue
		}

		if isHeading(line, "# ") {
			h1Header = line
			continue
		}

		if isHeading(line, "## ") {
			flush()
			currentLines = nil
			if h1Header != "" {
				currentHeaders = []string{h1Header, line}
			} else {
				currentHeaders = []string{line}
			}
			continue
		}

		currentLines = append(currentLines, line)
	}

	flush()
	return chunks
}

// isHeading reports whether line is a heading at exactly the level given
// by prefix ("# " for h1, "## " for h2).
func isHeading(line, prefix string) bool {
	return strings.HasPrefix(line, prefix) && !strings.HasPrefix(line, prefix+"#")
}
