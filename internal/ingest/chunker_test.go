package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Coding Guidelines

Intro text before the first section.

## Naming conventions

Use descriptive names for variables and functions.

### Packages

Package names are short and lowercase.

## Error handling

Always wrap errors with context. Never swallow an exception.

` + "```go" + `
## this is code, not a heading
if err != nil {
	return err
}
` + "```" + `

## Security

Never build SQL by string concatenation: injection risk.
`

func TestChunkMarkdownSplitsOnH2(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, "guidelines.md")

	// intro before the first h2 plus three sections
	require.Len(t, chunks, 4)
	assert.Contains(t, chunks[1].Content, "## Naming conventions")
	assert.Contains(t, chunks[2].Content, "## Error handling")
	assert.Contains(t, chunks[3].Content, "## Security")
}

func TestChunkMarkdownCarriesTitleContext(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, "guidelines.md")

	for _, chunk := range chunks[1:] {
		assert.Contains(t, chunk.Content, "# Coding Guidelines")
	}
}

func TestChunkMarkdownKeepsH3InSection(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, "guidelines.md")

	assert.Contains(t, chunks[1].Content, "### Packages")
}

func TestChunkMarkdownIgnoresHeadingsInCodeBlocks(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, "guidelines.md")

	assert.Contains(t, chunks[2].Content, "## this is code, not a heading")
}

func TestChunkMarkdownIndicesAndSource(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, "guidelines.md")

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "guidelines.md", chunk.Source)
	}
}

func TestChunkMarkdownEmptyInput(t *testing.T) {
	assert.Empty(t, ChunkMarkdown("", "empty.md"))
	assert.Empty(t, ChunkMarkdown("\n\n\n", "blank.md"))
}

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		headers []string
		content string
		want    string
	}{
		{[]string{"## Naming conventions"}, "Use descriptive names.", "naming"},
		{[]string{"## Error handling"}, "Wrap errors.", "error_handling"},
		{[]string{"## Security"}, "Avoid SQL injection.", "security"},
		{[]string{"## Performance"}, "Watch for N+1 queries.", "performance"},
		{[]string{"## Code structure"}, "Keep imports sorted.", "code_structure"},
		{[]string{"## Misc"}, "Nothing in particular.", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectCategory(tc.headers, tc.content), "headers=%v", tc.headers)
	}
}

func TestDetectCategoryUsesBodyWhenHeaderIsGeneric(t *testing.T) {
	got := DetectCategory([]string{"## Guidelines"}, "Validate all input to prevent injection attacks.")
	assert.Equal(t, "security", got)
}
