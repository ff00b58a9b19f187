package review

import (
	"fmt"
	"strings"

	"reviewbot/internal/diff"
	"reviewbot/internal/store"
)

const systemPrompt = `You are an expert code reviewer. Your task is to review code changes and provide actionable feedback.

Rules:
- Focus ONLY on the changed lines (lines starting with +).
- Reference specific line numbers from the diff.
- Classify each issue by severity: critical, warning, or info.
- If the code follows best practices, say so briefly.
- Respond ONLY with the JSON array format specified below. No other text.
`

// Few-shot examples contrasting a useful review with a useless one.
const fewShotExamples = `## Review examples

### Good review (specific, line numbers, suggests a fix):
` + "```json" + `
[
  {
    "file": "src/auth.py",
    "line": 15,
    "severity": "critical",
    "message": "Password is hardcoded. Move it to an environment variable."
  },
  {
    "file": "src/auth.py",
    "line": 23,
    "severity": "warning",
    "message": "Bare except clause. Catch a specific exception type and log it."
  }
]
` + "```" + `

### Bad review (vague, no line number, no direction):
` + "```json" + `
[
  {
    "file": "src/auth.py",
    "line": 0,
    "severity": "info",
    "message": "Improve the code."
  }
]
` + "```" + `
`

const userPromptTemplate = `## Relevant coding guidelines

%s

## Code changes

File: ` + "`%s`" + `

` + "```diff" + `
%s
` + "```" + `

## Review instructions

Review the code changes above against the relevant guidelines.
Respond ONLY with a JSON array in exactly this format. Include no other text.

` + "```json" + `
[
  {
    "file": "%s",
    "line": <line number>,
    "severity": "<critical|warning|info>",
    "message": "<review comment>"
  }
]
` + "```" + `

Return an empty array ` + "`[]`" + ` if there are no issues.
`

// FormatGuidelines renders retrieved guideline chunks for the prompt.
func FormatGuidelines(chunks []store.GuidelineChunk) string {
	if len(chunks) == 0 {
		return "(no relevant guidelines found)"
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		category := ""
		if chunk.Category != "" {
			category = fmt.Sprintf("[%s]", chunk.Category)
		}
		parts = append(parts, fmt.Sprintf("### Guideline %d %s\n%s", i+1, category, chunk.Content))
	}
	return strings.Join(parts, "\n\n")
}

// FormatDiff reconstructs the diff text of a single file for the prompt.
func FormatDiff(file *diff.FileDiff) string {
	var lines []string
	for _, hunk := range file.Hunks {
		lines = append(lines, fmt.Sprintf("@@ -%d,%d +%d,%d @@",
			hunk.OldStart, hunk.OldCount, hunk.NewStart, hunk.NewCount))
		for _, line := range hunk.Lines {
			switch line.Type {
			case diff.LineAdd:
				lines = append(lines, "+"+line.Content)
			case diff.LineDelete:
				lines = append(lines, "-"+line.Content)
			default:
				lines = append(lines, " "+line.Content)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt assembles the system and user prompts for reviewing one
// file's changes.
func BuildPrompt(file *diff.FileDiff, guidelines []store.GuidelineChunk, includeFewShot bool) (system, user string) {
	system = systemPrompt
	if includeFewShot {
		system += "\n" + fewShotExamples
	}

	user = fmt.Sprintf(userPromptTemplate,
		FormatGuidelines(guidelines),
		file.Filename,
		FormatDiff(file),
		file.Filename,
	)
	return system, user
}
