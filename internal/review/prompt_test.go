package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reviewbot/internal/diff"
	"reviewbot/internal/store"
)

func promptTestFile() *diff.FileDiff {
	return &diff.FileDiff{
		Filename: "src/auth.py",
		Status:   diff.StatusModified,
		Hunks: []diff.Hunk{{
			OldStart: 10, OldCount: 3, NewStart: 10, NewCount: 4,
			Lines: []diff.Line{
				{Number: 10, Content: "def login(user):", Type: diff.LineContext},
				{Number: 11, Content: `    query = f"SELECT * FROM users WHERE name = '{user}'"`, Type: diff.LineAdd},
				{Number: 12, Content: "    return db.execute(query)", Type: diff.LineAdd},
			},
		}},
	}
}

func TestFormatGuidelines(t *testing.T) {
	chunks := []store.GuidelineChunk{
		{ID: 1, Category: "security", Content: "Use parameterized queries."},
		{ID: 2, Content: "Keep functions short."},
	}

	out := FormatGuidelines(chunks)

	assert.Contains(t, out, "### Guideline 1 [security]")
	assert.Contains(t, out, "Use parameterized queries.")
	assert.Contains(t, out, "### Guideline 2 ")
	assert.Contains(t, out, "Keep functions short.")
}

func TestFormatGuidelinesEmpty(t *testing.T) {
	assert.Equal(t, "(no relevant guidelines found)", FormatGuidelines(nil))
}

func TestFormatDiff(t *testing.T) {
	out := FormatDiff(promptTestFile())

	assert.Contains(t, out, "@@ -10,3 +10,4 @@")
	assert.Contains(t, out, " def login(user):")
	assert.Contains(t, out, `+    query = f"SELECT * FROM users WHERE name = '{user}'"`)
}

func TestBuildPrompt(t *testing.T) {
	chunks := []store.GuidelineChunk{{ID: 1, Category: "security", Content: "Use parameterized queries."}}

	system, user := BuildPrompt(promptTestFile(), chunks, true)

	assert.Contains(t, system, "expert code reviewer")
	assert.Contains(t, system, "## Review examples")
	assert.Contains(t, user, "Use parameterized queries.")
	assert.Contains(t, user, "File: `src/auth.py`")
	assert.Contains(t, user, `"file": "src/auth.py"`)
	assert.Contains(t, user, "Return an empty array")
}

func TestBuildPromptWithoutFewShot(t *testing.T) {
	system, _ := BuildPrompt(promptTestFile(), nil, false)
	assert.NotContains(t, system, "## Review examples")
}

func TestSeverityEmoji(t *testing.T) {
	assert.Equal(t, "🔴", SeverityCritical.Emoji())
	assert.Equal(t, "🟡", SeverityWarning.Emoji())
	assert.Equal(t, "🔵", SeverityInfo.Emoji())
	assert.Equal(t, "⚪", Severity("unknown").Emoji())
}
