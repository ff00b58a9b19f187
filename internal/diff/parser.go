// Package diff parses unified git diffs into structured per-file changes.
package diff

import (
	"regexp"
	"strconv"
	"strings"
)

// LineType classifies a single diff line.
type LineType string

const (
	LineAdd     LineType = "add"
	LineDelete  LineType = "delete"
	LineContext LineType = "context"
)

// FileStatus classifies a file-level change.
type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusDeleted  FileStatus = "deleted"
	StatusModified FileStatus = "modified"
	StatusRenamed  FileStatus = "renamed"
	StatusBinary   FileStatus = "binary"
)

// Line is a single line inside a hunk. Number is the line number in the
// new file (delete lines keep the number of the next new line).
type Line struct {
	Number  int
	Content string
	Type    LineType
}

// Hunk is one @@ -a,b +c,d @@ block.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the full set of changes to one file.
type FileDiff struct {
	Filename    string
	OldFilename string
	Status      FileStatus
	Hunks       []Hunk
	IsBinary    bool
}

// AddedLines returns all added lines across hunks.
func (f *FileDiff) AddedLines() []Line {
	var lines []Line
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Type == LineAdd {
				lines = append(lines, l)
			}
		}
	}
	return lines
}

// DeletedLines returns all deleted lines across hunks.
func (f *FileDiff) DeletedLines() []Line {
	var lines []Line
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Type == LineDelete {
				lines = append(lines, l)
			}
		}
	}
	return lines
}

// Result is a parsed diff.
type Result struct {
	Files []FileDiff
}

// Summary aggregates change counts for logging.
type Summary struct {
	TotalFiles      int `json:"total_files"`
	ReviewableFiles int `json:"reviewable_files"`
	TotalAdded      int `json:"total_added"`
	TotalDeleted    int `json:"total_deleted"`
}

// Patterns for files that never need review (lock files, minified
// artifacts, images).
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`package-lock\.json$`),
	regexp.MustCompile(`yarn\.lock$`),
	regexp.MustCompile(`pnpm-lock\.yaml$`),
	regexp.MustCompile(`poetry\.lock$`),
	regexp.MustCompile(`Pipfile\.lock$`),
	regexp.MustCompile(`go\.sum$`),
	regexp.MustCompile(`\.min\.js$`),
	regexp.MustCompile(`\.min\.css$`),
	regexp.MustCompile(`\.map$`),
	regexp.MustCompile(`\.svg$`),
	regexp.MustCompile(`\.ico$`),
}

const binaryMarker = "Binary files"

var (
	binaryPathRe = regexp.MustCompile(`and b/(.+?) differ`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// ReviewableFiles returns files worth sending to review, excluding
// binaries and skip-pattern matches.
func (r *Result) ReviewableFiles() []FileDiff {
	var files []FileDiff
	for _, f := range r.Files {
		if f.IsBinary || shouldSkip(f.Filename) {
			continue
		}
		files = append(files, f)
	}
	return files
}

// Summarize counts files and changed lines.
func (r *Result) Summarize() Summary {
	s := Summary{
		TotalFiles:      len(r.Files),
		ReviewableFiles: len(r.ReviewableFiles()),
	}
	for i := range r.Files {
		s.TotalAdded += len(r.Files[i].AddedLines())
		s.TotalDeleted += len(r.Files[i].DeletedLines())
	}
	return s
}

func shouldSkip(filename string) bool {
	for _, p := range skipPatterns {
		if p.MatchString(filename) {
			return true
		}
	}
	return false
}

// Parse converts unified diff text into a structured Result.
func Parse(diffText string) *Result {
	result := &Result{}
	var currentFile *FileDiff
	var currentHunk *Hunk
	newLineNum := 0

	// Tracks "new file" / "deleted file" markers seen between the
	// diff --git line and the +++/--- path lines.
	var pendingStatus FileStatus

	appendFile := func(f FileDiff) *FileDiff {
		result.Files = append(result.Files, f)
		return &result.Files[len(result.Files)-1]
	}

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			currentFile = nil
			currentHunk = nil
			pendingStatus = ""
			continue

		case strings.HasPrefix(line, "new file"):
			pendingStatus = StatusAdded
			continue

		case strings.HasPrefix(line, "deleted file"):
			pendingStatus = StatusDeleted
			continue

		case strings.HasPrefix(line, binaryMarker):
			if m := binaryPathRe.FindStringSubmatch(line); m != nil {
				currentFile = appendFile(FileDiff{
					Filename: m[1],
					Status:   StatusBinary,
					IsBinary: true,
				})
			}
			continue

		case strings.HasPrefix(line, "--- "):
			path := line[4:]
			// For deletions the +++ side is /dev/null, so the old path
			// is the only place the filename appears.
			if pendingStatus == StatusDeleted && strings.HasPrefix(path, "a/") {
				currentFile = appendFile(FileDiff{
					Filename: path[2:],
					Status:   StatusDeleted,
				})
			}
			continue

		case strings.HasPrefix(line, "+++ "):
			path := line[4:]
			if path == "/dev/null" {
				// Deleted file, already recorded from the --- line.
				continue
			}
			filename := strings.TrimPrefix(path, "b/")
			status := pendingStatus
			if status == "" {
				status = StatusModified
			}
			currentFile = appendFile(FileDiff{
				Filename: filename,
				Status:   status,
			})
			continue

		case strings.HasPrefix(line, "index "):
			continue
		}

		if m := hunkHeaderRe.FindStringSubmatch(line); m != nil && currentFile != nil {
			hunk := Hunk{
				OldStart: atoiDefault(m[1], 0),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 0),
				NewCount: atoiDefault(m[4], 1),
			}
			currentFile.Hunks = append(currentFile.Hunks, hunk)
			currentHunk = &currentFile.Hunks[len(currentFile.Hunks)-1]
			newLineNum = currentHunk.NewStart
			continue
		}

		if currentHunk == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			currentHunk.Lines = append(currentHunk.Lines, Line{
				Number:  newLineNum,
				Content: line[1:],
				Type:    LineAdd,
			})
			newLineNum++
		case strings.HasPrefix(line, "-"):
			currentHunk.Lines = append(currentHunk.Lines, Line{
				Number:  newLineNum,
				Content: line[1:],
				Type:    LineDelete,
			})
		case strings.HasPrefix(line, " "):
			currentHunk.Lines = append(currentHunk.Lines, Line{
				Number:  newLineNum,
				Content: line[1:],
				Type:    LineContext,
			})
			newLineNum++
		}
	}

	return result
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
