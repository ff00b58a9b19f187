// Package gitlab is a minimal GitLab API v4 client covering merge request
// diffs and review comment posting.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"reviewbot/internal/domain"
	"reviewbot/internal/review"
)

// Client talks to a self-hosted GitLab instance via API v4.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a GitLab client. baseURL is the instance root
// (https://gitlab.example.com), not the API root.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v4",
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Change is one file entry in the MR changes response.
type Change struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
	RenamedFile bool   `json:"renamed_file"`
}

// MRChanges is the MR changes API response.
type MRChanges struct {
	Changes []Change `json:"changes"`
}

// DiffVersion is one entry of the MR versions API response.
type DiffVersion struct {
	BaseCommitSHA  string `json:"base_commit_sha"`
	StartCommitSHA string `json:"start_commit_sha"`
	HeadCommitSHA  string `json:"head_commit_sha"`
}

// Position anchors an inline discussion to a diff location.
type Position struct {
	BaseSHA      string `json:"base_sha"`
	StartSHA     string `json:"start_sha"`
	HeadSHA      string `json:"head_sha"`
	PositionType string `json:"position_type"`
	NewPath      string `json:"new_path"`
	NewLine      int    `json:"new_line"`
	OldPath      string `json:"old_path"`
}

// PostReviewResult reports what was actually published to the MR.
type PostReviewResult struct {
	PostedInline  int      `json:"posted_inline"`
	PostedSummary bool     `json:"posted_summary"`
	Errors        []string `json:"errors"`
}

// GetMRChanges fetches the change list (per-file diffs) of a merge request.
func (c *Client) GetMRChanges(ctx context.Context, projectID, mrIID int) (*MRChanges, error) {
	var changes MRChanges
	path := fmt.Sprintf("/projects/%d/merge_requests/%d/changes", projectID, mrIID)
	if err := c.do(ctx, http.MethodGet, path, nil, &changes); err != nil {
		return nil, fmt.Errorf("get MR changes: %w", err)
	}
	return &changes, nil
}

// GetMRDiffText fetches MR changes and stitches them back into a unified
// diff. GitLab returns per-file fragments without the diff --git headers
// the parser expects, so they are reconstructed here.
func (c *Client) GetMRDiffText(ctx context.Context, projectID, mrIID int) (string, error) {
	changes, err := c.GetMRChanges(ctx, projectID, mrIID)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, change := range changes.Changes {
		if change.Diff == "" {
			continue
		}

		parts = append(parts, fmt.Sprintf("diff --git a/%s b/%s", change.OldPath, change.NewPath))

		switch {
		case change.NewFile:
			parts = append(parts,
				"new file mode 100644",
				"--- /dev/null",
				fmt.Sprintf("+++ b/%s", change.NewPath))
		case change.DeletedFile:
			parts = append(parts,
				"deleted file mode 100644",
				fmt.Sprintf("--- a/%s", change.OldPath),
				"+++ /dev/null")
		default:
			parts = append(parts,
				fmt.Sprintf("--- a/%s", change.OldPath),
				fmt.Sprintf("+++ b/%s", change.NewPath))
		}

		parts = append(parts, change.Diff)
	}

	return strings.Join(parts, "\n"), nil
}

// GetMRVersions fetches the MR diff versions, newest first. The SHAs of
// the latest version are required to position inline comments.
func (c *Client) GetMRVersions(ctx context.Context, projectID, mrIID int) ([]DiffVersion, error) {
	var versions []DiffVersion
	path := fmt.Sprintf("/projects/%d/merge_requests/%d/versions", projectID, mrIID)
	if err := c.do(ctx, http.MethodGet, path, nil, &versions); err != nil {
		return nil, fmt.Errorf("get MR versions: %w", err)
	}
	return versions, nil
}

// PostMRComment posts a plain discussion comment, used for review summaries.
func (c *Client) PostMRComment(ctx context.Context, projectID, mrIID int, body string) error {
	path := fmt.Sprintf("/projects/%d/merge_requests/%d/discussions", projectID, mrIID)
	payload := map[string]any{"body": body}
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("post MR comment: %w", err)
	}
	return nil
}

// PostInlineComment posts a discussion anchored to a specific file/line of
// the diff.
func (c *Client) PostInlineComment(ctx context.Context, projectID, mrIID int, body string, pos Position) error {
	if pos.PositionType == "" {
		pos.PositionType = "text"
	}
	if pos.OldPath == "" {
		pos.OldPath = pos.NewPath
	}

	path := fmt.Sprintf("/projects/%d/merge_requests/%d/discussions", projectID, mrIID)
	payload := map[string]any{"body": body, "position": pos}
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("post inline comment: %w", err)
	}
	return nil
}

// PostReview publishes review comments to the MR: inline comments where
// possible, per-comment errors recorded on failure, and a summary
// discussion at the end. An empty comment list posts a "no issues" note.
func (c *Client) PostReview(ctx context.Context, projectID, mrIID int, comments []review.Comment) (*PostReviewResult, error) {
	result := &PostReviewResult{Errors: []string{}}

	if len(comments) == 0 {
		err := c.PostMRComment(ctx, projectID, mrIID,
			"🤖 **AI code review complete**\n\nNo issues found. ✅")
		if err != nil {
			return result, err
		}
		result.PostedSummary = true
		return result, nil
	}

	shas := c.latestSHAs(ctx, projectID, mrIID)

	for _, comment := range comments {
		if shas == nil || comment.Line <= 0 {
			continue
		}

		body := fmt.Sprintf("%s **[%s]** %s",
			comment.Severity.Emoji(), strings.ToUpper(string(comment.Severity)), comment.Message)

		pos := Position{
			BaseSHA:  shas.BaseCommitSHA,
			StartSHA: shas.StartCommitSHA,
			HeadSHA:  shas.HeadCommitSHA,
			NewPath:  comment.File,
			NewLine:  comment.Line,
		}
		if err := c.PostInlineComment(ctx, projectID, mrIID, body, pos); err != nil {
			c.logger.Warn("inline comment failed",
				zap.String("file", comment.File),
				zap.Int("line", comment.Line),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d - %v", comment.File, comment.Line, err))
			continue
		}
		result.PostedInline++
	}

	if err := c.PostMRComment(ctx, projectID, mrIID, BuildSummary(comments)); err != nil {
		return result, err
	}
	result.PostedSummary = true

	return result, nil
}

func (c *Client) latestSHAs(ctx context.Context, projectID, mrIID int) *DiffVersion {
	versions, err := c.GetMRVersions(ctx, projectID, mrIID)
	if err != nil {
		c.logger.Warn("fetching MR versions failed", zap.Error(err))
		return nil
	}
	if len(versions) == 0 {
		return nil
	}
	return &versions[0]
}

// BuildSummary renders the review comments as a markdown table with
// severity counts.
func BuildSummary(comments []review.Comment) string {
	var critical, warning, info int
	for _, comment := range comments {
		switch comment.Severity {
		case review.SeverityCritical:
			critical++
		case review.SeverityWarning:
			warning++
		default:
			info++
		}
	}

	var b strings.Builder
	b.WriteString("🤖 **AI code review complete**\n\n")
	fmt.Fprintf(&b, "Found **%d** issue(s): 🔴 Critical %d | 🟡 Warning %d | 🔵 Info %d\n\n",
		len(comments), critical, warning, info)

	b.WriteString("| File | Line | Severity | Finding |\n")
	b.WriteString("|------|------|----------|---------|\n")
	for _, comment := range comments {
		fmt.Fprintf(&b, "| `%s` | L%d | %s %s | %s |\n",
			comment.File, comment.Line, comment.Severity.Emoji(), comment.Severity, comment.Message)
	}

	return b.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := domain.ErrCodeUpstream
		switch resp.StatusCode {
		case http.StatusNotFound:
			code = domain.ErrCodeNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			code = domain.ErrCodeUnauthorized
		}
		return domain.NewError(code,
			fmt.Sprintf("%s %s returned status %d: %s", method, path, resp.StatusCode, snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
