package tasks

// Task type constants
const (
	TypeReviewTask = "review:merge_request"
)

// Task queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ReviewTaskPayload identifies the merge request to review and the
// persisted job tracking it.
type ReviewTaskPayload struct {
	ProjectID int64  `json:"project_id"`
	MRIID     int64  `json:"mr_iid"`
	JobID     string `json:"job_id"`
}
