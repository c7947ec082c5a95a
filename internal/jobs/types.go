package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

const KindReindex = "reindex"

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Kind      string
}

// Progress tracks how far a running job has come.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Job is one background unit of work, currently only index rebuilds.
type Job struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	DedupeKey string    `json:"dedupe_key"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
