package model

import "time"

// JobStatus represents the state of a tree-building job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusReviewing JobStatus = "reviewing"
	JobStatusComplete  JobStatus = "complete"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one customer's tree-building request.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Depth     int       `json:"depth"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
