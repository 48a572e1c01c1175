package model

import "time"

// RunStatus is the lifecycle state of a persisted validation run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted validation batch: the requested pairs and, once the
// batch finishes, the resulting matrix.
type Run struct {
	ID        string            `json:"id"`
	Pairs     []PairKey         `json:"pairs"`
	Status    RunStatus         `json:"status"`
	Matrix    *ValidationMatrix `json:"matrix,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
