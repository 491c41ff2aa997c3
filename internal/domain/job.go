package domain

import (
	"encoding/json"
	"time"
)

// JobRetention is how long a job record is kept before it expires.
const JobRetention = 7 * 24 * time.Hour

// JobRecord tracks a single upstream prediction in the proxy flow. It has
// the same lifecycle as a Task but no task type: the upstream provider is
// fixed.
type JobRecord struct {
	ID        string          `json:"id"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    TaskStatus      `json:"status"`
	Images    []string        `json:"images,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	TTL       int64           `json:"ttl,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewJobRecord creates a record stamped with the current time and the
// standard retention.
func NewJobRecord(id string, status TaskStatus, input, output json.RawMessage) *JobRecord {
	now := time.Now()
	return &JobRecord{
		ID:        id,
		Input:     input,
		Output:    output,
		Status:    status,
		CreatedAt: now.Unix(),
		TTL:       now.Add(JobRetention).Unix(),
	}
}

// HasImages reports whether artifacts were already persisted for the job.
func (j *JobRecord) HasImages() bool {
	return len(j.Images) > 0
}

// Clone returns a deep copy of the record.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	c.Input = cloneRaw(j.Input)
	c.Output = cloneRaw(j.Output)
	if j.Images != nil {
		c.Images = append([]string(nil), j.Images...)
	}
	return &c
}
