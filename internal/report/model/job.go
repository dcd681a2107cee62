package model

import (
	"time"

	"github.com/dipak0000812/credtrack/internal/report/state"
)

// Job is a server-side report generation job as seen by the client.
// It is created when the generation endpoint returns a job id and forgotten
// when the controller resets or a new job is submitted.
type Job struct {
	// ID is the opaque job identifier (a UUID) assigned by the server.
	ID string

	// Kind is the report flavor that produced this job.
	Kind string

	// Filters are the query parameters that produced this job.
	Filters Filters

	// Status is the last status reported by the job status endpoint.
	Status state.Status

	// LastError stores the most recent failure message, if any.
	LastError *string

	// CreatedAt is when the generation request returned.
	CreatedAt time.Time
}

// RecordError stores the error message from a failed step.
func (j *Job) RecordError(err error) {
	if err != nil {
		msg := err.Error()
		j.LastError = &msg
	}
}
