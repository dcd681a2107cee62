package state

import (
	"github.com/cockroachdb/errors"
)

// Status is the server-reported status of a report generation job.
// The set is closed: unknown strings are rejected by ParseStatus.
type Status string

// Report job statuses as returned by the job status endpoint.
const (
	// PENDING: job accepted but not picked up by a server worker yet.
	PENDING Status = "pending"

	// IN_PROGRESS: a server worker is materializing the CSV.
	IN_PROGRESS Status = "in_progress"

	// PROCESSING: the CSV is being compressed and stored.
	PROCESSING Status = "processing"

	// COMPLETED: artifact is ready for download.
	COMPLETED Status = "completed"

	// DOWNLOADED: artifact is ready and was already downloaded at least once.
	DOWNLOADED Status = "downloaded"

	// FAILED: server gave up on the job. Terminal, never retried.
	FAILED Status = "failed"
)

// ErrUnknownStatus is returned by ParseStatus for strings outside the enum.
var ErrUnknownStatus = errors.New("unknown report status")

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// IsValid returns true if the status is a recognized job status.
func (s Status) IsValid() bool {
	switch s {
	case PENDING, IN_PROGRESS, PROCESSING, COMPLETED, DOWNLOADED, FAILED:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that end polling.
func (s Status) IsTerminal() bool {
	return s.IsSuccess() || s == FAILED
}

// IsSuccess returns true when the artifact can be fetched.
func (s Status) IsSuccess() bool {
	return s == COMPLETED || s == DOWNLOADED
}

// IsTransient returns true for "not ready yet" statuses that count as a retry.
func (s Status) IsTransient() bool {
	switch s {
	case PENDING, IN_PROGRESS, PROCESSING:
		return true
	default:
		return false
	}
}

// Phase is the client-side lifecycle of one poller.
type Phase string

// Poller phases.
const (
	// IDLE: no job armed. Initial phase, and the phase after a reset.
	IDLE Phase = "idle"

	// POLLING: a job id is set and the status timer is armed.
	POLLING Phase = "polling"

	// DONE: the job completed and the artifact was handed off.
	DONE Phase = "completed"

	// ERRORED: the job failed, retries ran out, or the artifact step failed.
	ERRORED Phase = "failed"
)

// IsValid returns true if the phase is a recognized poller phase.
func (p Phase) IsValid() bool {
	switch p {
	case IDLE, POLLING, DONE, ERRORED:
		return true
	default:
		return false
	}
}

// PhaseMachine enforces poller phase transitions.
type PhaseMachine struct{}

// NewPhaseMachine creates a new phase machine.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{}
}

// CanTransition checks if a phase transition is allowed.
//
// Terminal phases only go back to IDLE, which is what a reset does.
// POLLING -> POLLING is not a transition; retries stay inside the phase.
func (m *PhaseMachine) CanTransition(from, to Phase) bool {
	if from == to {
		return false
	}

	switch from {
	case IDLE:
		// A cache hit goes straight to DONE without arming the timer.
		return to == POLLING || to == DONE || to == ERRORED
	case POLLING:
		return to == DONE || to == ERRORED || to == IDLE
	case DONE, ERRORED:
		return to == IDLE
	default:
		return false
	}
}

// ValidateTransition returns a descriptive error if from -> to is not allowed.
func (m *PhaseMachine) ValidateTransition(from, to Phase) error {
	if !from.IsValid() {
		return errors.Newf("invalid source phase: %s", from)
	}
	if !to.IsValid() {
		return errors.Newf("invalid target phase: %s", to)
	}
	if from == to {
		return errors.Newf("self-transition not allowed: %s -> %s", from, to)
	}
	if !m.CanTransition(from, to) {
		return errors.Newf("invalid transition: %s -> %s", from, to)
	}
	return nil
}
