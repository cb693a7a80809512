package engine

import (
	"time"

	"github.com/datakiln/plotbox/dataset"
)

// CandidateProgram is one LLM-generated source proposal. The attempt counter
// is carried through to the outcome so the caller's retry loop can correlate
// feedback without extra bookkeeping.
type CandidateProgram struct {
	Source  string `json:"source"`
	Attempt int    `json:"attempt"`
}

// Request is one execution of a candidate program against a dataset.
type Request struct {
	// ID identifies the execution in logs. Assigned when empty.
	ID string

	Program CandidateProgram

	// Dataset is the already-validated input. It is never mutated; the
	// candidate operates on a deep copy.
	Dataset *dataset.Dataset

	// Timeout is the hard wall-clock budget. Must be positive; the engine's
	// default applies when zero.
	Timeout time.Duration

	// ResultVar is the variable the candidate must assign its output to.
	// The engine's default applies when empty.
	ResultVar string
}

// Status discriminates the outcome variants. Exactly one variant's payload
// is populated.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusValidationRejected Status = "validation_rejected"
	StatusRuntimeFailure     Status = "runtime_failure"
	StatusTimeout            Status = "timeout"
)

// Outcome is the classified result of one execution. It is immutable once
// returned; persisting or discarding it is the caller's responsibility.
type Outcome struct {
	Status     Status        `json:"status"`
	Artifact   *Artifact     `json:"artifact,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
	Message    string        `json:"message,omitempty"`
	Logs       []string      `json:"logs,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
	Attempt    int           `json:"attempt"`
}

// Succeeded reports whether the execution produced an artifact.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Retryable reports whether the caller's retry loop has feedback to act on.
// Timeouts carry no detail beyond the fact of timing out but remain
// retryable; only success is terminal.
func (o Outcome) Retryable() bool {
	return o.Status != StatusSuccess
}
