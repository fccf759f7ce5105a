package task

import (
	"time"

	"github.com/viant/spawner/model/errs"
)

// Status of a spawn attempt.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusForbidden Status = "forbidden"
	StatusError     Status = "error"
)

// SpawnResult is the structured outcome of a spawn.
type SpawnResult struct {
	Status Status `json:"status"`
	TaskID string `json:"taskId,omitempty"`
	// Identity is the minted task identity; it may be set on failures that
	// happened after allocation.
	Identity string    `json:"identity,omitempty"`
	Error    string    `json:"error,omitempty"`
	Code     errs.Code `json:"code,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	// ParametersApplied lists override keys successfully patched.
	ParametersApplied []string `json:"parametersApplied,omitempty"`
}

// Accepted reports whether the spawn succeeded.
func (r *SpawnResult) Accepted() bool { return r != nil && r.Status == StatusAccepted }

// Failure builds a non-accepted result from err. Permission and admission
// errors map to forbidden.
func Failure(err error, identity, taskID string) *SpawnResult {
	code := errs.CodeOf(err)
	status := StatusError
	if code == errs.PermissionDenied || code == errs.AdmissionDenied {
		status = StatusForbidden
	}
	return &SpawnResult{Status: status, Error: err.Error(), Code: code, Identity: identity, TaskID: taskID}
}

// Outcome is the terminal outcome reported by the executor.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// IsFailure reports whether o is error or timeout.
func (o Outcome) IsFailure() bool { return o == OutcomeError || o == OutcomeTimeout }

// Completion is the terminal event delivered by the executor for a task.
type Completion struct {
	ParentKey string    `json:"parentKey"`
	TaskID    string    `json:"taskId"`
	Identity  string    `json:"identity"`
	Outcome   Outcome   `json:"outcome"`
	Output    *string   `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
