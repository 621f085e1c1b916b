package job

import (
	"time"
)

// Result is the terminal outcome a runner reports for a single job attempt.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
	ResultRetry
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ConflictStrategy controls what happens when a job is scheduled while another
// job with the same ID is still pending.
type ConflictStrategy int

const (
	// ConflictReplace cancels the pending job and schedules the new one.
	ConflictReplace ConflictStrategy = iota
	// ConflictKeep drops the new job and leaves the pending one in place.
	ConflictKeep
)

// Info describes one unit of deferred work. Immutable value object: built by
// the caller, consumed by the dispatcher and scheduler.
type Info struct {
	ID            string
	Action        string
	Component     string
	MinDelay      time.Duration
	Conflict      ConflictStrategy
	RateLimitTags []string
	Extras        map[string]string
}
