package spantree

import (
	"time"

	"github.com/GriffinCanCode/threadscope/internal/runs"
)

// Span statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusRunning = "running"

	// statusPending is how LangSmith reports a run still in progress
	statusPending = "pending"
)

// Span is the UI view of one run, owning its children
type Span struct {
	ID           string         `json:"id"`
	ThreadID     string         `json:"threadId"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	DurationMs   int64          `json:"durationMs"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Children     []*Span        `json:"children"`
}

// Report lists the anomalies absorbed while building a forest
type Report struct {
	// Duplicates are run ids seen more than once; the first copy was kept
	Duplicates []string `json:"duplicates,omitempty"`
	// Orphans declared a parent missing from the input and became roots
	Orphans []string `json:"orphans,omitempty"`
	// Cycles were detached from a parent loop and promoted to roots
	Cycles []string `json:"cycles,omitempty"`
}

// Clean reports whether no anomaly was found
func (r Report) Clean() bool {
	return len(r.Duplicates) == 0 && len(r.Orphans) == 0 && len(r.Cycles) == 0
}

// newSpan maps a run to an unlinked span
func newSpan(threadID string, run runs.Run) *Span {
	s := &Span{
		ID:        run.ID,
		ThreadID:  threadID,
		Name:      run.Name,
		Type:      run.RunType,
		Status:    RunStatus(run),
		StartTime: run.StartTime,
		EndTime:   run.EndTime,
		Inputs:    run.Inputs,
		Outputs:   run.Outputs,
		Error:     run.Error,
		Metadata:  run.Metadata,
		Children:  []*Span{},
	}
	if run.EndTime != nil && run.EndTime.After(run.StartTime) {
		s.DurationMs = run.EndTime.Sub(run.StartTime).Milliseconds()
	}
	return s
}

// RunStatus is the run's recorded status, or one derived from its error and
// end time when none was recorded. Pending runs report as running.
func RunStatus(run runs.Run) string {
	if run.Status == statusPending {
		return StatusRunning
	}
	if run.Status != "" {
		return run.Status
	}
	switch {
	case run.Error != "":
		return StatusError
	case run.EndTime == nil:
		return StatusRunning
	default:
		return StatusSuccess
	}
}

// before orders spans by start time, then id
func before(a, b *Span) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}
