package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Run types recorded by LangSmith
const (
	RunTypeChain     = "chain"
	RunTypeLLM       = "llm"
	RunTypeTool      = "tool"
	RunTypeRetriever = "retriever"
	RunTypeEmbedding = "embedding"
	RunTypePrompt    = "prompt"
	RunTypeParser    = "parser"
)

// TopicThreadKey is the metadata key correlating turns of a topic thread
// that were recorded as independent traces
const TopicThreadKey = "topic_thread_id"

// Run is one recorded unit of work as stored by the trace backend.
// Values are immutable once decoded.
type Run struct {
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Name        string         `json:"name"`
	RunType     string         `json:"run_type"`
	Status      string         `json:"status"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasParent reports whether the run declares a parent
func (r Run) HasParent() bool {
	return r.ParentRunID != ""
}

// MetadataString returns a metadata value rendered as a string, or "" when absent
func (r Run) MetadataString(key string) string {
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// rawRun is the wire shape of a run in a runs/query response
type rawRun struct {
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	ParentRunID *string        `json:"parent_run_id"`
	Name        string         `json:"name"`
	RunType     string         `json:"run_type"`
	Status      string         `json:"status"`
	StartTime   string         `json:"start_time"`
	EndTime     *string        `json:"end_time"`
	Inputs      map[string]any `json:"inputs"`
	Outputs     map[string]any `json:"outputs"`
	Error       *string        `json:"error"`
	Extra       struct {
		Metadata map[string]any `json:"metadata"`
	} `json:"extra"`
}

var errMissingID = errors.New("run has no id")

// decodeRun converts one wire record, rejecting records the tree cannot use
func decodeRun(data json.RawMessage) (Run, error) {
	var raw rawRun
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return Run{}, fmt.Errorf("decode run: %w", err)
	}

	id := normalizeID(raw.ID)
	if id == "" {
		return Run{}, errMissingID
	}

	start, err := ParseTimestamp(raw.StartTime)
	if err != nil {
		return Run{ID: id}, fmt.Errorf("run %s start_time: %w", id, err)
	}

	run := Run{
		ID:        id,
		TraceID:   normalizeID(raw.TraceID),
		Name:      raw.Name,
		RunType:   raw.RunType,
		Status:    raw.Status,
		StartTime: start,
		Inputs:    raw.Inputs,
		Outputs:   raw.Outputs,
		Metadata:  raw.Extra.Metadata,
	}
	if raw.ParentRunID != nil {
		run.ParentRunID = normalizeID(*raw.ParentRunID)
	}
	if raw.EndTime != nil && *raw.EndTime != "" {
		end, err := ParseTimestamp(*raw.EndTime)
		if err != nil {
			return Run{ID: id}, fmt.Errorf("run %s end_time: %w", id, err)
		}
		run.EndTime = &end
	}
	if raw.Error != nil {
		run.Error = *raw.Error
	}
	if run.TraceID == "" && !run.HasParent() {
		run.TraceID = run.ID
	}
	return run, nil
}

// normalizeID canonicalizes UUIDs so differently-cased copies of one id compare equal
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTimestamp accepts RFC 3339 and the zone-less form LangSmith emits.
// Zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
