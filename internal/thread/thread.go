package thread

import (
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/threadscope/internal/runs"
	"github.com/GriffinCanCode/threadscope/internal/spantree"
)

// PreviewLength is the maximum preview length in runes
const PreviewLength = 200

// Thread summarizes a session anchored by one root run
type Thread struct {
	ID            string     `json:"id"`
	TraceID       string     `json:"traceId"`
	Name          string     `json:"name"`
	FeatureID     string     `json:"featureId,omitempty"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	DurationMs    int64      `json:"durationMs"`
	Preview       string     `json:"preview,omitempty"`
	TopicThreadID string     `json:"topicThreadId,omitempty"`
}

// previewKeys are checked before any other input key
var previewKeys = []string{"input", "question", "query", "message", "prompt", "text", "content"}

var stripTags = bluemonday.StrictPolicy()

// Summarize builds the summary of a root run
func Summarize(root runs.Run, featureID string) Thread {
	t := Thread{
		ID:            root.ID,
		TraceID:       root.TraceID,
		Name:          root.Name,
		FeatureID:     featureID,
		Status:        spantree.RunStatus(root),
		StartTime:     root.StartTime,
		EndTime:       root.EndTime,
		Preview:       Preview(root.Inputs),
		TopicThreadID: root.MetadataString(runs.TopicThreadKey),
	}
	if t.TraceID == "" {
		t.TraceID = root.ID
	}
	if root.EndTime != nil && root.EndTime.After(root.StartTime) {
		t.DurationMs = root.EndTime.Sub(root.StartTime).Milliseconds()
	}
	return t
}

// Preview returns the first textual input as plain text of at most
// PreviewLength runes
func Preview(inputs map[string]any) string {
	text := firstText(inputs)
	if text == "" {
		return ""
	}

	text = html.UnescapeString(stripTags.Sanitize(text))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	r := []rune(text)
	return string(r[:PreviewLength-3]) + "..."
}

func firstText(inputs map[string]any) string {
	for _, key := range previewKeys {
		if s := textOf(inputs[key]); s != "" {
			return s
		}
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := textOf(inputs[k]); s != "" {
			return s
		}
	}
	return ""
}

// textOf extracts text from a string, a chat message or the last message of a list
func textOf(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		return textOf(val["content"])
	case []any:
		for i := len(val) - 1; i >= 0; i-- {
			if s := textOf(val[i]); s != "" {
				return s
			}
		}
	}
	return ""
}

// aggregateStatus is error if any span failed, running if any is still
// open, otherwise the root's own status
func aggregateStatus(root string, forest []*spantree.Span) string {
	status := root
	_ = spantree.Walk(forest, func(s *spantree.Span, _ int) error {
		switch s.Status {
		case spantree.StatusError:
			status = spantree.StatusError
			return errStop
		case spantree.StatusRunning:
			status = spantree.StatusRunning
		}
		return nil
	})
	return status
}
