package spantree

import (
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threadscope/internal/runs"
)

// Build nests a flat run set into a forest of spans.
//
// The result is always a valid forest: duplicates are dropped (first copy
// wins), runs whose parent is absent become roots, and parent loops are
// broken. Every children list and the root list are ordered by start time
// then id, so any permutation of the same input yields the same forest.
//
// A run whose parent was simply not fetched also becomes a root. Callers
// that need a complete tree must pass a closed set, such as every run of
// one trace.
func Build(threadID string, input []runs.Run) ([]*Span, Report) {
	var report Report

	unique, dups := dedupe(input)
	report.Duplicates = dups

	spans, byID := mapSpans(threadID, unique)
	roots, orphans, selfLinked := link(spans, unique, byID)
	report.Orphans = orphans

	roots, promoted := breakCycles(spans, roots)
	report.Cycles = append(selfLinked, promoted...)

	sortForest(roots)
	return roots, report
}

// dedupe keeps the first run for each id and returns the repeated ids
func dedupe(input []runs.Run) ([]runs.Run, []string) {
	seen := make(map[string]struct{}, len(input))
	out := make([]runs.Run, 0, len(input))
	var dups []string

	for _, run := range input {
		if _, ok := seen[run.ID]; ok {
			dups = append(dups, run.ID)
			continue
		}
		seen[run.ID] = struct{}{}
		out = append(out, run)
	}
	return out, dups
}

func mapSpans(threadID string, unique []runs.Run) ([]*Span, map[string]*Span) {
	spans := make([]*Span, len(unique))
	byID := make(map[string]*Span, len(unique))
	for i, run := range unique {
		spans[i] = newSpan(threadID, run)
		byID[run.ID] = spans[i]
	}
	return spans, byID
}

// link attaches each span to its declared parent when that parent is mapped.
// spans[i] was built from unique[i].
func link(spans []*Span, unique []runs.Run, byID map[string]*Span) (roots []*Span, orphans, selfLinked []string) {
	for i, span := range spans {
		parentID := unique[i].ParentRunID
		switch {
		case parentID == "":
			roots = append(roots, span)
		case parentID == span.ID:
			roots = append(roots, span)
			selfLinked = append(selfLinked, span.ID)
		default:
			parent, ok := byID[parentID]
			if !ok {
				roots = append(roots, span)
				orphans = append(orphans, span.ID)
				continue
			}
			span.ParentSpanID = parent.ID
			parent.Children = append(parent.Children, span)
		}
	}
	return roots, orphans, selfLinked
}

// breakCycles promotes spans unreachable from any root. Such spans sit on or
// under a parent loop; the earliest member of each loop is detached from its
// parent so the loop opens into a tree. Spans hanging off a loop keep their
// parent.
func breakCycles(spans []*Span, roots []*Span) ([]*Span, []string) {
	reached := make(map[string]bool, len(spans))
	for _, r := range roots {
		mark(r, reached)
	}
	if len(reached) == len(spans) {
		return roots, nil
	}

	stranded := make([]*Span, 0, len(spans)-len(reached))
	for _, s := range spans {
		if !reached[s.ID] {
			stranded = append(stranded, s)
		}
	}
	sort.Slice(stranded, func(i, j int) bool { return before(stranded[i], stranded[j]) })

	parents := make(map[string]*Span, len(spans))
	for _, s := range spans {
		for _, c := range s.Children {
			parents[c.ID] = s
		}
	}

	var promoted []string
	for _, s := range stranded {
		if reached[s.ID] {
			continue
		}
		head := loopHead(s, parents)
		if p := parents[head.ID]; p != nil {
			p.Children = removeChild(p.Children, head)
		}
		delete(parents, head.ID)
		head.ParentSpanID = ""
		roots = append(roots, head)
		promoted = append(promoted, head.ID)
		mark(head, reached)
	}
	return roots, promoted
}

// loopHead follows parent links from a stranded span until one repeats and
// returns the earliest span on that loop
func loopHead(s *Span, parents map[string]*Span) *Span {
	pos := make(map[string]int)
	var path []*Span
	for cur := s; cur != nil; cur = parents[cur.ID] {
		if i, ok := pos[cur.ID]; ok {
			head := path[i]
			for _, m := range path[i+1:] {
				if before(m, head) {
					head = m
				}
			}
			return head
		}
		pos[cur.ID] = len(path)
		path = append(path, cur)
	}
	// unreachable spans always end on a loop
	return path[len(path)-1]
}

// mark flags every span under root, stopping at spans already flagged
func mark(root *Span, reached map[string]bool) {
	stack := []*Span{root}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[s.ID] {
			continue
		}
		reached[s.ID] = true
		stack = append(stack, s.Children...)
	}
}

func removeChild(children []*Span, child *Span) []*Span {
	for i, c := range children {
		if c == child {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}

func sortForest(roots []*Span) {
	sort.Slice(roots, func(i, j int) bool { return before(roots[i], roots[j]) })
	_ = Walk(roots, func(s *Span, _ int) error {
		sort.Slice(s.Children, func(i, j int) bool { return before(s.Children[i], s.Children[j]) })
		return nil
	})
}

// Builder wraps Build with anomaly logging and metrics
type Builder struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewBuilder creates a builder
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// WithMetrics attaches a metrics collector
func (b *Builder) WithMetrics(metrics *monitoring.Metrics) *Builder {
	b.metrics = metrics
	return b
}

// Build runs Build and reports anomalies. Anomalies never fail the build.
func (b *Builder) Build(threadID string, input []runs.Run) ([]*Span, Report) {
	roots, report := Build(threadID, input)

	if !report.Clean() {
		b.logger.Warn("Malformed trace data",
			zap.String("thread_id", threadID),
			zap.Strings("duplicates", report.Duplicates),
			zap.Strings("orphans", report.Orphans),
			zap.Strings("cycles", report.Cycles),
		)
	}
	b.metrics.RecordTree(len(input)-len(report.Duplicates), len(report.Duplicates), len(report.Orphans), len(report.Cycles))
	return roots, report
}
