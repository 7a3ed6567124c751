package thread

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/runs"
	"github.com/GriffinCanCode/threadscope/internal/spantree"
)

var errStop = errors.New("stop")

// RunSource fetches runs. *runs.Client satisfies it.
type RunSource interface {
	GetRun(ctx context.Context, id string) (*runs.Run, error)
	GetChildRuns(ctx context.Context, traceID string) ([]runs.Run, error)
	GetTopicThreadRuns(ctx context.Context, topicThreadID string) ([]runs.Run, error)
	GetFeatureRuns(ctx context.Context, featureID string, limit int, cursor string) (*runs.Page, error)
}

// Result is one assembled thread
type Result struct {
	Thread Thread           `json:"thread"`
	Spans  []*spantree.Span `json:"spans"`
	Report spantree.Report  `json:"report"`
	// Degraded is set when topic thread runs could not be fetched and the
	// result holds the root trace only
	Degraded bool `json:"degraded,omitempty"`
}

// List is one page of thread summaries
type List struct {
	Threads []Thread     `json:"threads"`
	Cursors runs.Cursors `json:"cursors"`
}

// Assembler fetches the runs of a thread and builds its span forest
type Assembler struct {
	source   RunSource
	features *features.Registry
	builder  *spantree.Builder
	logger   *zap.Logger
}

// NewAssembler creates an assembler
func NewAssembler(source RunSource, registry *features.Registry, builder *spantree.Builder, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = spantree.NewBuilder(logger)
	}
	if registry == nil {
		registry = features.Default()
	}
	return &Assembler{
		source:   source,
		features: registry,
		builder:  builder,
		logger:   logger,
	}
}

// Assemble returns the complete span forest of one thread.
//
// A missing root fails with *runs.NotFoundError. For cross-trace features the
// runs sharing the root's topic thread id are merged in; if that fetch fails
// the trace-only forest is returned with Degraded set.
func (a *Assembler) Assemble(ctx context.Context, threadID, featureID string) (*Result, error) {
	feature, err := a.resolve(featureID)
	if err != nil {
		return nil, err
	}

	root, err := a.source.GetRun(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("fetch thread root: %w", err)
	}

	traceID := root.TraceID
	if traceID == "" {
		traceID = root.ID
	}
	set, err := a.source.GetChildRuns(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("fetch trace %s: %w", traceID, err)
	}

	result := &Result{}
	if topic := root.MetadataString(runs.TopicThreadKey); feature.CrossTrace && topic != "" {
		aux, err := a.source.GetTopicThreadRuns(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Topic thread fetch failed, using trace only",
				zap.String("thread_id", root.ID),
				zap.String("topic_thread_id", topic),
				zap.Error(err),
			)
			result.Degraded = true
		} else {
			set = merge(set, aux, root.ID)
		}
	}

	if !contains(set, root.ID) {
		set = append([]runs.Run{*root}, set...)
	}

	result.Spans, result.Report = a.builder.Build(root.ID, set)
	result.Thread = Summarize(*root, feature.ID)
	result.Thread.Status = aggregateStatus(result.Thread.Status, result.Spans)

	a.logger.Debug("Assembled thread",
		zap.String("thread_id", root.ID),
		zap.String("feature_id", feature.ID),
		zap.Int("spans", spantree.Count(result.Spans)),
		zap.Bool("degraded", result.Degraded),
	)
	return result, nil
}

// ListThreads returns one page of a feature's threads
func (a *Assembler) ListThreads(ctx context.Context, featureID string, limit int, cursor string) (*List, error) {
	if _, err := a.features.Lookup(featureID); err != nil {
		return nil, err
	}

	page, err := a.source.GetFeatureRuns(ctx, featureID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("list %s threads: %w", featureID, err)
	}

	list := &List{Threads: make([]Thread, 0, len(page.Runs)), Cursors: page.Cursors}
	for _, run := range page.Runs {
		list.Threads = append(list.Threads, Summarize(run, featureID))
	}
	return list, nil
}

// resolve looks up the feature; an empty id means no feature
func (a *Assembler) resolve(featureID string) (features.Feature, error) {
	if featureID == "" {
		return features.Feature{}, nil
	}
	return a.features.Lookup(featureID)
}

// merge appends aux runs that are neither the root nor already present
func merge(set, aux []runs.Run, rootID string) []runs.Run {
	present := make(map[string]struct{}, len(set))
	for _, r := range set {
		present[r.ID] = struct{}{}
	}
	for _, r := range aux {
		if r.ID == rootID {
			continue
		}
		if _, ok := present[r.ID]; ok {
			continue
		}
		present[r.ID] = struct{}{}
		set = append(set, r)
	}
	return set
}

func contains(set []runs.Run, id string) bool {
	for _, r := range set {
		if r.ID == id {
			return true
		}
	}
	return false
}
