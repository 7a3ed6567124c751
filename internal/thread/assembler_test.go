package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/runs"
	"github.com/GriffinCanCode/threadscope/internal/spantree"
	"github.com/GriffinCanCode/threadscope/internal/testutil"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetRun(ctx context.Context, id string) (*runs.Run, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*runs.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) GetChildRuns(ctx context.Context, traceID string) ([]runs.Run, error) {
	args := m.Called(ctx, traceID)
	if r := args.Get(0); r != nil {
		return r.([]runs.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) GetTopicThreadRuns(ctx context.Context, topicThreadID string) ([]runs.Run, error) {
	args := m.Called(ctx, topicThreadID)
	if r := args.Get(0); r != nil {
		return r.([]runs.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) GetFeatureRuns(ctx context.Context, featureID string, limit int, cursor string) (*runs.Page, error) {
	args := m.Called(ctx, featureID, limit, cursor)
	if r := args.Get(0); r != nil {
		return r.(*runs.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func at(sec int) time.Time {
	return testutil.Epoch.Add(time.Duration(sec) * time.Second)
}

func newRun(id, trace, parent string, startSec int) runs.Run {
	end := at(startSec + 1)
	return runs.Run{
		ID:          id,
		TraceID:     trace,
		ParentRunID: parent,
		Name:        "run-" + id,
		StartTime:   at(startSec),
		EndTime:     &end,
	}
}

func childIDs(s *spantree.Span) []string {
	out := make([]string, len(s.Children))
	for i, c := range s.Children {
		out[i] = c.ID
	}
	return out
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()
	root := newRun("R1", "t1", "", 0)

	t.Run("orders children by start time", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return([]runs.Run{
			root,
			newRun("C1", "t1", "R1", 1),
			newRun("C2", "t1", "R1", 0),
		}, nil)

		res, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", features.SocraticSensei)
		require.NoError(t, err)

		require.Len(t, res.Spans, 1)
		assert.Equal(t, "R1", res.Spans[0].ID)
		assert.Equal(t, []string{"C2", "C1"}, childIDs(res.Spans[0]))
		assert.Equal(t, "R1", res.Thread.ID)
		assert.Equal(t, features.SocraticSensei, res.Thread.FeatureID)
		assert.True(t, res.Report.Clean())
		src.AssertNotCalled(t, "GetTopicThreadRuns", mock.Anything, mock.Anything)
	})

	t.Run("duplicate children collapse", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return([]runs.Run{
			root,
			newRun("C1", "t1", "R1", 1),
			newRun("C1", "t1", "R1", 1),
		}, nil)

		res, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", "")
		require.NoError(t, err)

		assert.Equal(t, []string{"C1"}, childIDs(res.Spans[0]))
		assert.Equal(t, []string{"C1"}, res.Report.Duplicates)
	})

	t.Run("root missing from trace is added", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return([]runs.Run{newRun("C1", "t1", "R1", 1)}, nil)

		res, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", "")
		require.NoError(t, err)

		require.Len(t, res.Spans, 1)
		assert.Equal(t, []string{"C1"}, childIDs(res.Spans[0]))
	})

	t.Run("root not found", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "nope").Return(nil, &runs.NotFoundError{Kind: "run", ID: "nope"})

		_, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "nope", "")

		var nf *runs.NotFoundError
		require.ErrorAs(t, err, &nf)
		src.AssertNotCalled(t, "GetChildRuns", mock.Anything, mock.Anything)
	})

	t.Run("unknown feature fails before any fetch", func(t *testing.T) {
		src := new(mockSource)

		_, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", "nope")

		var unknown *features.UnknownFeatureError
		require.ErrorAs(t, err, &unknown)
		src.AssertExpectations(t)
		assert.Empty(t, src.Calls)
	})

	t.Run("trace fetch failure propagates", func(t *testing.T) {
		boom := errors.New("boom")
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return(nil, boom)

		_, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", "")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("aggregate status", func(t *testing.T) {
		failed := newRun("C1", "t1", "R1", 1)
		failed.Error = "tool crashed"
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return([]runs.Run{root, failed}, nil)

		res, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", "")
		require.NoError(t, err)
		assert.Equal(t, spantree.StatusError, res.Thread.Status)
	})
}

func TestAssembleCrossTrace(t *testing.T) {
	ctx := context.Background()
	root := newRun("R1", "t1", "", 0)
	root.Metadata = map[string]any{runs.TopicThreadKey: "topic-1"}
	trace := []runs.Run{root, newRun("C1", "t1", "R1", 1)}

	t.Run("merges topic thread runs", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return(trace, nil)
		src.On("GetTopicThreadRuns", ctx, "topic-1").Return([]runs.Run{
			root,
			newRun("C1", "t1", "R1", 1),
			newRun("R2", "t2", "", 5),
		}, nil)

		res, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", features.Articulation)
		require.NoError(t, err)

		require.Len(t, res.Spans, 2)
		assert.Equal(t, "R1", res.Spans[0].ID)
		assert.Equal(t, "R2", res.Spans[1].ID)
		assert.True(t, res.Report.Clean(), "root and known ids are excluded before building")
		assert.False(t, res.Degraded)
		assert.Equal(t, "topic-1", res.Thread.TopicThreadID)
	})

	t.Run("aux failure degrades to trace only", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return(trace, nil)
		src.On("GetTopicThreadRuns", ctx, "topic-1").Return(nil, errors.New("503"))

		res, err := NewAssembler(src, nil, nil, zap.New(core)).Assemble(ctx, "R1", features.Planning)
		require.NoError(t, err)

		assert.True(t, res.Degraded)
		assert.Equal(t, 2, spantree.Count(res.Spans))
		assert.Equal(t, 1, logs.FilterMessage("Topic thread fetch failed, using trace only").Len())
	})

	t.Run("single trace features skip the topic fetch", func(t *testing.T) {
		src := new(mockSource)
		src.On("GetRun", ctx, "R1").Return(&root, nil)
		src.On("GetChildRuns", ctx, "t1").Return(trace, nil)

		_, err := NewAssembler(src, nil, nil, nil).Assemble(ctx, "R1", features.CodeReview)
		require.NoError(t, err)
		src.AssertNotCalled(t, "GetTopicThreadRuns", mock.Anything, mock.Anything)
	})
}

func TestListThreads(t *testing.T) {
	ctx := context.Background()
	r1 := newRun("R1", "t1", "", 0)
	r1.Inputs = map[string]any{"question": "<b>What</b> is a monad?"}
	r2 := newRun("R2", "t2", "", 9)

	src := new(mockSource)
	src.On("GetFeatureRuns", ctx, features.SocraticSensei, 25, "c0").Return(&runs.Page{
		Runs:    []runs.Run{r1, r2},
		Cursors: runs.Cursors{Next: "c1"},
	}, nil)

	list, err := NewAssembler(src, nil, nil, nil).ListThreads(ctx, features.SocraticSensei, 25, "c0")
	require.NoError(t, err)

	require.Len(t, list.Threads, 2)
	assert.Equal(t, "What is a monad?", list.Threads[0].Preview)
	assert.Equal(t, "c1", list.Cursors.Next)
	src.AssertExpectations(t)

	_, err = NewAssembler(src, nil, nil, nil).ListThreads(ctx, "nope", 25, "")
	var unknown *features.UnknownFeatureError
	assert.ErrorAs(t, err, &unknown)
}
