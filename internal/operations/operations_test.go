package operations

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "annadata/internal/errors"
)

type fakeStep struct {
	BaseStep
	run      func(*RunState) error
	validate error
}

func newFakeStep(id string, deps ...string) *fakeStep {
	return &fakeStep{BaseStep: NewBaseStep(id, id, deps...)}
}

func (s *fakeStep) Validate(*RunState) error { return s.validate }

func (s *fakeStep) Execute(_ context.Context, state *RunState) error {
	if s.run != nil {
		return s.run(state)
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) BroadcastUpdate(eventType, step, status string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType+"/"+step+"/"+status)
}

func (r *recordingSink) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID()
	}
	return out
}

func TestDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*fakeStep
		want    []string
		wantErr string
	}{
		{
			name: "registration order among ready steps",
			steps: []*fakeStep{
				newFakeStep("export", "train"),
				newFakeStep("load"),
				newFakeStep("train", "load"),
				newFakeStep("register", "train"),
			},
			want: []string{"load", "train", "export", "register"},
		},
		{
			name: "diamond",
			steps: []*fakeStep{
				newFakeStep("a"),
				newFakeStep("c", "a"),
				newFakeStep("b", "a"),
				newFakeStep("d", "b", "c"),
			},
			want: []string{"a", "c", "b", "d"},
		},
		{
			name:    "missing dependency",
			steps:   []*fakeStep{newFakeStep("train", "load")},
			wantErr: "non-existent",
		},
		{
			name:    "cycle",
			steps:   []*fakeStep{newFakeStep("a", "b"), newFakeStep("b", "a")},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, s := range tt.steps {
				require.NoError(t, r.Register(s))
			}
			order, err := r.GetDependencyOrder()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(order))
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("load")))
	assert.Error(t, r.Register(newFakeStep("load")))
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newFakeStep("")))
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Has("load"))

	_, err := r.Get("train")
	assert.Error(t, err)
}

func TestPipelineStepOrder(t *testing.T) {
	r, err := NewPipeline(&Deps{})
	require.NoError(t, err)
	order, err := r.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		StepIDLoad, StepIDFeatures, StepIDEncode, StepIDScale, StepIDTrain,
		StepIDAlternate, StepIDPersist, StepIDRegister, StepIDExport,
	}, ids(order))
	assert.Len(t, r.GetDependents(StepIDTrain), 2)
}

func TestOperationErrors(t *testing.T) {
	cause := apperrors.NewDataError("no records", nil)
	err := NewExecutionError(StepIDLoad, cause)

	assert.Equal(t, "[execution] load: step failed: [DATA] no records", err.Error())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))
	assert.Equal(t, StepIDLoad, StepOf(err))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(err))
	assert.Equal(t, ErrorTypeInvalidState, GetErrorType(ErrRunInProgress))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetErrorType(nil))

	cancelled := NewCancellationError(StepIDTrain, context.Canceled)
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.Equal(t, "", StepOf(errors.New("plain")))
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := NewRunManifest("run-1", "crop", "train_only", "v1")
	m.SetStatus(RunStatusRunning)
	m.RecordStageStart(StepIDLoad, StepNameLoad)
	m.RecordStageCompletion(StepIDLoad, map[string]interface{}{"rows": 12})
	m.RecordStageSkipped(StepIDAlternate, StepNameAlternate, "not requested")
	m.RecordStageStart(StepIDTrain, StepNameTrain)
	m.RecordStageFailure(StepIDTrain, errors.New("boom"))
	m.AddArtifact("scaler", "/tmp/scaler.gob")
	m.Fail(StepIDTrain, NewExecutionError(StepIDTrain, errors.New("boom")))
	require.NoError(t, m.Save(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, loaded.Status)
	assert.Equal(t, StepIDTrain, loaded.FailedStep)
	assert.Equal(t, "/tmp/scaler.gob", loaded.Artifacts["scaler"])
	require.Len(t, loaded.Stages, 3)

	load, ok := loaded.Stage(StepIDLoad)
	require.True(t, ok)
	assert.Equal(t, string(StepStatusCompleted), load.Status)
	assert.EqualValues(t, 12, load.Metadata["rows"])

	train, _ := loaded.Stage(StepIDTrain)
	assert.Equal(t, string(StepStatusFailed), train.Status)
	assert.Equal(t, "boom", train.Error)

	skipped, _ := loaded.Stage(StepIDAlternate)
	assert.Equal(t, string(StepStatusSkipped), skipped.Status)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestManifestCancelledStatus(t *testing.T) {
	m := NewRunManifest("run-2", "weather", "train_only", "v1")
	m.Fail(StepIDFeatures, NewCancellationError(StepIDFeatures, context.Canceled))
	assert.Equal(t, RunStatusCancelled, m.GetStatus())
	assert.False(t, m.EndTime.IsZero())
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(4)
	assert.Equal(t, "calculating...", p.GetETA())
	p.Increment("load")
	current, total, pct, msg := p.GetProgress()
	assert.Equal(t, 1, current)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 25.0, pct, 1e-9)
	assert.Equal(t, "load", msg)
	assert.Contains(t, p.Snapshot(), "eta")
}

func TestStepStateTransitions(t *testing.T) {
	s := NewStepState(StepIDScale, StepNameScale)
	assert.Equal(t, StepStatusPending, s.GetStatus())
	assert.Zero(t, s.Duration())
	s.Start()
	s.Set("columns", 3)
	s.Fail(errors.New("bad"))
	assert.Equal(t, StepStatusFailed, s.GetStatus())
	assert.Equal(t, "bad", s.Error)
	assert.Equal(t, 3, s.Snapshot()["columns"])
}
