package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/infrastructure"
)

// Manager runs the training pipeline, one run at a time.
type Manager struct {
	deps     *Deps
	tracer   *RunTracer
	validate *validator.Validate
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
	last    *RunManifest
}

// NewManager creates a manager over deps. Config, Paths and Codec are
// required; a nil Logger falls back to slog.Default().
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:     &deps,
		tracer:   NewRunTracer(deps.Tracer, deps.Metrics),
		validate: validator.New(),
		logger:   deps.Logger.With(slog.String("component", "operations_manager")),
	}
}

// Running reports whether a run is in progress
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Last returns the manifest of the current or most recent run, or nil
func (m *Manager) Last() *RunManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Resolve applies a request's overrides to the configured pipeline settings
func (m *Manager) Resolve(req RunRequest) (config.PipelineConfig, error) {
	if err := m.validate.Struct(req); err != nil {
		return config.PipelineConfig{}, apperrors.NewAppValidationError(fmt.Sprintf("invalid run request: %v", err))
	}
	p := m.deps.Config.Pipeline
	if req.Dataset != "" {
		p.Dataset = req.Dataset
	}
	if req.Input != "" {
		p.Input = req.Input
	}
	if req.LeakagePolicy != "" {
		p.LeakagePolicy = req.LeakagePolicy
	}
	if req.RunAlternate != nil {
		p.RunAlternate = *req.RunAlternate
	}
	if req.ModelVersion != "" {
		p.ModelVersion = req.ModelVersion
	}
	return p, nil
}

// Run executes every step for one dataset and returns the run manifest.
// It fails with ErrRunInProgress while another run is active. On a step
// failure the partial manifest is returned together with an
// OperationError naming the step.
func (m *Manager) Run(ctx context.Context, req RunRequest) (*RunManifest, error) {
	pipeline, err := m.Resolve(req)
	if err != nil {
		return nil, err
	}
	if !m.acquire() {
		return nil, ErrRunInProgress
	}
	defer m.release()

	return m.run(ctx, runID(req), pipeline)
}

// Start launches a run in the background and returns its ID. The returned
// channel yields the run's error, or nil, once the run has finished.
// ErrRunInProgress is reported synchronously.
func (m *Manager) Start(ctx context.Context, req RunRequest) (string, <-chan error, error) {
	pipeline, err := m.Resolve(req)
	if err != nil {
		return "", nil, err
	}
	if !m.acquire() {
		return "", nil, ErrRunInProgress
	}

	id := runID(req)
	// The manifest is visible through Last before Start returns
	m.setLast(NewRunManifest(id, pipeline.Dataset, pipeline.LeakagePolicy, pipeline.ModelVersion))

	done := make(chan error, 1)
	go func() {
		_, err := m.run(ctx, id, pipeline)
		m.release()
		if err != nil {
			m.logger.WarnContext(ctx, "background run ended with error",
				slog.String("run_id", id),
				slog.String("error", err.Error()))
		}
		done <- err
		close(done)
	}()
	return id, done, nil
}

func runID(req RunRequest) string {
	if req.ID != "" {
		return req.ID
	}
	return uuid.New().String()
}

func (m *Manager) setLast(manifest *RunManifest) {
	m.mu.Lock()
	m.last = manifest
	m.mu.Unlock()
}

// run must be called with the run slot held
func (m *Manager) run(ctx context.Context, id string, pipeline config.PipelineConfig) (*RunManifest, error) {
	ctx = infrastructure.WithRunID(infrastructure.EnsureTraceID(ctx), id)
	ctx, cancel := context.WithTimeout(ctx, config.DefaultOperationTimeout)
	defer cancel()

	start := time.Now()
	ctx, span := m.tracer.TraceRun(ctx, id, pipeline.Dataset, pipeline.LeakagePolicy)

	manifest := m.Last()
	if manifest == nil || manifest.ID != id || manifest.GetStatus() != RunStatusPending {
		manifest = NewRunManifest(id, pipeline.Dataset, pipeline.LeakagePolicy, pipeline.ModelVersion)
		m.setLast(manifest)
	}

	err := m.execute(ctx, pipeline, manifest)
	m.tracer.RecordRunCompletion(ctx, span, pipeline.Dataset, time.Since(start), err)
	return manifest, err
}

func (m *Manager) execute(ctx context.Context, pipeline config.PipelineConfig, manifest *RunManifest) error {
	logger := m.logger.With(slog.String("run_id", manifest.ID), slog.String("dataset", pipeline.Dataset))

	paths, err := m.deps.Paths.EnsureDataset(pipeline.Dataset)
	if err != nil {
		fatal := NewFatalError("prepare artifact directories", err)
		manifest.Fail("", fatal)
		return fatal
	}
	steps, err := m.orderedSteps()
	if err != nil {
		fatal := NewFatalError("order steps", err)
		manifest.Fail("", fatal)
		return fatal
	}

	state := NewRunState(manifest.ID, pipeline, paths, manifest)
	tracker := NewProgressTracker(len(steps))
	manifest.SetStatus(RunStatusRunning)

	logger.InfoContext(ctx, "pipeline run started",
		slog.String("leakage_policy", pipeline.LeakagePolicy),
		slog.Bool("run_alternate", pipeline.RunAlternate),
		slog.Int("steps", len(steps)))
	m.broadcast(EventTypeRunStatus, "", RunStatusRunning, map[string]interface{}{
		"run_id":  manifest.ID,
		"dataset": pipeline.Dataset,
		"steps":   len(steps),
	})

	for _, step := range steps {
		if err := m.executeStep(ctx, logger, step, state, tracker); err != nil {
			manifest.Fail(step.ID(), err)
			m.saveManifest(ctx, logger, manifest, paths.Manifest)
			logger.ErrorContext(ctx, "pipeline run failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			m.broadcast(EventTypeRunError, step.ID(), manifest.GetStatus(), map[string]interface{}{
				"run_id": manifest.ID,
				"error":  err.Error(),
			})
			return err
		}
	}

	manifest.SetStatus(RunStatusCompleted)
	m.saveManifest(ctx, logger, manifest, paths.Manifest)
	logger.InfoContext(ctx, "pipeline run completed",
		slog.Int("registered", len(state.Registered)),
		slog.String("manifest", paths.Manifest))
	m.broadcast(EventTypeRunComplete, "", RunStatusCompleted, map[string]interface{}{
		"run_id": manifest.ID,
		"models": state.Registered,
	})
	return nil
}

func (m *Manager) orderedSteps() ([]Step, error) {
	r, err := NewPipeline(m.deps)
	if err != nil {
		return nil, err
	}
	return r.GetDependencyOrder()
}

func (m *Manager) executeStep(ctx context.Context, logger *slog.Logger, step Step, state *RunState, tracker *ProgressTracker) error {
	id := step.ID()
	if err := ctx.Err(); err != nil {
		return NewCancellationError(id, err)
	}

	ss := NewStepState(id, step.Name())
	if err := step.Validate(state); err != nil {
		if !errors.Is(err, ErrNotApplicable) {
			return NewValidationError(id, err.Error())
		}
		ss.Skip(err.Error())
		state.Manifest.RecordStageSkipped(id, step.Name(), err.Error())
		tracker.Increment(step.Name())
		logger.InfoContext(ctx, "step skipped", slog.String("step", id))
		m.broadcast(EventTypeStepProgress, id, string(StepStatusSkipped), tracker.Snapshot())
		return nil
	}

	stepCtx, span := m.tracer.TraceStep(ctx, state.ID, id)
	ss.Start()
	state.Manifest.RecordStageStart(id, step.Name())
	m.broadcast(EventTypeStepProgress, id, string(StepStatusActive), tracker.Snapshot())

	err := step.Execute(stepCtx, state)
	m.tracer.RecordStepCompletion(stepCtx, span, state.Pipeline.Dataset, id, ss.Duration(), err)
	notes := state.takeNotes()

	if err != nil {
		ss.Fail(err)
		state.Manifest.RecordStageFailure(id, err)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return NewCancellationError(id, err)
		}
		return NewExecutionError(id, err)
	}

	ss.Complete()
	state.Manifest.RecordStageCompletion(id, notes)
	m.saveManifest(ctx, logger, state.Manifest, state.Paths.Manifest)
	if id == StepIDLoad && state.Raw != nil {
		m.tracer.RecordRows(ctx, state.Pipeline.Dataset, state.Raw.Len())
	}
	tracker.Increment(step.Name())

	logger.InfoContext(ctx, "step completed",
		slog.String("step", id),
		slog.Duration("duration", ss.Duration()))
	progress := tracker.Snapshot()
	for k, v := range notes {
		progress[k] = v
	}
	m.broadcast(EventTypeStepProgress, id, string(StepStatusCompleted), progress)
	return nil
}

// saveManifest never fails a run; a manifest that cannot be written is logged
func (m *Manager) saveManifest(ctx context.Context, logger *slog.Logger, manifest *RunManifest, path string) {
	if err := manifest.Save(path); err != nil {
		logger.WarnContext(ctx, "run manifest not saved",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) broadcast(eventType, step, status string, metadata map[string]interface{}) {
	if m.deps.Sink == nil {
		return
	}
	m.deps.Sink.BroadcastUpdate(eventType, step, status, metadata)
}
