package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	apperrors "annadata/internal/errors"
	"annadata/internal/operations"
)

// RunStarted acknowledges a pipeline run accepted for background execution
type RunStarted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunService starts pipeline runs that outlive the request which asked for
// them. Runs are bound to the service's own context, cancelled by Close.
type RunService struct {
	manager *operations.Manager
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunService creates a run service over manager
func NewRunService(manager *operations.Manager, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		manager: manager,
		logger:  logger.With(slog.String("component", "run_service")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches a run. A run already in progress is reported as
// apperrors.ErrRunInProgress.
func (s *RunService) Start(ctx context.Context, req operations.RunRequest) (RunStarted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RunStarted{}, ErrServiceClosed
	}

	id, done, err := s.manager.Start(s.ctx, req)
	if err != nil {
		if errors.Is(err, operations.ErrRunInProgress) {
			return RunStarted{}, apperrors.ErrRunInProgress
		}
		return RunStarted{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-done
	}()

	s.logger.InfoContext(ctx, "pipeline run accepted", slog.String("run_id", id))
	return RunStarted{RunID: id, Status: operations.RunStatusPending}, nil
}

// Last returns a snapshot of the current or most recent run manifest
func (s *RunService) Last(ctx context.Context) (*operations.RunManifest, error) {
	m := s.manager.Last()
	if m == nil {
		return nil, apperrors.NewNotFoundError("pipeline run").WithContext("reason", ErrNoRun.Error())
	}
	return m.Snapshot(), nil
}

// Running reports whether a run is in progress
func (s *RunService) Running() bool {
	return s.manager.Running()
}

// Close cancels in-flight runs and waits for them to stop or for ctx to end
func (s *RunService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
