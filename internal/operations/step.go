package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one unit of a pipeline run.
type Step interface {
	ID() string
	Name() string

	// Validate checks the run can execute the step. ErrNotApplicable
	// skips it; any other error fails the run.
	Validate(state *RunState) error

	Execute(ctx context.Context, state *RunState) error

	// GetDependencies returns the IDs of steps that must complete first
	GetDependencies() []string
}

// StepStatus represents the current status of a Step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of a Step
type StepState struct {
	mu        sync.RWMutex
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the Step active
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

// Complete marks the Step as completed
func (s *StepState) Complete() { s.finish(StepStatusCompleted, "", "") }

// Fail marks the Step as failed, keeping err's message
func (s *StepState) Fail(err error) {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	s.finish(StepStatusFailed, "", msg)
}

// Skip marks the Step as skipped for reason
func (s *StepState) Skip(reason string) { s.finish(StepStatusSkipped, reason, "") }

// finish moves the Step to a terminal status and stamps its end time
func (s *StepState) finish(status StepStatus, message, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = status
	if message != "" {
		s.Message = message
	}
	if errMsg != "" {
		s.Error = errMsg
	}
}

// Set records a metadata value
func (s *StepState) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// Snapshot copies the metadata
func (s *StepState) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		out[k] = v
	}
	return out
}

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the duration of the Step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// BaseStep provides the identity half of a Step
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStep creates a new base Step
func NewBaseStep(id, name string, dependencies ...string) BaseStep {
	if dependencies == nil {
		dependencies = []string{}
	}
	return BaseStep{id: id, name: name, dependencies: dependencies}
}

func (b *BaseStep) ID() string                { return b.id }
func (b *BaseStep) Name() string              { return b.name }
func (b *BaseStep) GetDependencies() []string { return b.dependencies }

// Validate accepts every run
func (b *BaseStep) Validate(*RunState) error { return nil }
