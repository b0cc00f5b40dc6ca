package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
)

// Run status values
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunManifest is the record of one pipeline run. It is the single source of
// truth for what a run produced and is saved next to the dataset artifacts.
type RunManifest struct {
	mu sync.RWMutex

	ID            string    `json:"id"`
	Dataset       string    `json:"dataset"`
	Source        string    `json:"source,omitempty"`
	LeakagePolicy string    `json:"leakage_policy"`
	ModelVersion  string    `json:"model_version"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time,omitempty"`

	// Artifacts maps an artifact role ("feature_state", "model:<name>") to its path
	Artifacts map[string]string `json:"artifacts"`
	// Models lists the registry names this run registered
	Models []string `json:"models,omitempty"`

	Stages []StageExecution `json:"stages"`

	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
	FailedStep  string    `json:"failed_step,omitempty"`
}

// StageExecution records one step of a run
type StageExecution struct {
	StageID   string                 `json:"stage_id"`
	StageName string                 `json:"stage_name"`
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewRunManifest creates a pending manifest
func NewRunManifest(id, dataset, policy, version string) *RunManifest {
	now := time.Now().UTC()
	return &RunManifest{
		ID:            id,
		Dataset:       dataset,
		LeakagePolicy: policy,
		ModelVersion:  version,
		StartTime:     now,
		Artifacts:     make(map[string]string),
		Stages:        []StageExecution{},
		Status:        RunStatusPending,
		LastUpdated:   now,
	}
}

// SetStatus updates the run status
func (m *RunManifest) SetStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = status
	m.LastUpdated = time.Now().UTC()
	if status == RunStatusCompleted || status == RunStatusFailed || status == RunStatusCancelled {
		m.EndTime = m.LastUpdated
	}
}

// GetStatus returns the run status
func (m *RunManifest) GetStatus() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Status
}

// Fail marks the run failed at step
func (m *RunManifest) Fail(step string, err error) {
	status := RunStatusFailed
	if GetErrorType(err) == ErrorTypeCancellation {
		status = RunStatusCancelled
	}
	m.SetStatus(status)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedStep = step
	if err != nil {
		m.Error = err.Error()
	}
}

// SetSource records where the run's records came from
func (m *RunManifest) SetSource(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Source = source
}

// AddArtifact records a file the run wrote
func (m *RunManifest) AddArtifact(role, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Artifacts[role] = path
	m.LastUpdated = time.Now().UTC()
}

// AddModel records a registered model name
func (m *RunManifest) AddModel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Models = append(m.Models, name)
}

// RecordStageStart opens the execution record of a step
func (m *RunManifest) RecordStageStart(stageID, stageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.Stages = append(m.Stages, StageExecution{
		StageID:   stageID,
		StageName: stageName,
		StartTime: now,
		Status:    string(StepStatusActive),
	})
	m.LastUpdated = now
}

// RecordStageCompletion closes a step record as completed
func (m *RunManifest) RecordStageCompletion(stageID string, metadata map[string]interface{}) {
	m.closeStage(stageID, StepStatusCompleted, "", metadata)
}

// RecordStageFailure closes a step record as failed
func (m *RunManifest) RecordStageFailure(stageID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.closeStage(stageID, StepStatusFailed, msg, nil)
}

// RecordStageSkipped records a step that did not apply to the run
func (m *RunManifest) RecordStageSkipped(stageID, stageName, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.Stages = append(m.Stages, StageExecution{
		StageID:   stageID,
		StageName: stageName,
		StartTime: now,
		EndTime:   now,
		Status:    string(StepStatusSkipped),
		Metadata:  map[string]interface{}{"reason": reason},
	})
	m.LastUpdated = now
}

func (m *RunManifest) closeStage(stageID string, status StepStatus, errMsg string, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for i := len(m.Stages) - 1; i >= 0; i-- {
		if m.Stages[i].StageID != stageID {
			continue
		}
		m.Stages[i].EndTime = now
		m.Stages[i].Duration = now.Sub(m.Stages[i].StartTime).String()
		m.Stages[i].Status = string(status)
		m.Stages[i].Error = errMsg
		if metadata != nil {
			m.Stages[i].Metadata = metadata
		}
		break
	}
	m.LastUpdated = now
}

// Stage returns the last execution record of a step
func (m *RunManifest) Stage(stageID string) (StageExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.Stages) - 1; i >= 0; i-- {
		if m.Stages[i].StageID == stageID {
			return m.Stages[i], true
		}
	}
	return StageExecution{}, false
}

// Snapshot returns a copy that can be read or encoded while the run goes on
func (m *RunManifest) Snapshot() *RunManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := &RunManifest{
		ID:            m.ID,
		Dataset:       m.Dataset,
		Source:        m.Source,
		LeakagePolicy: m.LeakagePolicy,
		ModelVersion:  m.ModelVersion,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		Artifacts:     make(map[string]string, len(m.Artifacts)),
		Models:        append([]string(nil), m.Models...),
		Stages:        make([]StageExecution, len(m.Stages)),
		Status:        m.Status,
		LastUpdated:   m.LastUpdated,
		Error:         m.Error,
		FailedStep:    m.FailedStep,
	}
	for k, v := range m.Artifacts {
		c.Artifacts[k] = v
	}
	for i, st := range m.Stages {
		if st.Metadata != nil {
			md := make(map[string]interface{}, len(st.Metadata))
			for k, v := range st.Metadata {
				md[k] = v
			}
			st.Metadata = md
		}
		c.Stages[i] = st
	}
	return c
}

// Save writes the manifest as indented JSON, replacing any previous file atomically
func (m *RunManifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return apperrors.NewStorageError("marshal run manifest", err)
	}
	if err := files.WriteAtomic(path, data, 0o644); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("write run manifest %s", path), err)
	}
	return nil
}

// LoadManifest reads a manifest written by Save
func LoadManifest(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("run manifest " + path)
		}
		return nil, apperrors.NewStorageError("read run manifest", err)
	}
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.NewStorageError("parse run manifest", err)
	}
	if m.Artifacts == nil {
		m.Artifacts = make(map[string]string)
	}
	return &m, nil
}
