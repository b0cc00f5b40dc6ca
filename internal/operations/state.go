package operations

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"annadata/internal/categorical"
	"annadata/internal/config"
	"annadata/internal/estimators"
	"annadata/internal/exporter"
	"annadata/internal/features"
	"annadata/internal/frame"
	"annadata/internal/normalize"
	"annadata/internal/training"
	"annadata/internal/variational"
)

// RunState carries everything one run has produced so far. Each step reads
// what its dependencies wrote and adds its own output.
type RunState struct {
	ID       string
	Pipeline config.PipelineConfig
	Paths    config.DatasetPaths
	Manifest *RunManifest

	// load
	Source string
	Raw    *frame.Frame

	// features
	Engine     *features.Engine
	Target     []float64
	Valid      []int              // raw rows with a finite label
	Partition  training.Partition // positions within Valid
	FitRows    []int              // raw rows fitted statistics see; nil means all
	Features   *features.State
	Engineered *frame.Frame

	// encode
	Encoders *categorical.Set

	// scale
	Columns []string
	X       *mat.Dense // scaled design matrix over Valid
	Y       []float64
	Scaler  *normalize.StandardScaler
	Data    *training.Data

	// train
	Roster []estimators.Estimator
	Report *training.Report

	// alternate
	Alternate *variational.Regressor

	// register
	Registered []string

	// export
	Outputs *exporter.Outputs

	mu    sync.RWMutex
	notes map[string]interface{}
}

// NewRunState creates the state of a run over the given pipeline settings
func NewRunState(id string, pipeline config.PipelineConfig, paths config.DatasetPaths, manifest *RunManifest) *RunState {
	return &RunState{
		ID:       id,
		Pipeline: pipeline,
		Paths:    paths,
		Manifest: manifest,
		notes:    make(map[string]interface{}),
	}
}

// Note attaches a value to the current step's manifest metadata
func (s *RunState) Note(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[key] = value
}

// takeNotes returns and clears the notes gathered since the last call
func (s *RunState) takeNotes() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return nil
	}
	out := s.notes
	s.notes = make(map[string]interface{})
	return out
}

// Fitted returns the roster estimator named name
func (s *RunState) Fitted(name string) (estimators.Estimator, bool) {
	for _, est := range s.Roster {
		if est.Name() == name {
			return est, true
		}
	}
	if s.Alternate != nil && s.Alternate.Name() == name {
		return s.Alternate, true
	}
	return nil, false
}
