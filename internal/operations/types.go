package operations

// Step identifiers
const (
	StepIDLoad      = "load"
	StepIDFeatures  = "features"
	StepIDEncode    = "encode"
	StepIDScale     = "scale"
	StepIDTrain     = "train"
	StepIDAlternate = "alternate"
	StepIDPersist   = "persist"
	StepIDRegister  = "register"
	StepIDExport    = "export"
)

// Step names
const (
	StepNameLoad      = "Load Records"
	StepNameFeatures  = "Feature Engineering"
	StepNameEncode    = "Categorical Encoding"
	StepNameScale     = "Feature Scaling"
	StepNameTrain     = "Estimator Training"
	StepNameAlternate = "Alternate Estimator"
	StepNamePersist   = "Persist Artifacts"
	StepNameRegister  = "Register Models"
	StepNameExport    = "Export Results"
)

// Progress event types, in the frontend's "scope:verb" format
const (
	EventTypeRunStatus    = "run:status"
	EventTypeStepProgress = "run:progress"
	EventTypeRunComplete  = "run:complete"
	EventTypeRunError     = "run:error"
)

// RunRequest overrides the pipeline configuration for one run. Zero values
// keep the configured setting.
type RunRequest struct {
	ID            string `json:"id,omitempty"`
	Dataset       string `json:"dataset,omitempty" validate:"omitempty,oneof=weather crop"`
	Input         string `json:"input,omitempty"`
	LeakagePolicy string `json:"leakage_policy,omitempty" validate:"omitempty,oneof=train_only fit_before_split"`
	RunAlternate  *bool  `json:"run_alternate,omitempty"`
	ModelVersion  string `json:"model_version,omitempty" validate:"omitempty,max=32,excludesall=/\\"`
}
