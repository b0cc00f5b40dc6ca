package config

import "time"

// Application constants
const (
	// Application Info
	AppName    = "annadata"
	AppVersion = "1.0.0"

	// Datasets
	DatasetWeather = "weather"
	DatasetCrop    = "crop"

	// Target columns
	WeatherTarget = "temperature_current"
	CropTarget    = "Yield"

	// Leakage policies for fitted feature statistics
	LeakageTrainOnly      = "train_only"
	LeakageFitBeforeSplit = "fit_before_split"

	// Reproducibility
	DefaultRandomState  = 42
	DefaultTestFraction = 0.2
	DefaultCVFolds      = 5

	// Feature engineering
	YearCyclePeriod     = 24.0
	SeasonCyclePeriod   = 6.0
	CropRatioEpsilon    = 1.0
	WeatherRatioEpsilon = 0.01
	OtherCategory       = "Other"

	// File Paths (relative to the base directory)
	DefaultDataDir      = "data"
	DefaultArtifactsDir = "artifacts"
	DefaultReportsDir   = "reports"
	DefaultLogsDir      = "logs"
	DefaultRegistryFile = "artifacts/model_registry.json"

	// Artifact file names inside a dataset directory
	FeatureStateFile = "feature_state.gob"
	EncoderFile      = "encoder.gob"
	ScalerFile       = "scaler.gob"
	CompressorFile   = "compressor.gob"
	ManifestFile     = "manifest.json"
	ModelsSubdir     = "models"
	ModelExtension   = ".gob"

	// Operation Timeouts
	DefaultOperationTimeout = 2 * time.Hour

	// WebSocket
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024
	WebSocketPingPeriod      = 30 * time.Second
	WebSocketPongWait        = 60 * time.Second
)

// AgriculturalRegions are the regions synthesised when no weather input is given.
var AgriculturalRegions = []string{
	"Delhi NCR",
	"Punjab",
	"Haryana",
	"Maharashtra",
	"Karnataka",
	"Tamil Nadu",
	"West Bengal",
	"Madhya Pradesh",
}

// TargetFor returns the default target column of a dataset.
func TargetFor(dataset string) string {
	if dataset == DatasetCrop {
		return CropTarget
	}
	return WeatherTarget
}
