package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. ANNADATA_PIPELINE_DATASET.
const EnvPrefix = "ANNADATA"

// Config represents the complete application configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Features   FeaturesConfig   `yaml:"features" envconfig:"FEATURES"`
	Estimators EstimatorsConfig `yaml:"estimators" envconfig:"ESTIMATORS"`
	Alternate  AlternateConfig  `yaml:"alternate" envconfig:"ALTERNATE"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// PathsConfig contains file system locations, relative paths resolve against BaseDir
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	ArtifactsDir string `yaml:"artifacts_dir" envconfig:"ARTIFACTS_DIR" validate:"required"`
	ReportsDir   string `yaml:"reports_dir" envconfig:"REPORTS_DIR" validate:"required"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE" validate:"required"`
}

// PipelineConfig controls one training run
type PipelineConfig struct {
	Dataset       string  `yaml:"dataset" envconfig:"DATASET" validate:"oneof=weather crop"`
	Input         string  `yaml:"input" envconfig:"INPUT"`
	LeakagePolicy string  `yaml:"leakage_policy" envconfig:"LEAKAGE_POLICY" validate:"oneof=train_only fit_before_split"`
	Seed          int64   `yaml:"seed" envconfig:"SEED"`
	TestFraction  float64 `yaml:"test_fraction" envconfig:"TEST_FRACTION" validate:"gt=0,lt=1"`
	CVFolds       int     `yaml:"cv_folds" envconfig:"CV_FOLDS" validate:"gte=2"`
	RunAlternate  bool    `yaml:"run_alternate" envconfig:"RUN_ALTERNATE"`
	ModelVersion  string  `yaml:"model_version" envconfig:"MODEL_VERSION" validate:"required"`

	// Synthetic weather generation, used when Input is empty
	SyntheticRegions []string `yaml:"synthetic_regions" envconfig:"SYNTHETIC_REGIONS"`
	SyntheticDays    int      `yaml:"synthetic_days" envconfig:"SYNTHETIC_DAYS" validate:"gte=0"`
}

// FeaturesConfig holds the window sizes and encoder widths of the feature engine
type FeaturesConfig struct {
	Lags           []int `yaml:"lags" envconfig:"LAGS" validate:"min=1,dive,gt=0"`
	RollingWindows []int `yaml:"rolling_windows" envconfig:"ROLLING_WINDOWS" validate:"min=1,dive,gt=0"`
	CropTopN       int   `yaml:"crop_top_n" envconfig:"CROP_TOP_N" validate:"gte=1"`
	StateTopN      int   `yaml:"state_top_n" envconfig:"STATE_TOP_N" validate:"gte=1"`
}

// EstimatorsConfig declares the classical roster and its fixed hyperparameters
type EstimatorsConfig struct {
	Enabled               []string `yaml:"enabled" envconfig:"ENABLED" validate:"min=1,dive,oneof=linear_regression random_forest kernel_ridge"`
	ForestTrees           int      `yaml:"forest_trees" envconfig:"FOREST_TREES" validate:"gte=1"`
	ForestMaxDepth        int      `yaml:"forest_max_depth" envconfig:"FOREST_MAX_DEPTH" validate:"gte=1"`
	ForestMinSamplesSplit int      `yaml:"forest_min_samples_split" envconfig:"FOREST_MIN_SAMPLES_SPLIT" validate:"gte=2"`
	KernelC               float64  `yaml:"kernel_c" envconfig:"KERNEL_C" validate:"gt=0"`
	KernelGamma           float64  `yaml:"kernel_gamma" envconfig:"KERNEL_GAMMA" validate:"gte=0"`
	KernelMaxSamples      int      `yaml:"kernel_max_samples" envconfig:"KERNEL_MAX_SAMPLES" validate:"gte=2"`
}

// AlternateConfig configures the compressed, iteratively optimised estimator
type AlternateConfig struct {
	Components      int     `yaml:"components" envconfig:"COMPONENTS" validate:"gte=1"`
	EmbeddingWidth  int     `yaml:"embedding_width" envconfig:"EMBEDDING_WIDTH" validate:"gte=1,lte=12"`
	FeatureMapReps  int     `yaml:"feature_map_reps" envconfig:"FEATURE_MAP_REPS" validate:"gte=1"`
	AnsatzReps      int     `yaml:"ansatz_reps" envconfig:"ANSATZ_REPS" validate:"gte=1"`
	MaxIterations   int     `yaml:"max_iterations" envconfig:"MAX_ITERATIONS" validate:"gte=1"`
	MaxTrainSamples int     `yaml:"max_train_samples" envconfig:"MAX_TRAIN_SAMPLES" validate:"gte=1"`
	MaxTestSamples  int     `yaml:"max_test_samples" envconfig:"MAX_TEST_SAMPLES" validate:"gte=1"`
	BaselineMSE     float64 `yaml:"baseline_mse" envconfig:"BASELINE_MSE" validate:"gte=0"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	// AllowedOrigins may open the progress stream; empty allows same-origin only
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML document onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findConfigFile returns the first config file found in the usual locations
func findConfigFile() string {
	locations := []string{
		"annadata.yaml",
		"configs/annadata.yaml",
		"../configs/annadata.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Validate checks struct constraints and the cross-field rules validator tags can't express
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry service name must be set when telemetry is enabled")
	}

	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/annadata.log",
		},
		Paths: PathsConfig{
			DataDir:      DefaultDataDir,
			ArtifactsDir: DefaultArtifactsDir,
			ReportsDir:   DefaultReportsDir,
			LogsDir:      DefaultLogsDir,
			RegistryFile: DefaultRegistryFile,
		},
		Pipeline: PipelineConfig{
			Dataset:          DatasetWeather,
			LeakagePolicy:    LeakageTrainOnly,
			Seed:             DefaultRandomState,
			TestFraction:     DefaultTestFraction,
			CVFolds:          DefaultCVFolds,
			ModelVersion:     "v1",
			SyntheticRegions: append([]string(nil), AgriculturalRegions...),
			SyntheticDays:    365,
		},
		Features: FeaturesConfig{
			Lags:           []int{1, 7, 30},
			RollingWindows: []int{7, 30},
			CropTopN:       10,
			StateTopN:      15,
		},
		Estimators: EstimatorsConfig{
			Enabled:               []string{"linear_regression", "random_forest", "kernel_ridge"},
			ForestTrees:           100,
			ForestMaxDepth:        10,
			ForestMinSamplesSplit: 2,
			KernelC:               100,
			KernelGamma:           0,
			KernelMaxSamples:      2000,
		},
		Alternate: AlternateConfig{
			Components:      4,
			EmbeddingWidth:  4,
			FeatureMapReps:  1,
			AnsatzReps:      1,
			MaxIterations:   200,
			MaxTrainSamples: 5000,
			MaxTestSamples:  500,
			BaselineMSE:     1302.62,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			RequestTimeout:  25 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
