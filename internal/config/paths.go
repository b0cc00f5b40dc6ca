package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains all the application paths
// This is the single source of truth for every file the pipeline reads or writes
type Paths struct {
	BaseDir      string
	DataDir      string
	ArtifactsDir string
	ReportsDir   string
	PlotsDir     string
	LogsDir      string
	RegistryFile string
}

// DatasetPaths locates the persisted transformer states and models of one dataset.
//
//	artifacts/<dataset>/
//	  ├── feature_state.gob
//	  ├── encoder.gob
//	  ├── scaler.gob
//	  ├── compressor.gob
//	  ├── manifest.json
//	  └── models/<name>.gob
type DatasetPaths struct {
	Dir          string
	FeatureState string
	Encoder      string
	Scaler       string
	Compressor   string
	Manifest     string
	ModelsDir    string
}

// NewPaths resolves the configured locations. Relative entries are joined to
// BaseDir, and an empty BaseDir means the current working directory.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}

	reports := resolve(cfg.ReportsDir)
	return &Paths{
		BaseDir:      base,
		DataDir:      resolve(cfg.DataDir),
		ArtifactsDir: resolve(cfg.ArtifactsDir),
		ReportsDir:   reports,
		PlotsDir:     filepath.Join(reports, "plots"),
		LogsDir:      resolve(cfg.LogsDir),
		RegistryFile: resolve(cfg.RegistryFile),
	}, nil
}

// Dataset returns the artifact layout for a dataset.
func (p *Paths) Dataset(dataset string) DatasetPaths {
	dir := filepath.Join(p.ArtifactsDir, dataset)
	return DatasetPaths{
		Dir:          dir,
		FeatureState: filepath.Join(dir, FeatureStateFile),
		Encoder:      filepath.Join(dir, EncoderFile),
		Scaler:       filepath.Join(dir, ScalerFile),
		Compressor:   filepath.Join(dir, CompressorFile),
		Manifest:     filepath.Join(dir, ManifestFile),
		ModelsDir:    filepath.Join(dir, ModelsSubdir),
	}
}

// ModelPath returns where a named model artifact is stored.
func (d DatasetPaths) ModelPath(name string) string {
	return filepath.Join(d.ModelsDir, sanitizeName(name)+ModelExtension)
}

// ResultsCSV returns the results table path for a dataset
func (p *Paths) ResultsCSV(dataset string) string {
	return filepath.Join(p.ReportsDir, dataset+"_model_results.csv")
}

// ResultsXLSX returns the workbook path for a dataset
func (p *Paths) ResultsXLSX(dataset string) string {
	return filepath.Join(p.ReportsDir, dataset+"_model_results.xlsx")
}

// PlotPath returns the predicted-vs-actual chart path of one estimator
func (p *Paths) PlotPath(dataset, estimator string) string {
	return filepath.Join(p.PlotsDir, dataset+"_"+sanitizeName(estimator)+".png")
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories(logger *slog.Logger) error {
	directories := []string{
		p.DataDir,
		p.ArtifactsDir,
		p.ReportsDir,
		p.PlotsDir,
		p.LogsDir,
		filepath.Dir(p.RegistryFile),
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
		if logger != nil {
			logger.Debug("Ensured directory exists", slog.String("directory", dir))
		}
	}

	return nil
}

// EnsureDataset creates the artifact directories of a dataset
func (p *Paths) EnsureDataset(dataset string) (DatasetPaths, error) {
	dp := p.Dataset(dataset)
	if err := os.MkdirAll(dp.ModelsDir, 0755); err != nil {
		return dp, fmt.Errorf("failed to create directory %s: %v", dp.ModelsDir, err)
	}
	return dp, nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// sanitizeName keeps registry names usable as file names
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	return r.Replace(strings.TrimSpace(name))
}
