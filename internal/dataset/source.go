package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/files"
	"annadata/internal/frame"
	"annadata/internal/validation"
)

// Source supplies the raw records of one dataset.
type Source interface {
	Name() string
	Load(ctx context.Context) (*frame.Frame, error)
}

// FileSource reads a CSV or XLSX record file.
type FileSource struct {
	Dataset string
	Path    string
	logger  *slog.Logger
}

// NewFileSource returns a source reading path as dataset records.
func NewFileSource(dataset, path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{Dataset: dataset, Path: path, logger: logger}
}

// Name returns the file's base name
func (s *FileSource) Name() string { return filepath.Base(s.Path) }

// Load parses the file.
func (s *FileSource) Load(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.NewFileValidator(s.logger).ValidateRecordFile(s.Path); err != nil {
		return nil, err
	}
	f, err := ReadFile(s.Path, s.Dataset)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	s.logger.InfoContext(ctx, "records loaded",
		slog.String("dataset", s.Dataset),
		slog.String("path", s.Path),
		slog.Int("rows", f.Len()),
		slog.Int("columns", len(f.Columns())))
	return f, nil
}

// MemorySource serves a frame that is already in memory.
type MemorySource struct {
	Label string
	Frame *frame.Frame
}

// Name returns the label
func (s *MemorySource) Name() string { return s.Label }

// Load returns a copy so callers may extend it freely.
func (s *MemorySource) Load(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Frame == nil {
		return nil, apperrors.NewDataError("memory source has no records", nil)
	}
	return s.Frame.Clone(), nil
}

// NewSource picks the record source for a pipeline run. An empty input
// yields synthetic records for weather; crop always needs a file. A
// directory input resolves to its newest file mentioning the dataset name.
func NewSource(cfg config.PipelineConfig, dataDir string, logger *slog.Logger) (Source, error) {
	if cfg.Input == "" {
		if cfg.Dataset != config.DatasetWeather {
			return nil, apperrors.NewConfigError(fmt.Sprintf("dataset %s needs an input file", cfg.Dataset), nil)
		}
		return &SyntheticWeather{
			Regions: cfg.SyntheticRegions,
			Days:    cfg.SyntheticDays,
			Seed:    cfg.Seed,
		}, nil
	}

	path, err := files.NewDiscovery(dataDir).ResolveInput(cfg.Input, cfg.Dataset)
	if err != nil {
		return nil, apperrors.NewDataError("resolve input", err)
	}
	return NewFileSource(cfg.Dataset, path, logger), nil
}
