package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "annadata/internal/errors"
)

// RecordExtensions are the record file formats the dataset readers accept
var RecordExtensions = []string{".csv", ".xlsx"}

// FileValidator checks the files a run reads and the directories it writes
// before any work starts
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateFile checks that path exists, is a regular file and can be opened.
// A missing file is a NOT_FOUND error; anything else is a STORAGE error.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("file does not exist", slog.String("file", path))
		return apperrors.NewNotFoundError(fmt.Sprintf("file %s", path))
	}
	if err != nil {
		v.logger.Error("failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("stat %s", path), err)
	}
	if info.IsDir() {
		v.logger.Error("path is a directory, not a file", slog.String("path", path))
		return apperrors.NewStorageError(fmt.Sprintf("%s is a directory", path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("open %s", path), err)
	}
	file.Close()

	v.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateRecordFile checks a raw record file: readable, a supported
// format, not an editor lock file and not empty
func (v *FileValidator) ValidateRecordFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("rejecting temporary spreadsheet", slog.String("file", path))
		return apperrors.NewDataError(fmt.Sprintf("%s is a temporary spreadsheet", base), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !IsRecordExtension(ext) {
		v.logger.Error("unsupported record file",
			slog.String("file", path),
			slog.String("extension", ext))
		return apperrors.NewDataError(fmt.Sprintf("unsupported record file %s (extension %q)", base, ext), nil)
	}

	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		return apperrors.NewDataError(fmt.Sprintf("record file %s is empty", base), nil)
	}
	return nil
}

// ValidateOutputDirectory ensures dir exists and accepts new files
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("create output directory %s", dir), err)
	}

	probe, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	probe.Close()
	os.Remove(probe.Name())

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}

// IsRecordExtension reports whether ext (with its dot, any case) is a record format
func IsRecordExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range RecordExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
