package testutil

import (
	"log/slog"
	"testing"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		if got := len(handler.GetRecords()); got != 2 {
			t.Errorf("Expected 2 records, got %d", got)
		}
		if !handler.ContainsMessage("test message") {
			t.Error("Expected to find 'test message'")
		}
		if !handler.ContainsAttr("key", "value") {
			t.Error("Expected to find attribute key=value")
		}
	})

	t.Run("derived loggers share the store and keep attrs", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With("component", "harness").Info("fitted", slog.String("estimator", "random_forest"))
		logger.WithGroup("cv").Info("fold", slog.Int("index", 2))

		if handler.Count() != 2 {
			t.Fatalf("Expected 2 records, got %d", handler.Count())
		}
		AssertLogAttr(t, handler, "component", "harness")
		AssertLogAttr(t, handler, "estimator", "random_forest")
		AssertLogAttr(t, handler, "cv.index", int64(2))
	})

	t.Run("filters by level", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")
		logger.Error("error msg")

		if got := len(handler.GetRecordsByLevel(slog.LevelInfo)); got != 1 {
			t.Errorf("Expected 1 info record, got %d", got)
		}
		if got := len(handler.GetRecordsByLevel(slog.LevelDebug)); got != 1 {
			t.Errorf("Expected 1 debug record, got %d", got)
		}
		AssertLogContains(t, handler, slog.LevelWarn, "warn")
	})

	t.Run("clear", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("message 1")
		logger.Info("message 2")
		handler.Clear()

		if handler.Count() != 0 {
			t.Errorf("Expected 0 records after clear, got %d", handler.Count())
		}
		AssertNoErrors(t, handler)
	})
}
