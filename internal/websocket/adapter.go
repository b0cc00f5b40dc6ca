package websocket

import (
	"log/slog"

	"annadata/internal/operations"
)

// ProgressAdapter publishes pipeline run events on the hub. It satisfies
// operations.ProgressSink.
type ProgressAdapter struct {
	hub    *Hub
	logger *slog.Logger
}

var _ operations.ProgressSink = (*ProgressAdapter)(nil)

// NewProgressAdapter creates an adapter over hub
func NewProgressAdapter(hub *Hub, logger *slog.Logger) *ProgressAdapter {
	if logger == nil {
		logger = hub.logger
	}
	return &ProgressAdapter{
		hub:    hub,
		logger: logger.With(slog.String("component", "websocket.adapter")),
	}
}

// BroadcastUpdate maps a run event onto a stream message
func (a *ProgressAdapter) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	level := levelFor(eventType, status)
	a.logger.Debug("run event",
		slog.String("type", eventType),
		slog.String("step", step),
		slog.String("status", status),
		slog.String("level", level))

	a.hub.Send(Message{
		Type:   eventType,
		Step:   step,
		Status: status,
		Level:  level,
		Data:   metadata,
	})
}

func levelFor(eventType, status string) string {
	switch {
	case eventType == operations.EventTypeRunError:
		return LevelError
	case status == operations.RunStatusCancelled:
		return LevelWarning
	case eventType == operations.EventTypeRunComplete:
		return LevelSuccess
	case status == string(operations.StepStatusSkipped):
		return LevelWarning
	default:
		return LevelInfo
	}
}
