package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressSink receives run progress events. The websocket hub adapter
// satisfies it; a nil sink drops events.
type ProgressSink interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// ProgressTracker counts finished steps of a run
type ProgressTracker struct {
	mu        sync.Mutex
	Total     int
	Current   int
	StartTime time.Time
	Message   string
}

// NewProgressTracker creates a tracker for total steps
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{Total: total, StartTime: time.Now()}
}

// Increment marks one more step finished
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Current++
	p.Message = message
}

// GetProgress returns the current progress state
func (p *ProgressTracker) GetProgress() (current, total int, percentage float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Total > 0 {
		percentage = float64(p.Current) / float64(p.Total) * 100
	}
	return p.Current, p.Total, percentage, p.Message
}

// GetETA estimates the remaining time from the average step duration
func (p *ProgressTracker) GetETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}
	perStep := time.Since(p.StartTime) / time.Duration(p.Current)
	remaining := perStep * time.Duration(p.Total-p.Current)
	switch {
	case remaining < time.Minute:
		return fmt.Sprintf("%.0f seconds", remaining.Seconds())
	case remaining < time.Hour:
		return fmt.Sprintf("%.0f minutes", remaining.Minutes())
	default:
		return fmt.Sprintf("%.1f hours", remaining.Hours())
	}
}

// Snapshot returns the progress as event metadata
func (p *ProgressTracker) Snapshot() map[string]interface{} {
	current, total, pct, msg := p.GetProgress()
	return map[string]interface{}{
		"current":    current,
		"total":      total,
		"percentage": pct,
		"message":    msg,
		"eta":        p.GetETA(),
	}
}
