package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"annadata/internal/config"
	"annadata/internal/registry"
)

// RunStatus reports whether a pipeline run is in progress
type RunStatus interface {
	Running() bool
}

// ClientCounter reports connected progress stream clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	paths     *config.Paths
	registry  *registry.Registry
	runs      RunStatus
	clients   ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// NewHealthService creates a health service. runs and clients may be nil.
func NewHealthService(version, buildTime string, paths *config.Paths, reg *registry.Registry, runs RunStatus, clients ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("health service initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime))

	return &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		registry:  reg,
		runs:      runs,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
	hs.logger.DebugContext(ctx, "health check",
		slog.String("status", status.Status),
		slog.String("uptime", time.Since(hs.startTime).String()))
	return status
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"registry":  hs.checkRegistryHealth(),
			"artifacts": hs.checkArtifactsHealth(),
			"pipeline":  hs.checkPipelineHealth(),
			"websocket": hs.checkWebSocketHealth(),
		},
	}

	for name, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "service not ready",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"name":         config.AppName,
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

func (hs *HealthService) checkRegistryHealth() ServiceHealth {
	if hs.registry == nil {
		return ServiceHealth{Status: "not_ready", Message: "model registry not opened"}
	}
	s := hs.registry.Summary()
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d models registered, %d active", s.TotalModels, s.Active),
	}
}

func (hs *HealthService) checkArtifactsHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "not_ready", Message: "paths not configured"}
	}
	if _, err := os.Stat(hs.paths.ArtifactsDir); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("artifacts directory unavailable: %v", err),
		}
	}
	return ServiceHealth{Status: "ready", Message: "artifacts directory is accessible"}
}

func (hs *HealthService) checkPipelineHealth() ServiceHealth {
	if hs.runs == nil {
		return ServiceHealth{Status: "ready", Message: "pipeline runs disabled"}
	}
	msg := "idle"
	if hs.runs.Running() {
		msg = "run in progress"
	}
	return ServiceHealth{Status: "ready", Message: msg}
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	sh := ServiceHealth{Status: "ready", Uptime: time.Since(hs.startTime).String()}
	if hs.clients != nil {
		sh.Message = fmt.Sprintf("%d clients connected", hs.clients.ClientCount())
	}
	return sh
}
