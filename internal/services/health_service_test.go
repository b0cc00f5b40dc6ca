package services

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"annadata/internal/config"
)

type mockRunStatus struct {
	mock.Mock
}

func (m *mockRunStatus) Running() bool {
	return m.Called().Bool(0)
}

type mockClientCounter struct {
	mock.Mock
}

func (m *mockClientCounter) ClientCount() int {
	return m.Called().Int(0)
}

func TestHealthCheck(t *testing.T) {
	hs := NewHealthService("1.2.3", "", nil, nil, nil, nil, nil)
	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestReadinessCheck(t *testing.T) {
	f := newFixture(t)
	runs := &mockRunStatus{}
	runs.On("Running").Return(true)
	clients := &mockClientCounter{}
	clients.On("ClientCount").Return(3)

	hs := NewHealthService(config.AppVersion, "2026-01-01", f.paths, f.reg, runs, clients, nil)
	status := hs.ReadinessCheck(context.Background())

	assert.Equal(t, "ready", status.Status)
	pipeline := status.Services["pipeline"].(ServiceHealth)
	assert.Equal(t, "run in progress", pipeline.Message)
	ws := status.Services["websocket"].(ServiceHealth)
	assert.Equal(t, "3 clients connected", ws.Message)
	reg := status.Services["registry"].(ServiceHealth)
	assert.Equal(t, "0 models registered, 0 active", reg.Message)
	runs.AssertExpectations(t)
	clients.AssertExpectations(t)
}

func TestReadinessCheckNotReady(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, os.RemoveAll(f.paths.ArtifactsDir))

	hs := NewHealthService(config.AppVersion, "", f.paths, nil, nil, nil, nil)
	status := hs.ReadinessCheck(context.Background())

	assert.Equal(t, "not_ready", status.Status)
	assert.Equal(t, "not_ready", status.Services["registry"].(ServiceHealth).Status)
	assert.Equal(t, "not_ready", status.Services["artifacts"].(ServiceHealth).Status)
	assert.Equal(t, "ready", status.Services["pipeline"].(ServiceHealth).Status)
}

func TestLivenessAndVersion(t *testing.T) {
	hs := NewHealthService("1.0.0", "2026-01-01T00:00:00Z", nil, nil, nil, nil, nil)

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Equal(t, runtime.Version(), live.Runtime["go_version"])

	v := hs.Version()
	assert.Equal(t, "1.0.0", v["version"])
	assert.Equal(t, config.AppName, v["name"])
	assert.Equal(t, "2026-01-01T00:00:00Z", v["build_time"])
}
