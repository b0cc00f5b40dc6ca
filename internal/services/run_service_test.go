package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "annadata/internal/errors"
	"annadata/internal/operations"
)

func TestRunServiceStartAndClose(t *testing.T) {
	f := newFixture(t)
	svc := NewRunService(f.manager, nil)

	_, err := svc.Last(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	started, err := svc.Start(context.Background(), operations.RunRequest{ID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", started.RunID)
	assert.Equal(t, operations.RunStatusPending, started.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, svc.Close(ctx))
	assert.False(t, svc.Running())

	last, err := svc.Last(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", last.ID)
	assert.Contains(t, []string{operations.RunStatusCompleted, operations.RunStatusCancelled}, last.Status)

	_, err = svc.Start(context.Background(), operations.RunRequest{})
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestRunServiceMapsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	svc := NewRunService(f.manager, nil)
	defer svc.Close(context.Background())

	_, err := svc.Start(context.Background(), operations.RunRequest{Dataset: "rice"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}
