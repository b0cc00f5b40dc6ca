package services

import "errors"

var (
	// ErrServiceClosed is returned by RunService.Start after Close
	ErrServiceClosed = errors.New("run service closed")

	// ErrNoRun is returned when no pipeline run has been started yet
	ErrNoRun = errors.New("no pipeline run has been started")
)
