// Package app wires the annadata server: configuration, telemetry, the model
// registry, the training pipeline, the progress hub and the HTTP router.
//
// # Initialization Flow
//
//	1. Resolve paths and create the working directories
//	2. Initialize OpenTelemetry providers and the application instruments
//	3. Open the model registry and the artifact codec
//	4. Start the progress hub and build the pipeline manager on top of it
//	5. Create the services and mount their handlers on a chi router
//	6. Configure the HTTP server
//
// # Usage
//
//	cfg, err := config.Load("")
//	...
//	application, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM. Stop then drains HTTP requests, cancels
// and waits for an in-flight training run, closes progress stream clients and
// flushes telemetry, in that order.
//
// Nothing here calls os.Exit or installs process-wide state; the logger and
// configuration are owned by the caller.
package app
