package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"annadata/internal/config"
	"annadata/internal/estimators"
	"annadata/internal/exporter"
	"annadata/internal/infrastructure"
	"annadata/internal/operations"
	"annadata/internal/registry"
	"annadata/internal/variational"
)

// options are the command-line overrides of one training run
type options struct {
	configFile string
	request    operations.RunRequest
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("training run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML config file (defaults to annadata.yaml or configs/annadata.yaml)")
	dataset := fs.String("dataset", "", "dataset to train: weather or crop")
	input := fs.String("input", "", "CSV or XLSX record file; empty generates synthetic weather")
	leakage := fs.String("leakage-policy", "", "train_only or fit_before_split")
	alternate := fs.Bool("alternate", false, "also train the reduced alternate estimator")
	version := fs.String("model-version", "", "version suffix of registered model names")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		configFile: *configFile,
		request: operations.RunRequest{
			Dataset:       *dataset,
			Input:         *input,
			LeakagePolicy: *leakage,
			ModelVersion:  *version,
		},
	}
	// only an explicit -alternate overrides the configured value
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "alternate" {
			opts.request.RunAlternate = alternate
		}
	})
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.CreateTrainingMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(logger.Logger); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	reg, err := registry.Open(paths.RegistryFile, logger.Logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to open model registry: %w", err)
	}

	codec := estimators.NewCodec()
	variational.RegisterCodec(codec)

	manager := operations.NewManager(operations.Deps{
		Config:   cfg,
		Paths:    paths,
		Registry: reg,
		Codec:    codec,
		Exporter: exporter.New(paths, logger.Logger),
		Logger:   logger.Logger,
		Metrics:  metrics,
		Tracer:   providers.Tracer,
	})

	manifest, err := manager.Run(ctx, opts.request)
	if manifest != nil {
		printSummary(out, manifest, reg)
	}
	return err
}

// printSummary writes the run outcome and the test metrics of every model it registered
func printSummary(out io.Writer, manifest *operations.RunManifest, reg *registry.Registry) {
	snap := manifest.Snapshot()
	fmt.Fprintf(out, "run %s: %s (%s, %s)\n", snap.ID, snap.Status, snap.Dataset, snap.LeakagePolicy)
	if snap.Error != "" {
		fmt.Fprintf(out, "failed at %s: %s\n", snap.FailedStep, snap.Error)
	}
	if len(snap.Models) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTYPE\tTEST_MSE\tTEST_R2")
	for _, name := range snap.Models {
		entry, err := reg.Get(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\n", entry.Name, entry.Type, entry.Metrics["test_mse"], entry.Metrics["test_r2"])
	}
	tw.Flush()
}
