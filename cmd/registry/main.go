package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"annadata/internal/config"
	"annadata/internal/infrastructure"
	"annadata/internal/registry"
	"annadata/internal/services"
)

const usage = `usage: registry [-config file] [-json] <command> [args]

commands:
  list [-dataset weather|crop] [-status active|deprecated|all]
  best -dataset weather|crop [-metric test_mse]
  show <name>
  deprecate <name>
  summary
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("registry", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFile := fs.String("config", "", "YAML config file")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return flag.ErrHelp
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	// Command output owns stdout, so only warnings and errors are logged.
	cfg.Logging.Level = "warn"
	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	reg, err := registry.Open(paths.RegistryFile, logger.Logger, nil)
	if err != nil {
		return err
	}
	svc := services.NewModelService(reg, logger.Logger)
	p := printer{out: out, json: *asJSON}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		sub := flag.NewFlagSet("list", flag.ContinueOnError)
		sub.SetOutput(io.Discard)
		dataset := sub.String("dataset", "", "dataset filter")
		status := sub.String("status", registry.StatusActive, "status filter, or all")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		statuses := []string{*status}
		if *status == "all" {
			statuses = []string{registry.StatusActive, registry.StatusDeprecated}
		}
		var entries []registry.Entry
		for _, st := range statuses {
			found, err := svc.List(ctx, *dataset, st)
			if err != nil {
				return err
			}
			entries = append(entries, found...)
		}
		return p.entries(entries)
	case "best":
		sub := flag.NewFlagSet("best", flag.ContinueOnError)
		sub.SetOutput(io.Discard)
		dataset := sub.String("dataset", "", "dataset")
		metric := sub.String("metric", registry.DefaultMetric, "metric to minimise")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		entry, err := svc.Best(ctx, *dataset, *metric)
		if err != nil {
			return err
		}
		return p.entries([]registry.Entry{entry})
	case "show", "deprecate":
		if len(rest) != 1 {
			return fmt.Errorf("%s needs exactly one model name", cmd)
		}
		get := svc.Get
		if cmd == "deprecate" {
			get = svc.Deprecate
		}
		entry, err := get(ctx, rest[0])
		if err != nil {
			return err
		}
		if cmd == "deprecate" {
			logger.Warn("model deprecated", slog.String("model", entry.Name))
		}
		return p.entries([]registry.Entry{entry})
	case "summary":
		return p.summary(svc.Summary(ctx))
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, flag.ErrHelp)
	}
}

type printer struct {
	out  io.Writer
	json bool
}

func (p printer) encode(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) entries(entries []registry.Entry) error {
	if p.json {
		if entries == nil {
			entries = []registry.Entry{}
		}
		return p.encode(entries)
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tDATASET\tSTATUS\tTEST_MSE\tTEST_R2\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%s\n",
			e.Name, e.Type, e.Dataset, e.Status, e.Metrics["test_mse"], e.Metrics["test_r2"], e.CreatedAt)
	}
	return tw.Flush()
}

func (p printer) summary(s registry.Summary) error {
	if p.json {
		return p.encode(s)
	}
	fmt.Fprintf(p.out, "models: %d (%d active)\n", s.TotalModels, s.Active)
	for _, group := range []struct {
		title  string
		counts map[string]int
	}{
		{"datasets", s.Datasets},
		{"types", s.ModelTypes},
	} {
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(p.out, "%s:\n", group.title)
		for _, k := range keys {
			fmt.Fprintf(p.out, "  %s: %d\n", k, group.counts[k])
		}
	}
	return nil
}
