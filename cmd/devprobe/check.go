package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/preset"
)

var errUnhealthy = errors.New("one or more services are not up")

type checkEngine interface {
	Check(ctx context.Context, req engine.Request) ([]checker.CheckResult, error)
}

type checkOptions struct {
	presets        []string
	ports          []int
	urls           []string
	timeout        time.Duration
	overallTimeout time.Duration
	concurrency    int
	json           bool
}

// request builds the engine request. With nothing selected every preset
// is checked.
func (o checkOptions) request() engine.Request {
	req := engine.Request{
		Presets:  o.presets,
		Timeouts: engine.Timeouts{PerCheck: o.timeout, Overall: o.overallTimeout},
	}
	for _, port := range o.ports {
		name := fmt.Sprintf("Port %d", port)
		if hint := preset.Describe(port); hint != "" {
			name = fmt.Sprintf("%s (%d)", hint, port)
		}
		req.Services = append(req.Services, checker.PortService(name, "", port))
	}
	for _, u := range o.urls {
		req.Services = append(req.Services, checker.HTTPService(u, u))
	}
	if len(req.Presets) == 0 && len(req.Services) == 0 {
		req.Presets = []string{preset.All}
	}
	return req
}

func checkCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a one-off check of presets, ports and URLs",
		Example: `  devprobe check
  devprobe check -p databases -p web_dev
  devprobe check --port 5432 --url http://localhost:3000 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile, false)
			if err != nil {
				return err
			}
			if opts.concurrency > 0 {
				cfg.Checks.MaxConcurrency = opts.concurrency
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			return runChecks(cmd.Context(), cmd.OutOrStdout(), a.engine, opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&opts.presets, "preset", "p", nil, "preset to check (repeatable, \"all\" for every preset)")
	f.IntSliceVar(&opts.ports, "port", nil, "localhost port to check (repeatable)")
	f.StringSliceVar(&opts.urls, "url", nil, "HTTP URL to check (repeatable)")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-check timeout (default from config)")
	f.DurationVar(&opts.overallTimeout, "overall-timeout", 0, "timeout for the whole batch (default from config)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "maximum checks in flight (default from config)")
	f.BoolVar(&opts.json, "json", false, "print the report as JSON")
	return cmd
}

func runChecks(ctx context.Context, out io.Writer, eng checkEngine, opts checkOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := eng.Check(ctx, opts.request())
	if err != nil {
		return fmt.Errorf("running checks: %w", err)
	}
	report := checker.NewBatchReport(results)

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printResults(out, results)
		fmt.Fprintf(out, "\n%s\n", report.Summary)
	}

	if report.OverallStatus != "healthy" {
		return errUnhealthy
	}
	return nil
}

func printResults(out io.Writer, results []checker.CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tKIND\tTARGET\tSTATUS\tLATENCY\tDETAIL")
	for _, r := range results {
		latency := "-"
		if r.HasLatency {
			latency = r.Latency.Round(100 * time.Microsecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ServiceName,
			r.Kind,
			r.Target,
			r.Status,
			latency,
			r.Detail,
		)
	}
	w.Flush()
}
