package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/agents"
)

// regressionThreshold is the throughput drop, relative to a baseline, that
// counts as a regression.
const regressionThreshold = 0.10

type benchOptions struct {
	Messages int     `json:"messages"`
	Keys     int     `json:"keys"`
	Senders  int     `json:"senders"`
	Rate     float64 `json:"rate,omitempty"`

	format   string
	output   string
	baseline string
	ci       bool
	timeout  time.Duration
}

type benchResult struct {
	Duration   time.Duration `json:"duration_ns"`
	Throughput float64       `json:"throughput_per_sec"`
	P50        time.Duration `json:"p50_ns"`
	P95        time.Duration `json:"p95_ns"`
	P99        time.Duration `json:"p99_ns"`
	Errors     int           `json:"errors"`
}

type benchComparison struct {
	BaselineCommit     string  `json:"baseline_commit,omitempty"`
	BaselineThroughput float64 `json:"baseline_throughput_per_sec"`
	Change             float64 `json:"change"`
	HasRegression      bool    `json:"has_regression"`
}

type benchReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Version     string           `json:"version"`
	GitCommit   string           `json:"git_commit,omitempty"`
	GitBranch   string           `json:"git_branch,omitempty"`
	Environment string           `json:"environment"`
	Options     benchOptions     `json:"options"`
	Result      benchResult      `json:"result"`
	Comparison  *benchComparison `json:"comparison,omitempty"`
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure request/response throughput through the dispatch queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			w := cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output) // #nosec G304 - user-provided CLI argument
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() {
					_ = f.Close()
				}()
				w = f
			}
			return runBench(ctx, opts, w)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Messages, "messages", 10000, "total messages to send")
	f.IntVar(&opts.Keys, "keys", 8, "distinct agent keys to spread messages over")
	f.IntVar(&opts.Senders, "senders", 4, "concurrent senders")
	f.Float64Var(&opts.Rate, "rate", 0, "dispatch rate limit per second (0 = unlimited)")
	f.StringVar(&opts.format, "format", "text", "output format: text, json, markdown")
	f.StringVarP(&opts.output, "output", "o", "", "output file path (default: stdout)")
	f.StringVar(&opts.baseline, "baseline", "", "baseline JSON report for comparison")
	f.BoolVar(&opts.ci, "ci", false, "fail on regression against the baseline")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall benchmark timeout")
	return cmd
}

func runBench(ctx context.Context, opts *benchOptions, w io.Writer) error {
	switch opts.format {
	case "text", "json", "markdown":
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if opts.Messages < 1 || opts.Keys < 1 || opts.Senders < 1 {
		return fmt.Errorf("messages, keys and senders must be positive")
	}

	result, err := measure(ctx, opts)
	if err != nil {
		return err
	}
	report := &benchReport{
		GeneratedAt: time.Now().UTC(),
		Version:     Version,
		GitCommit:   getGitCommit(),
		GitBranch:   getGitBranch(),
		Environment: getEnvironment(),
		Options:     *opts,
		Result:      result,
	}

	if opts.baseline != "" {
		base, err := loadBenchReport(opts.baseline)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load baseline: %v\n", err)
		} else {
			report.Comparison = compareBench(result, base)
		}
	}

	if err := formatBenchReport(report, opts.format, w); err != nil {
		return fmt.Errorf("format report: %w", err)
	}
	if opts.ci && report.Comparison != nil && report.Comparison.HasRegression {
		return fmt.Errorf("benchmark regression detected: throughput %+.1f%%", report.Comparison.Change*100)
	}
	return nil
}

// measure drives opts.Messages calls at an echo agent from opts.Senders
// goroutines, each waiting for its reply before sending the next.
func measure(ctx context.Context, opts *benchOptions) (benchResult, error) {
	rt := agentrt.New(agentrt.WithDispatchRate(opts.Rate, opts.Senders))
	defer func() { _ = rt.Close(context.Background()) }()

	f, err := agents.Factory("echo", agents.Env{})
	if err != nil {
		return benchResult{}, err
	}
	echo, err := rt.Register("echo", f)
	if err != nil {
		return benchResult{}, err
	}
	if err := rt.Start(); err != nil {
		return benchResult{}, err
	}

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.Messages)
		errCount  int
		wg        sync.WaitGroup
	)
	start := time.Now()
	for s := range opts.Senders {
		n := opts.Messages / opts.Senders
		if s < opts.Messages%opts.Senders {
			n++
		}
		wg.Go(func() {
			local := make([]time.Duration, 0, n)
			errs := 0
			for i := range n {
				id := agent.NewAgentID(echo, fmt.Sprintf("k%d", (s+i*opts.Senders)%opts.Keys))
				t0 := time.Now()
				if _, err := agentrt.Call[string](ctx, rt, "ping", id); err != nil {
					errs++
					continue
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			errCount += errs
			mu.Unlock()
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return benchResult{}, fmt.Errorf("benchmark did not finish: %w", err)
	}

	slices.Sort(latencies)
	return benchResult{
		Duration:   elapsed,
		Throughput: float64(len(latencies)) / elapsed.Seconds(),
		P50:        percentile(latencies, 0.50),
		P95:        percentile(latencies, 0.95),
		P99:        percentile(latencies, 0.99),
		Errors:     errCount,
	}, nil
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)-1) * p)
	return sorted[i]
}

func compareBench(cur benchResult, base *benchReport) *benchComparison {
	c := &benchComparison{
		BaselineCommit:     base.GitCommit,
		BaselineThroughput: base.Result.Throughput,
	}
	if base.Result.Throughput > 0 {
		c.Change = (cur.Throughput - base.Result.Throughput) / base.Result.Throughput
		c.HasRegression = c.Change < -regressionThreshold
	}
	return c
}

func loadBenchReport(path string) (*benchReport, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-provided CLI argument
	if err != nil {
		return nil, err
	}
	var r benchReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &r, nil
}

func formatBenchReport(r *benchReport, format string, w io.Writer) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "markdown":
		var b strings.Builder
		fmt.Fprintf(&b, "## agentrt dispatch benchmark\n\n")
		fmt.Fprintf(&b, "| Messages | Keys | Senders | Throughput/s | p50 | p95 | p99 | Errors |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %d | %d | %d | %.0f | %s | %s | %s | %d |\n",
			r.Options.Messages, r.Options.Keys, r.Options.Senders, r.Result.Throughput,
			r.Result.P50, r.Result.P95, r.Result.P99, r.Result.Errors)
		if c := r.Comparison; c != nil {
			fmt.Fprintf(&b, "\nBaseline %.0f/s, change %+.1f%%", c.BaselineThroughput, c.Change*100)
			if c.HasRegression {
				b.WriteString(" (regression)")
			}
			b.WriteString("\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	default:
		_, err := fmt.Fprintf(w,
			"messages=%d keys=%d senders=%d duration=%s throughput=%.0f/s p50=%s p95=%s p99=%s errors=%d\n",
			r.Options.Messages, r.Options.Keys, r.Options.Senders, r.Result.Duration, r.Result.Throughput,
			r.Result.P50, r.Result.P95, r.Result.P99, r.Result.Errors)
		if err == nil && r.Comparison != nil {
			_, err = fmt.Fprintf(w, "baseline=%.0f/s change=%+.1f%% regression=%t\n",
				r.Comparison.BaselineThroughput, r.Comparison.Change*100, r.Comparison.HasRegression)
		}
		return err
	}
}

func getGitCommit() string {
	if commit := os.Getenv("GITHUB_SHA"); commit != "" {
		return commit
	}
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func getGitBranch() string {
	if ref := os.Getenv("GITHUB_REF_NAME"); ref != "" {
		return ref
	}
	out, err := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func getEnvironment() string {
	if os.Getenv("CI") != "" {
		return "ci"
	}
	return "local"
}
