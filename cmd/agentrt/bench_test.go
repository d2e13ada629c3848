package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallBench(format string) *benchOptions {
	return &benchOptions{Messages: 200, Keys: 3, Senders: 4, format: format}
}

func TestRunBench_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runBench(context.Background(), smallBench("json"), &out))

	var r benchReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, 200, r.Options.Messages)
	assert.Zero(t, r.Result.Errors)
	assert.Positive(t, r.Result.Throughput)
	assert.LessOrEqual(t, r.Result.P50, r.Result.P99)
	assert.Nil(t, r.Comparison)
}

func TestRunBench_Formats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runBench(context.Background(), smallBench("markdown"), &out))
	assert.Contains(t, out.String(), "| Messages | Keys | Senders |")
	assert.Contains(t, out.String(), "| 200 | 3 | 4 |")

	out.Reset()
	require.NoError(t, runBench(context.Background(), smallBench("text"), &out))
	assert.Contains(t, out.String(), "messages=200 keys=3 senders=4")

	assert.ErrorContains(t, runBench(context.Background(), smallBench("xml"), &out), "unknown format")
	bad := smallBench("text")
	bad.Senders = 0
	assert.ErrorContains(t, runBench(context.Background(), bad, &out), "must be positive")
}

func TestRunBench_Regression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	base := benchReport{GitCommit: "abc123", Result: benchResult{Throughput: 1e12}}
	data, err := json.Marshal(base)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	opts := smallBench("text")
	opts.baseline = path
	var out bytes.Buffer
	require.NoError(t, runBench(context.Background(), opts, &out), "regressions only fail in CI mode")
	assert.Contains(t, out.String(), "regression=true")

	opts.ci = true
	assert.ErrorContains(t, runBench(context.Background(), opts, &out), "regression detected")
}

func TestCompareBench(t *testing.T) {
	base := &benchReport{Result: benchResult{Throughput: 1000}}
	assert.False(t, compareBench(benchResult{Throughput: 950}, base).HasRegression)
	assert.True(t, compareBench(benchResult{Throughput: 850}, base).HasRegression)
	assert.InDelta(t, 0.2, compareBench(benchResult{Throughput: 1200}, base).Change, 1e-9)
	assert.False(t, compareBench(benchResult{Throughput: 1}, &benchReport{}).HasRegression)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 0.5))
	assert.Equal(t, time.Duration(9), percentile(sorted, 0.99))
	assert.Equal(t, time.Duration(10), percentile(sorted, 1))
}
