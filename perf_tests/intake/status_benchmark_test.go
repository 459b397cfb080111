package intake_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"
)

// Configuration from environment
var (
	intakeURL   = getEnv("INTAKE_URL", "http://localhost:8080")
	numCalls    = getEnvInt("PERF_NUM_CALLS", 10000)
	concurrency = getEnvInt("PERF_CONCURRENCY", 10)
)

// intakeRunning probes the health endpoint so the suite skips cleanly
// on machines without a running stack.
func intakeRunning() bool {
	resp, err := http.Get(intakeURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// enqueueProbeJob creates one job whose status row the fetch loops read.
// The status path is the hot one in production: the UI polls it between
// lifecycle events.
func enqueueProbeJob(tb testing.TB) string {
	tb.Helper()

	body := map[string]interface{}{
		"processData": map[string]interface{}{
			"processDescription": fmt.Sprintf("perf probe %d: poll-only job for status fetch timing", time.Now().Unix()),
		},
		"automationType": "workflow",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		tb.Fatalf("marshal enqueue request: %v", err)
	}

	resp, err := http.Post(intakeURL+"/api/v1/jobs", "application/json", bytes.NewReader(payload))
	if err != nil {
		tb.Fatalf("enqueue probe job: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		tb.Fatalf("enqueue returned %d: %s", resp.StatusCode, raw)
	}

	var job struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		tb.Fatalf("decode enqueue response: %v", err)
	}
	if job.JobID == "" {
		tb.Fatal("enqueue response carried no job id")
	}
	return job.JobID
}

// BenchmarkJobStatusFetch measures the status read path end to end.
//
// Usage:
//
//	INTAKE_URL=http://localhost:8080 go test -bench=BenchmarkJobStatusFetch -benchtime=10000x ./perf_tests/intake/
func BenchmarkJobStatusFetch(b *testing.B) {
	if !intakeRunning() {
		b.Skip("intake API not running")
	}

	jobID := enqueueProbeJob(b)
	statusURL := fmt.Sprintf("%s/api/v1/jobs/%s", intakeURL, jobID)

	var totalBytes int64

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Get(statusURL)
		if err != nil {
			b.Fatalf("status fetch failed: %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			b.Fatalf("read status body: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			b.Fatalf("unexpected status code %d", resp.StatusCode)
		}
		totalBytes += int64(len(body))
	}
	b.StopTimer()

	elapsed := b.Elapsed()
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "ops/sec")
	b.ReportMetric(float64(totalBytes)/elapsed.Seconds()/1024/1024, "MB/s")
}

// TestJobStatusFetchConcurrent measures the status path under parallel
// pollers, the shape a burst of UI clients produces.
func TestJobStatusFetchConcurrent(t *testing.T) {
	if !intakeRunning() {
		t.Skip("intake API not running")
	}

	jobID := enqueueProbeJob(t)
	statusURL := fmt.Sprintf("%s/api/v1/jobs/%s", intakeURL, jobID)

	t.Logf("Concurrent status fetch: %d calls across %d workers", numCalls, concurrency)
	t.Logf("  Target: %s", statusURL)

	start := time.Now()
	callsPerWorker := numCalls / concurrency
	results := make(chan workerStats, concurrency)

	for w := 0; w < concurrency; w++ {
		go func() {
			var stats workerStats

			for i := 0; i < callsPerWorker; i++ {
				reqStart := time.Now()

				resp, err := http.Get(statusURL)
				if err != nil {
					stats.errors++
					continue
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()

				if resp.StatusCode != http.StatusOK {
					stats.errors++
					continue
				}

				latency := time.Since(reqStart)
				stats.calls++
				stats.bytes += int64(len(body))
				stats.totalLatency += latency
				if stats.minLatency == 0 || latency < stats.minLatency {
					stats.minLatency = latency
				}
				if latency > stats.maxLatency {
					stats.maxLatency = latency
				}
			}

			results <- stats
		}()
	}

	var total workerStats
	for i := 0; i < concurrency; i++ {
		stats := <-results
		total.calls += stats.calls
		total.bytes += stats.bytes
		total.totalLatency += stats.totalLatency
		total.errors += stats.errors
		if total.minLatency == 0 || (stats.minLatency > 0 && stats.minLatency < total.minLatency) {
			total.minLatency = stats.minLatency
		}
		if stats.maxLatency > total.maxLatency {
			total.maxLatency = stats.maxLatency
		}
	}
	elapsed := time.Since(start)

	if total.calls == 0 {
		t.Fatalf("all %d requests failed; is the stack healthy?", total.errors)
	}

	t.Logf("Results:")
	t.Logf("  Calls:      %d (errors: %d)", total.calls, total.errors)
	t.Logf("  Duration:   %s", elapsed)
	t.Logf("  Throughput: %.2f ops/sec", float64(total.calls)/elapsed.Seconds())
	t.Logf("  Transfer:   %.2f MB/s", float64(total.bytes)/elapsed.Seconds()/1024/1024)
	t.Logf("  Latency:    min %s / avg %s / max %s",
		total.minLatency, total.totalLatency/time.Duration(total.calls), total.maxLatency)
}

type workerStats struct {
	calls        int
	bytes        int64
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	errors       int
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
