// Loadtest drives concurrent keep-alive sessions through balancebeam and
// reports status codes, latency percentiles and how sessions were spread
// across upstreams. Each worker owns one client connection, so a worker's
// requests all land on the upstream its session was assigned.
//
// Usage:
//
//	go run ./scripts/loadtest --url http://localhost:1100/ --workers 20 --requests 2000
//	go run ./scripts/loadtest --url http://localhost:1100/ --out summary.json
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/pflag"
)

type upstreamStats struct {
	Sessions  int             `json:"sessions"`
	Requests  int             `json:"requests"`
	Latencies []time.Duration `json:"-"`
}

type summary struct {
	Target        string                    `json:"target"`
	Requests      int                       `json:"requests"`
	Workers       int                       `json:"workers"`
	Errors        int                       `json:"errors"`
	DurationMS    int64                     `json:"duration_ms"`
	ThroughputRPS float64                   `json:"throughput_rps"`
	StatusCodes   map[int]int               `json:"status_codes"`
	Upstreams     map[string]*upstreamStats `json:"upstreams"`
	P50MS         float64                   `json:"p50_ms"`
	P90MS         float64                   `json:"p90_ms"`
	P99MS         float64                   `json:"p99_ms"`
}

type recorder struct {
	mutex     sync.Mutex
	summary   summary
	latencies []time.Duration
}

func (r *recorder) record(upstream string, status int, dur time.Duration, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.latencies = append(r.latencies, dur)
	if err != nil {
		r.summary.Errors++
		return
	}
	r.summary.StatusCodes[status]++

	if upstream == "" {
		upstream = "(none)"
	}
	stats, ok := r.summary.Upstreams[upstream]
	if !ok {
		stats = &upstreamStats{}
		r.summary.Upstreams[upstream] = stats
	}
	stats.Requests++
	stats.Latencies = append(stats.Latencies, dur)
}

func (r *recorder) session(upstream string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if stats, ok := r.summary.Upstreams[upstream]; ok {
		stats.Sessions++
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func main() {
	url := pflag.String("url", "http://localhost:1100/", "target URL")
	workers := pflag.Int("workers", 10, "concurrent client sessions")
	requests := pflag.Int("requests", 1000, "total requests across all workers")
	timeout := pflag.Duration("timeout", 10*time.Second, "per-request timeout")
	outJSON := pflag.String("out", "", "write a JSON summary to this file")
	pflag.Parse()

	rec := &recorder{summary: summary{
		Target:      *url,
		Requests:    *requests,
		Workers:     *workers,
		StatusCodes: map[int]int{},
		Upstreams:   map[string]*upstreamStats{},
	}}

	perWorker := *requests / *workers
	start := time.Now()

	p := pool.New().WithMaxGoroutines(*workers)
	for range *workers {
		p.Go(func() {
			// A dedicated transport keeps this worker on its own connection.
			client := &http.Client{
				Timeout:   *timeout,
				Transport: &http.Transport{MaxIdleConnsPerHost: 1},
			}
			defer client.CloseIdleConnections()

			var first string
			for range perWorker {
				began := time.Now()
				resp, err := client.Get(*url)
				if err != nil {
					rec.record("", 0, time.Since(began), err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				upstream := resp.Header.Get("X-Upstream")
				rec.record(upstream, resp.StatusCode, time.Since(began), nil)
				if first == "" && upstream != "" {
					first = upstream
					rec.session(upstream)
				}
			}
		})
	}
	p.Wait()

	elapsed := time.Since(start)
	s := &rec.summary
	s.DurationMS = elapsed.Milliseconds()
	s.ThroughputRPS = float64(perWorker**workers) / elapsed.Seconds()

	slices.Sort(rec.latencies)
	s.P50MS = float64(percentile(rec.latencies, 0.50).Microseconds()) / 1000
	s.P90MS = float64(percentile(rec.latencies, 0.90).Microseconds()) / 1000
	s.P99MS = float64(percentile(rec.latencies, 0.99).Microseconds()) / 1000

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s  Workers: %d  Requests: %d\n", s.Target, s.Workers, perWorker**workers)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s  Errors: %d\n", elapsed, s.ThroughputRPS, s.Errors)
	fmt.Printf("Latency p50=%.2fms p90=%.2fms p99=%.2fms\n", s.P50MS, s.P90MS, s.P99MS)

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, s.StatusCodes[code])
	}

	fmt.Println("\nUpstreams:")
	names := make([]string, 0, len(s.Upstreams))
	for name := range s.Upstreams {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		stats := s.Upstreams[name]
		slices.Sort(stats.Latencies)
		fmt.Printf("  %s -> sessions=%d requests=%d p50=%v p99=%v\n",
			name, stats.Sessions, stats.Requests,
			percentile(stats.Latencies, 0.50), percentile(stats.Latencies, 0.99))
	}

	if *outJSON != "" {
		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(s)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if s.Errors > 0 {
		os.Exit(2)
	}
}
