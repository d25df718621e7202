// Package main provides the CLI entry point for the ledger load generator.
//
// The tool drives write traffic against a running backend: it discovers the
// units of a management, then posts payments and expense entries at a
// configurable rate, feeding IDs returned by the API back into a parameter
// pool so later requests (allocations) can reference earlier ones.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/strata/tools/loadgen/internal/pool"
)

var (
	baseURL      string
	token        string
	managementID string
	duration     time.Duration
	concurrency  int
	qps          float64
	paymentRatio float64
	verbose      bool
)

func init() {
	flag.StringVar(&baseURL, "base-url", "http://localhost:8080", "Base URL of the backend")
	flag.StringVar(&token, "token", "", "Bearer token for authentication")
	flag.StringVar(&managementID, "management", "", "Management ID to target (required)")
	flag.DurationVar(&duration, "duration", time.Minute, "Test duration")
	flag.IntVar(&concurrency, "concurrency", 4, "Number of concurrent workers")
	flag.Float64Var(&qps, "qps", 10, "Target requests per second across all workers")
	flag.Float64Var(&paymentRatio, "payment-ratio", 0.7, "Fraction of writes that are payments (rest are expenses)")
	flag.BoolVar(&verbose, "v", false, "Log each request")
}

type counters struct {
	requests atomic.Int64
	errors   atomic.Int64
	statuses sync.Map // int -> *atomic.Int64
}

func (c *counters) record(status int, err error) {
	c.requests.Add(1)
	if err != nil {
		c.errors.Add(1)
		return
	}
	v, _ := c.statuses.LoadOrStore(status, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

type runner struct {
	client *http.Client
	pool   pool.ParameterPool
	stats  *counters
	rng    *rand.Rand
}

func main() {
	flag.Parse()
	if managementID == "" {
		fmt.Fprintln(os.Stderr, "loadgen: -management is required")
		os.Exit(2)
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "loadgen: -token is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, duration)
	defer timeoutCancel()

	cfg := pool.DefaultPoolConfig()
	cfg.DefaultTTL = duration
	params := pool.NewShardedParameterPool(cfg)
	defer params.Close()

	r := &runner{
		client: &http.Client{Timeout: 10 * time.Second},
		pool:   params,
		stats:  &counters{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := r.seedUnits(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: seeding units: %v\n", err)
		os.Exit(1)
	}
	n, _ := params.Count(ctx, pool.SemanticTypeUnitID)
	fmt.Printf("loadgen: seeded %d units, running %d workers at %.1f qps for %s\n",
		n, concurrency, qps, duration)

	interval := time.Duration(float64(time.Second) * float64(concurrency) / qps)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r.work(ctx, interval, rand.New(rand.NewSource(seed)))
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	r.report(ctx)
}

func (r *runner) work(ctx context.Context, interval time.Duration, rng *rand.Rand) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rng.Float64() < paymentRatio {
			r.postPayment(ctx, rng)
		} else {
			r.postExpense(ctx, rng)
		}
	}
}

// seedUnits lists the management's units and loads their IDs into the pool.
func (r *runner) seedUnits(ctx context.Context) error {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	status, err := r.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/managements/%s/units?page_size=100", managementID), nil, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list units returned %d", status)
	}
	for _, u := range out.Data {
		v := pool.NewParameterValue(u.ID, pool.SemanticTypeUnitID, 0).
			WithSource("GET /units", "$.data[*].id")
		if _, err := r.pool.Add(ctx, v); err != nil {
			return err
		}
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("management %s has no units", managementID)
	}
	return nil
}

func (r *runner) postPayment(ctx context.Context, rng *rand.Rand) {
	unit, err := r.pool.GetRandom(ctx, pool.SemanticTypeUnitID)
	if err != nil || unit == nil {
		return
	}
	body := map[string]any{
		"unit_id":      unit.Value,
		"amount_minor": int64(rng.Intn(20)+1) * 2500,
		"reference":    fmt.Sprintf("loadgen payment %d", rng.Int63()),
		"request_id":   fmt.Sprintf("loadgen-%d", rng.Int63()),
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	status, err := r.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/managements/%s/ledger/payments", managementID), body, &out)
	r.stats.record(status, err)
	if err == nil && status < 300 && out.Data.ID != "" {
		v := pool.NewParameterValue(out.Data.ID, pool.SemanticTypePaymentID, 0).
			WithSource("POST /ledger/payments", "$.data.id")
		_, _ = r.pool.Add(ctx, v)
	}
	if verbose {
		fmt.Printf("payment unit=%v status=%d err=%v\n", unit.Value, status, err)
	}
}

func (r *runner) postExpense(ctx context.Context, rng *rand.Rand) {
	body := map[string]any{
		"amount_minor": int64(rng.Intn(50)+1) * 1000,
		"reference":    fmt.Sprintf("loadgen expense %d", rng.Int63()),
		"request_id":   fmt.Sprintf("loadgen-%d", rng.Int63()),
	}
	status, err := r.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/managements/%s/ledger/expenses", managementID), body, nil)
	r.stats.record(status, err)
	if verbose {
		fmt.Printf("expense status=%d err=%v\n", status, err)
	}
}

func (r *runner) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (r *runner) report(ctx context.Context) {
	fmt.Printf("\nloadgen: %d requests, %d transport errors\n",
		r.stats.requests.Load(), r.stats.errors.Load())
	r.stats.statuses.Range(func(k, v any) bool {
		fmt.Printf("  HTTP %d: %d\n", k, v.(*atomic.Int64).Load())
		return true
	})
	if stats, err := r.pool.Stats(ctx); err == nil {
		fmt.Printf("  pool: %d values across %d types, hit rate %.1f%%\n",
			stats.TotalValues, len(stats.ValuesByType), stats.HitRate())
	}
}
