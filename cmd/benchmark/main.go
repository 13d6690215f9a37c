package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	idsFile     string
	rps         float64
)

var (
	totalRequests uint64
	success2xx    uint64
	replays       uint64
	rejected4xx   uint64
	throttled429  uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot | cpr")
	flag.StringVar(&idsFile, "ids", "accounts.txt", "Seeded account ids, one per line")
	flag.Float64Var(&rps, "rps", 0, "Global request rate limit; 0 means unlimited")
}

func main() {
	flag.Parse()
	ids, err := readIDs(idsFile)
	if err != nil {
		log.Fatalf("reading account ids: %v", err)
	}
	if len(ids) < 2 {
		log.Fatalf("need at least 2 seeded accounts, found %d", len(ids))
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Accounts: %d", workload, concurrency, duration, len(ids))

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	limiter := rate.NewLimiter(limit, concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	if workload == "cpr" {
		if err := prepareGhost(ids[0]); err != nil {
			log.Fatalf("preparing ghost: %v", err)
		}
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for range concurrency {
		g.Go(func() error { return worker(ctx, limiter, ids) })
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("benchmark aborted: %v", err)
	}
	printResults(time.Since(start))
}

func worker(ctx context.Context, limiter *rate.Limiter, ids []uuid.UUID) error {
	client := &http.Client{Timeout: 5 * time.Second}
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Deadline reached.
			return nil
		}

		var req *http.Request
		switch workload {
		case "cpr":
			req = cprRequest(ids)
		default:
			req = transferRequest(ids)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch {
		case resp.Header.Get("Idempotent-Replayed") != "":
			atomic.AddUint64(&replays, 1)
		case resp.StatusCode < 300:
			atomic.AddUint64(&success2xx, 1)
		case resp.StatusCode == http.StatusTooManyRequests:
			atomic.AddUint64(&throttled429, 1)
		case resp.StatusCode < 500:
			atomic.AddUint64(&rejected4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func transferRequest(ids []uuid.UUID) *http.Request {
	from, to := pickPair(ids)
	key := fmt.Sprintf("bench-%d", time.Now().UnixNano())

	payload := map[string]any{
		"from_account_id": from,
		"to_account_id":   to,
		"amount":          1,
		"kind":            "gift",
		"reason":          "benchmark",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", from.String())
	req.Header.Set("Idempotency-Key", key)
	return req
}

// cprRequest has every worker rescue the same ghost, the worst case for the
// per-ghost row lock.
func cprRequest(ids []uuid.UUID) *http.Request {
	rescuer := ids[1+rand.IntN(len(ids)-1)]
	body, _ := json.Marshal(map[string]any{"ghost_id": ids[0]})
	req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/cpr", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", rescuer.String())
	return req
}

func pickPair(ids []uuid.UUID) (uuid.UUID, uuid.UUID) {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// 90% of traffic between the first two accounts.
		if rand.Float32() < 0.5 {
			return ids[0], ids[1]
		}
		return ids[1], ids[0]
	}
	a := rand.IntN(len(ids))
	b := rand.IntN(len(ids))
	for a == b {
		b = rand.IntN(len(ids))
	}
	return ids[a], ids[b]
}

func prepareGhost(id uuid.UUID) error {
	body, _ := json.Marshal(map[string]string{"shrine_message": "benchmark ghost"})
	req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/self-kill", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", id.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 409 means the ghost survives from an earlier run.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("self-kill returned %d", resp.StatusCode)
	}
	return nil
}

func readIDs(path string) ([]uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []uuid.UUID
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		id, err := uuid.ParseBytes(line)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&success2xx)
	rep := atomic.LoadUint64(&replays)
	rej := atomic.LoadUint64(&rejected4xx)
	thr := atomic.LoadUint64(&throttled429)
	fErr := atomic.LoadUint64(&failOther)

	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rej) / float64(total) * 100
	}

	results := map[string]any{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success":         ok,
		"success_replay":  rep,
		"rejected":        rej,
		"reject_rate_pct": rejectRate,
		"throttled":       thr,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("saving results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
