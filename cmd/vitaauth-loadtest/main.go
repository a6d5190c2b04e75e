// Command vitaauth-loadtest measures refresh-record latency on the Redis
// token store: a Get phase, as run by every refresh, and a Rotate phase, as
// run by every refresh with rotation on.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vitadrop/vitaauth/tokenstore"
)

type owner struct {
	id    string
	mu    sync.Mutex
	token string
	gen   int
}

func main() {
	var (
		owners      = flag.Int("owners", 50000, "number of refresh records to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; REDIS_ADDR or an in-process miniredis when empty")
		prefix      = flag.String("prefix", "vrt-load", "record key prefix")
	)
	flag.Parse()

	if *owners <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "owners, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	rdb, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	store := tokenstore.NewRedisStore(rdb, *prefix)
	expires := time.Now().Add(24 * time.Hour)

	states := make([]owner, *owners)
	fmt.Printf("seeding %d records...\n", *owners)
	seedStart := time.Now()
	for i := range states {
		states[i].id = fmt.Sprintf("owner-%d", i)
		states[i].token = tokenFor(i, 0)
		if err := store.Put(ctx, states[i].id, states[i].token, expires); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(seedStart).Round(time.Millisecond))

	get := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := store.Get(ctx, states[r.IntN(len(states))].id)
		return err
	})
	rotate := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		i := r.IntN(len(states))
		o := &states[i]
		o.mu.Lock()
		defer o.mu.Unlock()
		next := tokenFor(i, o.gen+1)
		if err := store.Rotate(ctx, o.id, o.token, next, expires); err != nil {
			return err
		}
		o.token, o.gen = next, o.gen+1
		return nil
	})

	fmt.Println("---- results ----")
	get.print("get")
	rotate.print("rotate")
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

// runPhase runs op ops times across concurrency workers.
func runPhase(ops, concurrency int, op func(r *rand.Rand) error) stats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for cursor.Add(1) <= int64(ops) {
				t0 := time.Now()
				if err := op(r); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return summarize(time.Since(start), latencies, failures.Load())
}

type stats struct {
	total         time.Duration
	ops           int
	failures      int64
	p50, p95, p99 time.Duration
	opsPerSec     float64
}

func summarize(total time.Duration, samples []time.Duration, failures int64) stats {
	if len(samples) == 0 {
		return stats{total: total}
	}
	slices.Sort(samples)
	return stats{
		total:     total,
		ops:       len(samples),
		failures:  failures,
		p50:       percentile(samples, 50),
		p95:       percentile(samples, 95),
		p99:       percentile(samples, 99),
		opsPerSec: float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func (s stats) print(name string) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures,
		s.total.Round(time.Millisecond), s.opsPerSec,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}

func tokenFor(i, gen int) string {
	return fmt.Sprintf("refresh-%d-%d", i, gen)
}
