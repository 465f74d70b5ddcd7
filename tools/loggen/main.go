package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	methods   = []string{"GET", "GET", "GET", "get", "POST", "HEAD"}
	statuses  = []int{200, 200, 200, 301, 304, 404, 500}
	protocols = []string{"HTTP/1.1", "HTTP/1.1", "HTTP/2.0"}
	paths     = []string{
		"/", "/filter/27|13%20test", "/Image/60844/productModel/200x200",
		"/static/images/guarantees/bestPrice.png", "/browse/whatever//", "/product/31893/62100/%D8%B3%D8%A7%D9%85%D8%B3%D9%88%D9%86%DA%AF",
		"/search?q=phone", "/basket/add;jsessionid=1?x=1", "/amp-helper-frame.html",
	}
	agents = []string{
		"Mozilla/5.0 (compatible; AhrefsBot/6.1; +http://ahrefs.com/robot/)",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 12_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/12.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/71.0.3578.98 Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 12_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
		"Mozilla/5.0 (Linux; Android 8.0.0; SM-G960F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/70.0.3538.110 Mobile Safari/537.36",
	}
)

func main() {
	outPath := flag.String("o", "-", "output file (- for stdout)")
	lines := flag.Int("n", 10000, "number of lines to generate")
	concurrency := flag.Int("c", 4, "number of concurrent generators")
	addresses := flag.Int("addrs", 200, "number of distinct client addresses")
	rps := flag.Int("rps", 0, "lines per second limit (0 = unlimited)")
	junk := flag.Float64("junk", 0.01, "fraction of malformed lines")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	var out io.Writer = os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	limit := rate.Inf
	if *rps > 0 {
		limit = rate.Limit(*rps)
	}
	limiter := rate.NewLimiter(limit, 100) // Allow bursts up to 100

	pool := make([]string, *addresses)
	rng := rand.New(rand.NewSource(*seed))
	for i := range pool {
		pool[i] = fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(222), rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
	}

	ctx := context.Background()
	linesCh := make(chan string, 1024)
	var remaining atomic.Int64
	remaining.Store(int64(*lines))
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(*seed + int64(workerID) + 1))
			for remaining.Add(-1) >= 0 {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				linesCh <- line(r, pool, *junk)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(linesCh)
	}()

	// Single writer keeps lines whole.
	written := 0
	for l := range linesCh {
		w.WriteString(l)
		w.WriteByte('\n')
		written++
	}

	log.Printf("Generated %d lines in %s", written, time.Since(start).Round(time.Millisecond))
}

func line(r *rand.Rand, pool []string, junk float64) string {
	if r.Float64() < junk {
		return "malformed entry " + uuid.NewString()
	}
	ts := time.Date(2019, time.January, 22, 0, 0, 0, 0, time.FixedZone("", 3*3600+30*60)).
		Add(time.Duration(r.Intn(86400)) * time.Second)
	return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d "-" "%s"`,
		pool[r.Intn(len(pool))],
		ts.Format("02/Jan/2006:15:04:05 -0700"),
		methods[r.Intn(len(methods))],
		paths[r.Intn(len(paths))],
		protocols[r.Intn(len(protocols))],
		statuses[r.Intn(len(statuses))],
		r.Intn(50000),
		agents[r.Intn(len(agents))],
	)
}
