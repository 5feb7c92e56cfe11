// Command agentsim drives simulated agents against a running operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"supersorting.ai/internal/client"
	"supersorting.ai/internal/protocol"
)

func main() {
	var (
		addr     = flag.String("addr", "http://127.0.0.1:8080", "operator base url")
		apiKey   = flag.String("api_key", os.Getenv("SSS_API_KEY"), "gateway api key (or set SSS_API_KEY)")
		n        = flag.Int("agents", 4, "number of agents")
		prefix   = flag.String("prefix", "sim", "agent id prefix")
		interval = flag.Duration("interval", 500*time.Millisecond, "time per step")
		seed     = flag.Int64("seed", 1, "placement seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[agentsim] ", log.LstdFlags|log.Lmicroseconds)
	c := client.New(*addr, *apiKey)

	ctx, cancel := signalContext()
	defer cancel()

	fc, err := c.FacilityConfig(ctx)
	if err != nil {
		logger.Fatalf("facility config: %v", err)
	}
	rng := rand.New(rand.NewSource(*seed))

	agents := make([]*simAgent, 0, *n)
	for i := 0; i < *n; i++ {
		a, err := register(ctx, c, fmt.Sprintf("%s-%02d", *prefix, i+1), fc.Width, fc.Height, rng, logger)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		agents = append(agents, a)
	}

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *simAgent) {
			defer wg.Done()
			t := time.NewTicker(*interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
				if err := a.step(ctx); err != nil {
					if client.IsCode(err, protocol.ErrExpired) {
						logger.Printf("agent %s expired; stopping", a.id)
						return
					}
					if ctx.Err() == nil {
						logger.Printf("agent %s: %v", a.id, err)
					}
				}
			}
		}(a)
	}
	wg.Wait()

	total := 0
	for _, a := range agents {
		total += a.completed
	}
	logger.Printf("stopped: %d agents, %d operations completed", len(agents), total)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
