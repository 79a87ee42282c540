package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task now and then once per interval until ctx is done. A tick
// that arrives while the previous run is still going is skipped.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	if interval <= 0 {
		log.Printf("[%s] disabled (interval=%s)", name, interval)
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	var busy atomic.Bool
	fire := func() {
		if !busy.CompareAndSwap(false, true) {
			log.Printf("[%s] still running, tick skipped", name)
			return
		}
		go func() {
			defer busy.Store(false)
			start := time.Now()
			if err := task(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[%s] error: %v dur_ms=%d", name, err, time.Since(start).Milliseconds())
			}
		}()
	}

	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fire()
		}
	}
}
