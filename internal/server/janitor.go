package server

import (
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/voyatech/ticketcheck/internal/cache"
)

// Janitor sweeps expired entries out of the in-memory cache on a cron
// schedule, so idle caches do not hold dead entries between requests.
type Janitor struct {
	Cache  *cache.Memory
	Cron   string
	Stop   chan struct{}
	Logger *log.Logger
}

func (j *Janitor) Start() error {
	expr, err := cronexpr.Parse(j.Cron)
	if err != nil {
		return fmt.Errorf("invalid cache.sweep_cron %q: %w", j.Cron, err)
	}
	go func() {
		for {
			next := expr.Next(time.Now())
			if next.IsZero() {
				return
			}
			select {
			case <-j.Stop:
				return
			case <-time.After(time.Until(next)):
				if removed := j.Cache.Sweep(); removed > 0 {
					j.Logger.Printf("swept %d expired cache entries (%d live)", removed, j.Cache.Len())
				}
			}
		}
	}()
	return nil
}
