package controller

import (
	"context"
	"time"
)

const (
	livenessInterval     = 30 * time.Second
	livenessFailureLimit = 5
)

// RunLiveness polls the chain gateway's health check every livenessInterval
// and terminates the process after livenessFailureLimit consecutive
// failures (spec §4.7 "added": a liveness loop distinct from the
// transaction queue's own retry policy — this guards the RPC connection
// itself, not any single call). A successful health check resets the
// failure count.
func (c *Controller) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.gateway.Health(); err != nil {
				failures++
				c.log.Warn("liveness check failed", "consecutive_failures", failures, "err", err)
				if failures >= livenessFailureLimit {
					c.log.Fatal("chain connection unrecoverable, exiting", "consecutive_failures", failures)
				}
				continue
			}
			failures = 0
		}
	}
}
