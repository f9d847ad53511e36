// Package tasks runs background maintenance jobs on a cron schedule.
package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"eventlottery/internal/service"
)

// StartExpirySweep schedules the periodic sweep that cancels SELECTED
// registrations whose response window has elapsed. The returned cron
// should be stopped on shutdown.
func StartExpirySweep(svc *service.LotteryService, interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		expired, err := svc.ExpireOverdue(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("expiry sweep failed: %v", err)
			return
		}
		if expired > 0 {
			log.Printf("expiry sweep cancelled %d overdue selections", expired)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}
	c.Start()
	return c, nil
}
