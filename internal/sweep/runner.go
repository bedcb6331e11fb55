// Package sweep runs the periodic broken-promise check in the
// background. On multi-node deployments a Redis lock keeps the sweep to
// one runner per interval.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/credvue/fieldcollect/internal/config"
	"github.com/credvue/fieldcollect/internal/services/feedback"
	"github.com/credvue/fieldcollect/internal/websocket"
)

const lockKey = "fieldcollect:ptp-sweep"

// Runner schedules the broken-PTP sweep
type Runner struct {
	svc      *feedback.Service
	hub      *websocket.Hub
	log      *logrus.Logger
	interval time.Duration
	locker   *redislock.Client
}

// NewRunner creates a sweep runner. Redis is optional: when cfg.Redis is
// empty the sweep runs without a distributed lock.
func NewRunner(svc *feedback.Service, hub *websocket.Hub, log *logrus.Logger, cfg *config.Config) *Runner {
	r := &Runner{
		svc:      svc,
		hub:      hub,
		log:      log,
		interval: cfg.Sweep.Interval,
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		r.locker = redislock.New(client)
	}
	return r
}

// Start launches the sweep loop. It runs once immediately, then on every
// tick until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		r.runOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

func (r *Runner) runOnce(ctx context.Context) {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				r.log.Debug("PTP sweep already running on another node")
				return
			}
			r.log.WithError(err).Warn("could not obtain sweep lock, running unlocked")
		} else {
			defer lock.Release(ctx)
		}
	}

	result, err := r.svc.CheckBrokenPTP(ctx)
	if err != nil {
		r.log.WithError(err).Error("PTP sweep failed")
		return
	}

	r.log.WithFields(logrus.Fields{
		"checked": result.Checked,
		"broken":  result.Broken,
	}).Info("PTP sweep completed")

	if result.Broken > 0 && r.hub != nil {
		r.hub.Broadcast(websocket.EventPTPBroken, result)
	}
}
