package crmsync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
)

const syncLockKey = "crm:sync:lock"

// StartScheduler registers the nightly sync job and the yearly student
// promotion job and starts the cron loop. The returned cron can be
// stopped on shutdown.
func StartScheduler(svc *Service, logger *logrus.Logger) *cron.Cron {
	c := cron.New()

	cfg := svc.Config()
	if _, err := c.AddFunc(cfg.Schedule, func() { runScheduledSync(svc, logger) }); err != nil {
		config.LogError(logger, "crmsync", "StartScheduler", "register sync job", cfg.Schedule, err)
	}

	// new school year starts September 1st
	if _, err := c.AddFunc("0 0 1 9 *", func() {
		if _, _, err := svc.PromoteStudents(context.Background()); err != nil {
			config.LogError(logger, "crmsync", "StartScheduler", "student promotion", nil, err)
		}
	}); err != nil {
		config.LogError(logger, "crmsync", "StartScheduler", "register promotion job", nil, err)
	}

	c.Start()
	logger.WithFields(logrus.Fields{"module": "crmsync", "schedule": cfg.Schedule, "enabled": cfg.Enabled}).
		Info("sync scheduler started")
	return c
}

func runScheduledSync(svc *Service, logger *logrus.Logger) {
	cfg := svc.Config()
	if !cfg.Enabled || !cfg.IsConfigured() || svc.IsSyncRunning() {
		return
	}
	ctx := context.Background()

	// Best effort cross-replica guard; the in-process flag is still
	// authoritative when redis is not configured.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, syncLockKey, 30*time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.WithFields(logrus.Fields{"module": "crmsync"}).
				Info("scheduled sync skipped, another replica holds the lock")
			return
		}
		if err != nil {
			config.LogError(logger, "crmsync", "runScheduledSync", "obtain redis lock", syncLockKey, err)
		} else {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	if _, err := svc.SyncAll(ctx, nil, models.SyncTypeScheduled); err != nil {
		if errors.Is(err, ErrSyncAlreadyRunning) {
			return
		}
		config.LogError(logger, "crmsync", "runScheduledSync", "scheduled sync", nil, err)
	}
}
