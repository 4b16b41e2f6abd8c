package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/internal/cache"
	"github.com/segyhp/peer-lending/internal/config"
	"github.com/segyhp/peer-lending/internal/repository"
	"github.com/segyhp/peer-lending/internal/service"
	"github.com/segyhp/peer-lending/pkg/logger"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// jobTimeout bounds a single run so a stuck query cannot pile up runs.
const jobTimeout = 5 * time.Minute

type reconciler interface {
	ReconcileLoans(ctx context.Context) (service.ReconcileReport, error)
	RemindDue(ctx context.Context, window time.Duration) (service.ReminderReport, error)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	reconciler := service.NewReconciler(
		repository.NewLoanRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewUnitOfWork(db),
		cache.NewScheduleCache(redisClient, cfg.Cache.ScheduleTTL),
	)

	// Initialize cron scheduler
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
	)

	if err := registerJobs(c, cfg.Scheduler, reconciler); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}

	c.Start()
	log.WithField("timezone", cfg.Scheduler.Timezone).Info("scheduler started")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down scheduler")
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}

func registerJobs(c *cron.Cron, cfg config.SchedulerConfig, r reconciler) error {
	if _, err := c.AddFunc(cfg.ReconcileSpec, func() { reconcileJob(r) }); err != nil {
		return fmt.Errorf("reconcile job: %w", err)
	}
	if _, err := c.AddFunc(cfg.ReminderSpec, func() { reminderJob(r, cfg.ReminderWindow) }); err != nil {
		return fmt.Errorf("reminder job: %w", err)
	}
	return nil
}

func reconcileJob(r reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	report, err := r.ReconcileLoans(ctx)
	entry := log.WithFields(log.Fields{
		"approved":    report.Approved,
		"rescheduled": report.Rescheduled,
		"resynced":    report.Resynced,
		"duration":    time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("reconcile job finished with errors")
		return
	}
	entry.Info("reconcile job finished")
}

func reminderJob(r reconciler, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := r.RemindDue(ctx, window)
	if err != nil {
		log.WithError(err).Error("reminder job failed")
		return
	}
	log.WithFields(log.Fields{
		"upcoming": report.Upcoming,
		"overdue":  report.Overdue,
		"window":   window.String(),
	}).Info("reminder job finished")
}
