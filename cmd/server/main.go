package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/internal/cache"
	"github.com/segyhp/peer-lending/internal/config"
	"github.com/segyhp/peer-lending/internal/handler"
	"github.com/segyhp/peer-lending/internal/repository"
	"github.com/segyhp/peer-lending/internal/service"
	"github.com/segyhp/peer-lending/pkg/logger"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	loanRepo := repository.NewLoanRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	userRepo := repository.NewUserRepository(db)
	uow := repository.NewUnitOfWork(db)
	scheduleCache := cache.NewScheduleCache(redisClient, cfg.Cache.ScheduleTTL)

	// Initialize services
	loanService := service.NewLoanService(loanRepo, uow)
	repaymentService := service.NewRepaymentService(loanRepo, scheduleRepo, uow, scheduleCache)
	authService := service.NewAuthService(userRepo, cfg.JWT)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:  handler.NewAuthHandler(authService),
		Loans: handler.NewLoanHandler(loanService, repaymentService),
		Health: handler.NewHealthHandler(db, handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}), cfg.Health.Timeout),
		Authenticator:  authService,
		Idempotency:    redisClient,
		IdempotencyTTL: cfg.Idempotency.TTL,
	})

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithFields(log.Fields{"addr": server.Addr, "env": cfg.Server.Env}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return
	}

	log.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
