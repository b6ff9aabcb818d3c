package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/upwear/coupon-service/internal/api"
	"github.com/upwear/coupon-service/internal/api/middleware"
	"github.com/upwear/coupon-service/internal/cache"
	"github.com/upwear/coupon-service/internal/config"
	"github.com/upwear/coupon-service/internal/reconcile"
	"github.com/upwear/coupon-service/internal/repository"
	"github.com/upwear/coupon-service/internal/service"
	"github.com/upwear/coupon-service/pkg/db"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "coupon-service").
		Logger()

	conn, err := db.NewPostgresConnection(db.LoadPostgresConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer conn.Close()

	// the cache is optional; without Redis every lookup goes to Postgres
	var couponCache cache.CouponCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		couponCache = cache.NewRedisCache(rdb, cfg.CouponCacheTTL, log)
	}

	auditRepo := repository.NewAuditRepo(conn, log)
	couponRepo := repository.NewCouponRepo(conn, auditRepo)
	usageRepo := repository.NewUsageRepo(conn)
	orderRepo := repository.NewOrderRepo(conn)
	svc := service.NewCouponService(conn, couponRepo, usageRepo, orderRepo, couponCache, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(log))
	r.Mount("/", api.NewRouter(svc, couponRepo))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jobs *cron.Cron
	if cfg.ReconcileSchedule != "" {
		rec := reconcile.NewReconciler(conn, log)
		jobs = cron.New()
		_, err := jobs.AddFunc(cfg.ReconcileSchedule, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := rec.Run(runCtx); err != nil {
				log.Error().Err(err).Msg("reconcile run failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("invalid reconcile schedule")
		}
		jobs.Start()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting coupon-service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		if jobs != nil {
			<-jobs.Stop().Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}
