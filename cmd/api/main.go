package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rentflow/auth"
	"rentflow/callback"
	"rentflow/config"
	"rentflow/contract"
	"rentflow/db"
	"rentflow/dispute"
	"rentflow/gateway"
	"rentflow/housingarea"
	"rentflow/ledger"
	"rentflow/logging"
	"rentflow/notify"
	"rentflow/refund"
	"rentflow/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	gwClient := gateway.NewClient(gateway.Config{
		AppID:    cfg.Gateway.AppID,
		Key1:     cfg.Gateway.Key1,
		Key2:     cfg.Gateway.Key2,
		Endpoint: cfg.Gateway.Endpoint,
	})

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	ledgerRepo := ledger.NewRepository(pool)
	roomRepo := room.NewRepository(pool)
	areaRepo := housingarea.NewRepository(pool)
	contractRepo := contract.NewRepository(pool, roomRepo)
	disputeRepo := dispute.NewRepository(pool, contractRepo)

	areaSvc := housingarea.NewService(areaRepo, gwClient, logger)
	roomSvc := room.NewService(roomRepo, areaRepo, gwClient, logger)
	contractSvc := contract.NewService(contractRepo, gwClient, roomRepo, logger)

	orchestrator := refund.NewOrchestrator(gwClient, ledgerRepo,
		cfg.Gateway.AppID, cfg.Refund.MaxAttempts, cfg.Refund.PollDelay, logger)
	disputeSvc := dispute.NewService(disputeRepo, contractRepo, ledgerRepo, orchestrator, logger)

	dispatcher := callback.NewDispatcher(pool, gwClient, ledgerRepo, contractRepo, roomRepo, areaRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	auth.NewHandler(authSvc).RegisterRoutes(api)
	callback.NewHandler(dispatcher).RegisterRoutes(api)

	protected := api.Group("", auth.Middleware(authSvc))
	auth.NewHandler(authSvc).RegisterProtectedRoutes(protected)
	housingarea.NewHandler(areaSvc).RegisterProtectedRoutes(protected)
	room.NewHandler(roomSvc).RegisterProtectedRoutes(protected)
	contract.NewHandler(contractSvc).RegisterProtectedRoutes(protected)
	dispute.NewHandler(disputeSvc).RegisterProtectedRoutes(protected)

	sweeper := contract.NewSweeper(contractSvc, logger)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Fatal("start expiry sweeper", zap.Error(err))
	}

	relay := notify.NewRelay(pool, notify.NewLogSender(logger), logger)
	if err := relay.Start(cfg.SweepSchedule); err != nil {
		logger.Fatal("start outbox relay", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sweeper.Stop(shutdownCtx)
		relay.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

// requestLogger logs one line per request with method, path, status and latency.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
