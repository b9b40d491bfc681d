package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/ShortsHub/internal/aggregator"
	"github.com/LJTian/ShortsHub/internal/api"
	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/LJTian/ShortsHub/internal/config"
	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/LJTian/ShortsHub/internal/processor"
	"github.com/LJTian/ShortsHub/internal/scheduler"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatalf("load config failed: %v", err)
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		logger.L.Fatalf("init logger failed: %v", err)
	}
	defer logger.Sync()

	logger.L.Infof("config loaded: port=%s upstream=%s batch_floor=%d max_calls=%d year_mode=%s tz=%s",
		cfg.AppPort, cfg.UpstreamBaseURL, cfg.BatchFloor, cfg.MaxUpstreamCalls, cfg.YearMode, cfg.Timezone)

	client := collector.NewInshortsClient(cfg.UpstreamBaseURL, cfg.UpstreamUserAgent, cfg.UpstreamTimeout)
	agg := aggregator.New(client, aggregator.Options{
		BatchFloor: cfg.BatchFloor,
		MaxCalls:   cfg.MaxUpstreamCalls,
		Normalizer: processor.NewNormalizer(cfg.Location()),
	})

	// 上游探活：PROBE_CRON 为空时关闭
	var prober *scheduler.Prober
	if cfg.ProbeCron != "" {
		prober, err = scheduler.New(cfg.ProbeCron, client)
		if err != nil {
			logger.L.Fatalf("init prober failed: %v", err)
		}
		prober.Start()
		defer prober.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := api.NewEngine(api.NewServer(agg, cfg, prober))

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.L.Infof("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatalf("server exit: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.L.Infof("received %v, shutting down ...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Errorf("shutdown: %v", err)
	}
}
