package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/classify"
	"github.com/xela07ax/docflow-gateway/internal/extract"
	"github.com/xela07ax/docflow-gateway/internal/infra"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
	"github.com/xela07ax/docflow-gateway/internal/pipeline"
	"github.com/xela07ax/docflow-gateway/internal/repository/postgres"
	"github.com/xela07ax/docflow-gateway/internal/route"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := postgres.NewStore(cfg.Database.URL)
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()

	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	// 3. Сборка пайплайна (Dependency Injection)
	requestLedger := ledger.New(ledger.NewRedisStore(rdb, 24*time.Hour), store, logger)

	engineCfg := classify.Config{LargeValueThreshold: cfg.Pipeline.LargeValueThreshold}
	engine := classify.NewEngine(requestLedger, engineCfg, logger)
	registry := extract.NewRegistry(cfg.Pipeline.LargeValueThreshold)

	// Диспатч действий через цепочку защит: rate limit -> CB -> retry
	dispatcher := route.NewReliabilityWrapper(&route.MockSystemsConnector{}, cfg.Pipeline, logger)
	router := route.NewRouter(requestLedger, dispatcher, logger)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	p := pipeline.New(requestLedger, engine, registry, router, metrics, logger)
	handler := pipeline.NewHandler(p, requestLedger, logger)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	// 4. HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("pipeline started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("pipeline stopping")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("pipeline exited properly")
}
