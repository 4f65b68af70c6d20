package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/console/handler"
	"github.com/xela07ax/docflow-gateway/internal/console/server"
	"github.com/xela07ax/docflow-gateway/internal/console/service"
	"github.com/xela07ax/docflow-gateway/internal/infra"
	"github.com/xela07ax/docflow-gateway/internal/infra/auth"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
	"github.com/xela07ax/docflow-gateway/internal/repository/postgres"
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

	// 2. Ключи RS256: приватный для подписи, публичный для проверки
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid public key", zap.Error(err))
	}

	// 3. Инициализация ресурсов
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

	// 4. Инициализация слоев (Dependency Injection)
	// Консоль читает тем же двухъярусным путем, что и пайплайн
	requestLedger := ledger.New(ledger.NewRedisStore(rdb, 24*time.Hour), store, logger)

	authService := service.NewAuthService(store, privateKey, publicKey, cfg.Auth.TokenTTL)
	requestService := service.NewRequestService(requestLedger, store)

	consoleSrv := server.NewConsoleServer(
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewRequestsHandler(requestService),
		handler.NewDashboardHandler(requestService),
	)

	// 5. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("console API started", zap.String("addr", srv.Addr))
	log.Fatal(srv.ListenAndServe())
}
