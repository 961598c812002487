// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-platform-billing/internal/config"
	pg "content-platform-billing/internal/infra/db/postgres"
	"content-platform-billing/internal/infra/logging"
	"content-platform-billing/internal/infra/metrics"
	red "content-platform-billing/internal/infra/redis"
	"content-platform-billing/internal/infra/web"
	"content-platform-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	pg.StartPoolStatsReporter(ctx, pool, 30*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	lotRepo := pg.NewCreditLotRepo(pool)
	ruleRepo := pg.NewRuleRepoCacheDecorator(pg.NewPromotionRuleRepo(pool), redisClient, cfg.Redis.RuleCacheTTL)
	userDir := pg.NewUserDirectory(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	engine := usecase.NewPromotionEngine(ruleRepo, userDir, logger)
	ledger := usecase.NewCreditLedger(lotRepo, txManager, logger)
	checkout := usecase.NewCheckoutUseCase(engine, ledger, ruleRepo, logger)
	ruleAdmin := usecase.NewRuleAdminUseCase(ruleRepo, ruleRepo, engine, logger)

	metrics.MustRegister()

	// ---- HTTP server ----
	srv := web.NewServer(engine, ledger, checkout, ruleAdmin, cfg.Admin.APIKey, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	cancel()
}
