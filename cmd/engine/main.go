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

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/connectors"
	"github.com/xela07ax/aigov-engine/internal/console/handler"
	"github.com/xela07ax/aigov-engine/internal/console/server"
	"github.com/xela07ax/aigov-engine/internal/console/service"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/engine"
	"github.com/xela07ax/aigov-engine/internal/history"
	"github.com/xela07ax/aigov-engine/internal/infra"
	"github.com/xela07ax/aigov-engine/internal/infra/auth"
	"github.com/xela07ax/aigov-engine/internal/monitor"
	"github.com/xela07ax/aigov-engine/internal/repository/postgres"
	"github.com/xela07ax/aigov-engine/internal/risk"
	"github.com/xela07ax/aigov-engine/internal/scoring"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин:
	// SIGTERM -> cancel() останавливает слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	repo, err := postgres.NewRepo(pingCtx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	if err := repo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()
	defer repo.Close()

	// 3. Audit Plane: асинхронная персистентность + цепочки в памяти
	trail := audit.NewTrailFS(repo,
		cfg.Engine.AuditBufferSize, cfg.Engine.AuditBatchSize, cfg.Engine.AuditFlushInterval, logger)
	trail.Start()

	ledger := audit.NewLedger(trail, logger)

	// Гидрация цепочек из БД и проверка целостности на старте
	events, err := repo.LoadAllEvents(appCtx)
	if err != nil {
		logger.Fatal("audit hydration failed", zap.Error(err))
	}
	ledger.Hydrate(events)
	for _, systemID := range ledger.Systems() {
		if res := ledger.Verify(systemID); !res.Valid {
			logger.Error("chain failed startup verification, frozen until re-anchor",
				zap.String("system_id", systemID),
				zap.Int("first_invalid_index", res.FirstInvalid))
		}
	}

	// Распределенное состояние заморозок (L2 — Redis)
	freezeMgr := engine.NewFreezeManager(ledger, rdb, logger)
	if err := freezeMgr.Init(appCtx); err != nil {
		logger.Error("freeze manager init failed, running on local state", zap.Error(err))
	}
	go freezeMgr.StartListener(appCtx)

	// 4. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// Backpressure буфера аудита — в gauge
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-ticker.C:
				metrics.AuditBufferFill.Set(float64(trail.Buffered()))
			}
		}
	}()

	// 5. Скореры: внешние HTTP-сервисы или локальные mock
	registry := connectors.NewRegistry()
	dims := []string{
		domain.DimBias, domain.DimPrivacy, domain.DimSecurity,
		domain.DimExplainability, domain.DimRegulatory,
	}
	for _, dim := range dims {
		var scorer connectors.Scorer
		if cfg.Engine.ScorerBaseURL != "" {
			scorer = connectors.NewHTTPAdapter(cfg.Engine.ScorerBaseURL, "scorer-"+dim, cfg.Engine.ScorerTimeout)
		} else {
			scorer = connectors.NewMockScorer("mock-" + dim)
		}
		// Обертка надежности: Rate Limiter -> CB -> Retry
		registry.Register(dim, engine.NewReliabilityWrapper(scorer, dim, cfg.Engine, metrics))
	}

	// 6. Ядро оценки
	statusPolicy := scoring.StatusPolicy{
		CompliantFloor: cfg.Engine.CompliantFloor,
		PartialFloor:   cfg.Engine.PartialFloor,
	}
	orch := engine.NewOrchestrator(repo, repo, repo, registry, ledger,
		scoring.DefaultWeightProfiles(), statusPolicy, metrics,
		cfg.Engine.AuditAppendAttempts, logger)

	// 7. Пороговый мониторинг
	tracker := monitor.NewTracker(nil, monitor.AlertPolicy{
		CooldownSamples: cfg.Monitoring.CooldownSamples,
		MinConsecutive:  cfg.Monitoring.MinConsecutive,
	})
	specSyncer := monitor.NewSpecSyncer(tracker, repo, rdb, logger)
	if err := specSyncer.Refresh(appCtx); err != nil {
		logger.Error("threshold specs not loaded, monitor starts empty", zap.Error(err))
	}
	go specSyncer.StartListener(appCtx)

	monitorSvc := monitor.NewService(tracker, ledger, repo, rdb, metrics,
		cfg.Engine.AuditAppendAttempts, logger)

	// 8. Context Store (прецеденты)
	histStore := history.NewStore(repo, history.Params{
		HalfLife:         cfg.History.HalfLife,
		RecencyWeight:    cfg.History.RecencyWeight,
		SimilarityWeight: cfg.History.SimilarityWeight,
		DefaultLimit:     cfg.History.DefaultLimit,
	}, logger)

	// 9. Аутентификация (RS256)
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key parse failed", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key parse failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)
	authSvc := service.NewAuthService(repo, privKey, cfg.Auth.TokenTTL)

	// 10. Console API
	auditSvc := service.NewAuditService(ledger, freezeMgr, logger)
	analyzer := risk.NewAnalyzer(logger)

	consoleSrv := server.NewConsoleServer(cfg, logger, validator,
		handler.NewAuthHandler(authSvc),
		handler.NewSystemHandler(repo),
		handler.NewAssessmentHandler(orch, repo, histStore),
		handler.NewBindingHandler(repo),
		handler.NewAuditHandler(auditSvc),
		handler.NewChangeHandler(repo, analyzer, orch),
		handler.NewMonitoringHandler(monitorSvc, repo, specSyncer),
		handler.NewDashboardHandler(repo),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("governance engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("governance engine stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel() // Останавливаем слушателей Redis

	// Финальный слив буфера аудита: цепочки не теряют хвост при рестарте
	trail.Stop()
	logger.Info("governance engine exited properly")
}
