package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/console/handler"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/infra"
	"github.com/xela07ax/aigov-engine/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler       *handler.AuthHandler       // /auth/token
	systemHandler     *handler.SystemHandler     // /v1/systems
	assessmentHandler *handler.AssessmentHandler // /v1/systems/{id}/assessments
	bindingHandler    *handler.BindingHandler    // /v1/systems/{id}/bindings
	auditHandler      *handler.AuditHandler      // /v1/systems/{id}/audit
	changeHandler     *handler.ChangeHandler     // /v1/systems/{id}/changes
	monitoringHandler *handler.MonitoringHandler // /v1/systems/{id}/metrics
	dashHandler       *handler.DashboardHandler  // /api/v1/dashboard
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	systemH *handler.SystemHandler,
	assessmentH *handler.AssessmentHandler,
	bindingH *handler.BindingHandler,
	auditH *handler.AuditHandler,
	changeH *handler.ChangeHandler,
	monitoringH *handler.MonitoringHandler,
	dashH *handler.DashboardHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		cfg:               cfg,
		authValidator:     validator,
		authHandler:       authH,
		systemHandler:     systemH,
		assessmentHandler: assessmentH,
		bindingHandler:    bindingH,
		auditHandler:      auditH,
		changeHandler:     changeH,
		monitoringHandler: monitoringH,
		dashHandler:       dashH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Реестр систем и операции над ними
		r.Route("/v1/systems", func(r chi.Router) {
			r.Get("/", s.systemHandler.List)
			r.Post("/", s.systemHandler.Register)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.systemHandler.Get)
				r.Get("/status", s.systemHandler.Status)

				// Оценки: запуск цикла и история
				r.With(auth.RequireScope(domain.ScopeSubmitAssessment)).
					Post("/assessments", s.assessmentHandler.Submit)
				r.Get("/assessments", s.assessmentHandler.History)
				r.Post("/precedents", s.assessmentHandler.Precedents)

				// Уведомления об изменениях (CI/CD, инцидент-менеджмент):
				// триаж может запустить внеплановую оценку
				r.With(auth.RequireScope(domain.ScopeSubmitAssessment)).
					Post("/changes", s.changeHandler.Notify)

				// Байндинги рамок
				r.Get("/bindings", s.bindingHandler.List)
				r.Post("/bindings", s.bindingHandler.Upsert)

				// Цепочка аудита: экспорт, проверка, re-anchor
				r.Route("/audit", func(r chi.Router) {
					r.Use(auth.RequireScope(domain.ScopeReadAudit))
					r.Get("/", s.auditHandler.Export)
					r.Post("/verify", s.auditHandler.Verify)
					// Re-anchor — отдельное операторское право
					r.With(auth.RequireScope(domain.ScopeReanchorChain)).
						Post("/reanchor", s.auditHandler.Reanchor)
				})

				// Пороговый мониторинг
				r.With(auth.RequireScope(domain.ScopeStreamMetrics)).
					Post("/metrics", s.monitoringHandler.Ingest)
				r.Get("/metrics", s.monitoringHandler.Samples)
			})
		})

		// Записи оценок по прямому ID
		r.Get("/v1/assessments/{id}", s.assessmentHandler.Get)

		// Управление байндингами
		r.Delete("/v1/bindings/{bindingID}", s.bindingHandler.Delete)

		// Сводка по всем цепочкам
		r.With(auth.RequireScope(domain.ScopeReadAudit)).
			Get("/v1/audit/chains", s.auditHandler.Status)

		// Пороги мониторинга (общие для всех систем)
		r.Route("/v1/monitoring/specs", func(r chi.Router) {
			r.Get("/", s.monitoringHandler.ListSpecs)
			r.With(auth.RequireScope(domain.ScopeManageThresholds)).
				Post("/", s.monitoringHandler.UpsertSpec)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
