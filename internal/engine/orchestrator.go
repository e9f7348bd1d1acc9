package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/connectors"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/scoring"
)

// SystemStore — срез репозитория систем, нужный оркестратору.
type SystemStore interface {
	GetSystem(ctx context.Context, id string) (*domain.AISystem, error)
	// UpdateAssessmentState — seq-guarded запись результата:
	// UPDATE ... WHERE assessment_seq = expectedSeq. Возвращает
	// ErrKindConcurrentAppend, если параллельная оценка успела раньше.
	UpdateAssessmentState(ctx context.Context, systemID string, expectedSeq int64, score float64, status domain.ComplianceStatus, assessmentID string, at time.Time) error
}

// AssessmentStore — долговременное хранилище иммутабельных записей оценок.
type AssessmentStore interface {
	InsertAssessment(ctx context.Context, rec domain.AssessmentRecord) error
}

// BindingStore отдает байндинги системы (явные из БД).
type BindingStore interface {
	BindingsForSystem(ctx context.Context, systemID string) ([]domain.PolicyBinding, error)
}

// AssessmentRequest — вход submitAssessment.
type AssessmentRequest struct {
	SystemID   string                `json:"system_id"`
	AssessorID string                `json:"assessor_id"`
	Kind       domain.AssessmentKind `json:"kind"`

	// Scores — готовые скоры (ручная оценка / внешний пайплайн).
	// Для измерений без готового скора вызываются скореры из Registry.
	Scores map[string]domain.DimensionScore `json:"scores,omitempty"`

	// Evidence передается скорерам как есть, движок внутрь не смотрит
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Orchestrator прогоняет оценку через полный конвейер:
// scoring -> aggregate -> determine -> persist -> audit -> system update.
type Orchestrator struct {
	systems     SystemStore
	assessments AssessmentStore
	bindings    BindingStore
	registry    *connectors.Registry
	ledger      *audit.Ledger

	profiles map[domain.AssessmentKind]scoring.WeightProfile
	policy   scoring.StatusPolicy

	metrics *Metrics
	logger  *zap.Logger

	appendAttempts int
}

func NewOrchestrator(
	systems SystemStore,
	assessments AssessmentStore,
	bindings BindingStore,
	registry *connectors.Registry,
	ledger *audit.Ledger,
	profiles map[domain.AssessmentKind]scoring.WeightProfile,
	policy scoring.StatusPolicy,
	metrics *Metrics,
	appendAttempts int,
	logger *zap.Logger,
) *Orchestrator {
	if profiles == nil {
		profiles = scoring.DefaultWeightProfiles()
	}
	if appendAttempts <= 0 {
		appendAttempts = 3
	}
	return &Orchestrator{
		systems:        systems,
		assessments:    assessments,
		bindings:       bindings,
		registry:       registry,
		ledger:         ledger,
		profiles:       profiles,
		policy:         policy,
		metrics:        metrics,
		logger:         logger.Named("orchestrator"),
		appendAttempts: appendAttempts,
	}
}

// SubmitAssessment — единственная точка, через которую меняется статус
// системы. Ошибки скореров не роняют оценку (вес перераспределяется),
// а отказ записи аудита не теряет решение: результат возвращается
// с AuditPersisted=false.
func (o *Orchestrator) SubmitAssessment(ctx context.Context, req AssessmentRequest) (*domain.AssessmentResult, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.AssessmentsTotal.WithLabelValues(string(req.Kind)).Inc()
	}

	// 1. Валидация до любых изменений состояния
	if req.SystemID == "" {
		return nil, o.reject(ctx, req, domain.NewError(domain.ErrKindValidation, "",
			fmt.Errorf("engine: system id is required")))
	}
	if !domain.ValidAssessmentKind(req.Kind) {
		return nil, o.reject(ctx, req, domain.NewError(domain.ErrKindValidation, req.SystemID,
			fmt.Errorf("engine: unknown assessment kind %q", req.Kind)))
	}

	system, err := o.systems.GetSystem(ctx, req.SystemID)
	if err != nil {
		return nil, o.reject(ctx, req, err)
	}

	profile, ok := o.profiles[req.Kind]
	if !ok {
		return nil, o.reject(ctx, req, domain.NewError(domain.ErrKindValidation, req.SystemID,
			fmt.Errorf("engine: no weight profile for kind %q", req.Kind)))
	}

	bindings, err := o.resolveBindings(ctx, system)
	if err != nil {
		return nil, o.reject(ctx, req, err)
	}

	// 2. Сбор скоров: готовые из запроса + вызовы скореров по остальным
	// измерениям профиля. Отказ скорера не фатален — измерение просто
	// отсутствует, агрегатор перераспределит вес.
	scores, scoreWarnings := o.collectScores(ctx, req, profile)

	// 3. Агрегация (чистая функция)
	agg, err := scoring.Aggregate(scores, profile)
	if err != nil {
		return nil, o.reject(ctx, req, err)
	}

	// 4. Детерминация статуса (чистая, идемпотентная)
	now := time.Now().UTC()
	det := scoring.Determine(agg, scores, bindings, o.policy, now)

	// 5. Иммутабельная запись оценки
	record := domain.AssessmentRecord{
		ID:         uuid.New().String(),
		SystemID:   system.ID,
		AssessorID: req.AssessorID,
		Kind:       req.Kind,
		Dimensions: scores,
		Breakdown:  agg.Breakdown,
		Aggregate:  agg.Score,
		Status:     det.Status,
		Degraded:   agg.Degraded,
		Findings:   det.Findings,
		CreatedAt:  now,
	}

	result := &domain.AssessmentResult{
		Record:         &record,
		AggregateScore: agg.Score,
		Status:         det.Status,
		Findings:       det.Findings,
		Degraded:       agg.Degraded,
		AuditPersisted: true,
		Warnings:       append(scoreWarnings, det.Warnings...),
	}

	if err := o.assessments.InsertAssessment(ctx, record); err != nil {
		// Решение уже принято — его нельзя потерять молча. Запись уйдет
		// в аудит-цепочку ниже, а вызывающий увидит warning.
		o.logger.Error("assessment record not persisted",
			zap.String("system_id", system.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "assessment record persistence failed: "+err.Error())
		if o.metrics != nil {
			o.metrics.ErrorTotal.WithLabelValues(string(domain.ErrKindPersistence)).Inc()
		}
	}

	// 6. Фиксация решения в цепочке аудита (optimistic append с ретраями).
	// Исчерпание ретраев — типизированная ошибка рядом с результатом:
	// вызывающему не нужно разбирать warnings, чтобы отличить отказ
	// аудита от успеха.
	var persistErr error
	if !o.appendDecision(record, agg, det) {
		result.AuditPersisted = false
		result.Warnings = append(result.Warnings, "audit chain append failed, decision returned without audit trail")
		persistErr = domain.NewError(domain.ErrKindPersistence, system.ID,
			fmt.Errorf("engine: audit chain append failed for assessment %s", record.ID))
	}

	// 7. Seq-guarded обновление системы с bounded retry: проигравший
	// гонку перечитывает систему и повторяет, пока его запись самая
	// свежая. Текущий статус всегда сходится к последней записи.
	result.Warnings = append(result.Warnings, o.updateSystemState(ctx, system, record)...)

	if o.metrics != nil {
		o.metrics.AssessmentDuration.WithLabelValues(string(req.Kind), string(det.Status)).
			Observe(time.Since(start).Seconds())
		o.metrics.ChainLength.WithLabelValues(system.ID).
			Set(float64(len(o.ledger.Export(system.ID, time.Time{}, time.Time{}))))
	}

	o.logger.Info("assessment completed",
		zap.String("system_id", system.ID),
		zap.String("assessment_id", record.ID),
		zap.String("kind", string(req.Kind)),
		zap.Float64("aggregate", agg.Score),
		zap.String("status", string(det.Status)),
		zap.Bool("degraded", agg.Degraded),
		zap.Bool("audit_persisted", result.AuditPersisted))

	return result, persistErr
}

// updateSystemState доводит current_score/current_status системы до
// записи rec. Проигрыш оптимистической гонки не молчит: система
// перечитывается, и если rec все еще самая поздняя запись, UPDATE
// повторяется с новым seq. Возвращает warnings для результата.
func (o *Orchestrator) updateSystemState(ctx context.Context, system *domain.AISystem, rec domain.AssessmentRecord) []string {
	expectedSeq := system.AssessmentSeq
	for attempt := 0; attempt < o.appendAttempts; attempt++ {
		err := o.systems.UpdateAssessmentState(ctx, system.ID, expectedSeq,
			rec.Aggregate, rec.Status, rec.ID, rec.CreatedAt)
		if err == nil {
			return nil
		}
		if !domain.IsKind(err, domain.ErrKindConcurrentAppend) {
			o.logger.Error("system state update failed",
				zap.String("system_id", system.ID), zap.Error(err))
			return []string{"system state update failed: " + err.Error()}
		}

		fresh, ferr := o.systems.GetSystem(ctx, system.ID)
		if ferr != nil {
			o.logger.Error("system re-read after lost update race failed",
				zap.String("system_id", system.ID), zap.Error(ferr))
			return []string{"system state update failed: " + ferr.Error()}
		}
		if !rec.CreatedAt.After(fresh.LastAssessmentAt) {
			// Зафиксирована более поздняя оценка — наш статус уже не текущий
			o.logger.Info("system state reflects a newer concurrent assessment",
				zap.String("system_id", system.ID),
				zap.String("assessment_id", rec.ID))
			return []string{"system state reflects a more recent concurrent assessment"}
		}
		expectedSeq = fresh.AssessmentSeq
	}

	o.logger.Error("system state update retries exhausted",
		zap.String("system_id", system.ID), zap.Int("attempts", o.appendAttempts))
	return []string{"system state update retries exhausted"}
}

// resolveBindings: явные байндинги из БД, иначе дефолты по regulatory_scope.
func (o *Orchestrator) resolveBindings(ctx context.Context, system *domain.AISystem) ([]domain.PolicyBinding, error) {
	var out []domain.PolicyBinding
	if o.bindings != nil {
		stored, err := o.bindings.BindingsForSystem(ctx, system.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: load bindings: %w", err)
		}
		out = stored
	}
	if len(out) > 0 {
		return out, nil
	}

	for _, fw := range system.RegulatoryScope {
		b, ok := domain.DefaultBinding(system.ID, fw)
		if !ok {
			o.logger.Warn("unknown framework in regulatory scope",
				zap.String("system_id", system.ID), zap.String("framework", fw))
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// collectScores параллельно опрашивает скореры по измерениям профиля,
// пропуская те, что уже пришли в запросе.
func (o *Orchestrator) collectScores(ctx context.Context, req AssessmentRequest, profile scoring.WeightProfile) (map[string]domain.DimensionScore, []string) {
	scores := make(map[string]domain.DimensionScore, len(profile.Weights))
	var warnings []string

	for dim, s := range req.Scores {
		scores[dim] = s
	}

	if o.registry == nil {
		return scores, warnings
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for dim, w := range profile.Weights {
		if w == 0 {
			continue
		}
		if _, done := scores[dim]; done {
			continue
		}
		scorer, err := o.registry.Lookup(dim)
		if err != nil {
			continue // измерение без скорера = отсутствующее
		}

		wg.Add(1)
		go func(dim string, scorer connectors.Scorer) {
			defer wg.Done()
			s, err := scorer.Score(ctx, connectors.ScoreRequest{
				SystemID:  req.SystemID,
				Dimension: dim,
				Kind:      req.Kind,
				Evidence:  req.Evidence,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Warn("scorer call failed, dimension treated as missing",
					zap.String("system_id", req.SystemID),
					zap.String("dimension", dim),
					zap.Error(err))
				warnings = append(warnings, fmt.Sprintf("dimension %s not scored: %v", dim, err))
				if o.metrics != nil {
					o.metrics.ErrorTotal.WithLabelValues("scorer_failure").Inc()
				}
				return
			}
			scores[dim] = s
		}(dim, scorer)
	}
	wg.Wait()

	return scores, warnings
}

// appendDecision пишет в цепочку пару событий (completed + determined).
// false — ретраи исчерпаны или цепочка заморожена.
func (o *Orchestrator) appendDecision(rec domain.AssessmentRecord, agg scoring.AggregateResult, det scoring.Determination) bool {
	completed := audit.Event{
		SystemID: rec.SystemID,
		Kind:     audit.EventAssessmentCompleted,
		Actor:    rec.AssessorID,
		Payload: map[string]interface{}{
			"assessment_id": rec.ID,
			"kind":          string(rec.Kind),
			"aggregate":     agg.Score,
			"degraded":      agg.Degraded,
			"missing":       agg.Missing,
		},
		Timestamp: rec.CreatedAt,
	}

	findings := make([]interface{}, 0, len(det.Findings))
	for _, f := range det.Findings {
		entry := map[string]interface{}{
			"binding_id":   f.BindingID,
			"framework_id": f.FrameworkID,
			"status":       string(f.Status),
		}
		if len(f.Gaps) > 0 {
			entry["gaps"] = f.Gaps
		}
		if f.RemediationDeadline != nil {
			entry["remediation_deadline"] = f.RemediationDeadline.UTC().Format(time.RFC3339)
		}
		findings = append(findings, entry)
	}
	determined := audit.Event{
		SystemID: rec.SystemID,
		Kind:     audit.EventComplianceDetermined,
		Actor:    rec.AssessorID,
		Payload: map[string]interface{}{
			"assessment_id":        rec.ID,
			"status":               string(det.Status),
			"remediation_required": det.RemediationRequired,
			"findings":             findings,
		},
		Timestamp: rec.CreatedAt,
	}

	return o.appendWithRetry(completed) && o.appendWithRetry(determined)
}

func (o *Orchestrator) appendWithRetry(ev audit.Event) bool {
	for attempt := 0; attempt < o.appendAttempts; attempt++ {
		tail, _ := o.ledger.Tail(ev.SystemID)
		if _, err := o.ledger.Append(ev, tail); err != nil {
			if domain.IsKind(err, domain.ErrKindConcurrentAppend) {
				continue // хвост ушел — перечитываем и повторяем
			}
			o.logger.Error("audit append rejected",
				zap.String("system_id", ev.SystemID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
			if o.metrics != nil {
				o.metrics.ErrorTotal.WithLabelValues(string(domain.KindOf(err))).Inc()
			}
			return false
		}
		return true
	}

	o.logger.Error("audit append retries exhausted",
		zap.String("system_id", ev.SystemID), zap.Int("attempts", o.appendAttempts))
	if o.metrics != nil {
		o.metrics.ErrorTotal.WithLabelValues(string(domain.ErrKindPersistence)).Inc()
	}
	return false
}

// reject фиксирует отказ оценки: метрика по типу + best-effort событие
// assessment_failed в цепочке (сам отказ — тоже решение).
func (o *Orchestrator) reject(_ context.Context, req AssessmentRequest, err error) error {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	if o.metrics != nil {
		o.metrics.ErrorTotal.WithLabelValues(string(kind)).Inc()
	}

	if req.SystemID != "" && kind != domain.ErrKindNotFound {
		o.appendWithRetry(audit.Event{
			SystemID: req.SystemID,
			Kind:     audit.EventAssessmentFailed,
			Actor:    req.AssessorID,
			Payload: map[string]interface{}{
				"error_kind": string(kind),
				"error":      err.Error(),
			},
		})
	}

	o.logger.Warn("assessment rejected",
		zap.String("system_id", req.SystemID),
		zap.String("error_kind", string(kind)),
		zap.Error(err))
	return err
}
