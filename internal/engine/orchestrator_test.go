package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/connectors"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/scoring"
)

type memSystems struct {
	mu      sync.Mutex
	systems map[string]*domain.AISystem
}

func (m *memSystems) GetSystem(_ context.Context, id string) (*domain.AISystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.systems[id]
	if !ok {
		return nil, domain.NewError(domain.ErrKindNotFound, id, fmt.Errorf("system not found"))
	}
	cp := *s
	return &cp, nil
}

func (m *memSystems) UpdateAssessmentState(_ context.Context, systemID string, expectedSeq int64, score float64, status domain.ComplianceStatus, assessmentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.systems[systemID]
	if s.AssessmentSeq != expectedSeq {
		return domain.NewError(domain.ErrKindConcurrentAppend, systemID,
			fmt.Errorf("seq advanced: expected %d, have %d", expectedSeq, s.AssessmentSeq))
	}
	s.AssessmentSeq++
	s.CurrentScore = score
	s.CurrentStatus = status
	s.LastAssessmentID = assessmentID
	s.LastAssessmentAt = at
	return nil
}

type memAssessments struct {
	mu      sync.Mutex
	records []domain.AssessmentRecord
	failing bool
}

func (m *memAssessments) InsertAssessment(_ context.Context, rec domain.AssessmentRecord) error {
	if m.failing {
		return fmt.Errorf("db down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

type memBindings struct {
	bindings map[string][]domain.PolicyBinding
}

func (m *memBindings) BindingsForSystem(_ context.Context, systemID string) ([]domain.PolicyBinding, error) {
	return m.bindings[systemID], nil
}

// fixedScorer — детерминированный скорер для тестов.
type fixedScorer struct {
	value float64
	err   error
}

func (s *fixedScorer) Score(_ context.Context, req connectors.ScoreRequest) (domain.DimensionScore, error) {
	if s.err != nil {
		return domain.DimensionScore{}, s.err
	}
	return domain.DimensionScore{
		Dimension:  req.Dimension,
		Value:      s.value,
		Confidence: 8,
		Source:     "fixed",
	}, nil
}

type fixture struct {
	orch        *Orchestrator
	systems     *memSystems
	assessments *memAssessments
	ledger      *audit.Ledger
}

func newFixture(t *testing.T, registry *connectors.Registry, bindings map[string][]domain.PolicyBinding) *fixture {
	t.Helper()
	systems := &memSystems{systems: map[string]*domain.AISystem{
		"sys-1": {
			ID:              "sys-1",
			Name:            "credit scorer",
			SystemClass:     "credit_scoring",
			RegulatoryScope: []string{"EU_AI_Act"},
			CurrentStatus:   domain.StatusUnknown,
		},
	}}
	assessments := &memAssessments{}
	ledger := audit.NewLedger(nil, zap.NewNop())

	orch := NewOrchestrator(systems, assessments, &memBindings{bindings: bindings},
		registry, ledger, scoring.DefaultWeightProfiles(), scoring.DefaultStatusPolicy(),
		NewMetrics(nil), 64, zap.NewNop()) // запас ретраев для конкурентных сценариев
	return &fixture{orch: orch, systems: systems, assessments: assessments, ledger: ledger}
}

func directScores(values map[string]float64) map[string]domain.DimensionScore {
	out := make(map[string]domain.DimensionScore, len(values))
	for dim, v := range values {
		out[dim] = domain.DimensionScore{Dimension: dim, Value: v, Confidence: 9, Source: "manual"}
	}
	return out
}

func TestSubmitAssessmentHappyPath(t *testing.T) {
	fx := newFixture(t, nil, nil)

	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 9, domain.DimPrivacy: 9, domain.DimSecurity: 9,
			domain.DimExplainability: 8, domain.DimRegulatory: 9,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompliant, res.Status)
	assert.True(t, res.AuditPersisted)
	assert.False(t, res.Degraded)
	assert.InDelta(t, 8.8, res.AggregateScore, 1e-9)

	// Запись оценки сохранена и иммутабельна
	require.Len(t, fx.assessments.records, 1)
	assert.Equal(t, res.Record.ID, fx.assessments.records[0].ID)

	// Цепочка: completed + determined, целостность подтверждается
	events := fx.ledger.Export("sys-1", time.Time{}, time.Time{})
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventAssessmentCompleted, events[0].Kind)
	assert.Equal(t, audit.EventComplianceDetermined, events[1].Kind)
	assert.True(t, fx.ledger.Verify("sys-1").Valid)

	// Система обновлена seq-guarded записью
	sys, _ := fx.systems.GetSystem(context.Background(), "sys-1")
	assert.Equal(t, int64(1), sys.AssessmentSeq)
	assert.Equal(t, domain.StatusCompliant, sys.CurrentStatus)
	assert.Equal(t, res.Record.ID, sys.LastAssessmentID)
}

func TestSubmitAssessmentCriticalFloorForcesNonCompliant(t *testing.T) {
	// EU_AI_Act из regulatory_scope: пол bias=4.0
	fx := newFixture(t, nil, nil)

	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 3, domain.DimPrivacy: 9, domain.DimSecurity: 9,
			domain.DimExplainability: 9, domain.DimRegulatory: 9,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNonCompliant, res.Status)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "EU_AI_Act", f.FrameworkID)
	assert.True(t, f.RemediationRequired)
	require.NotNil(t, f.RemediationDeadline)
}

func TestSubmitAssessmentScorerFailureDegrades(t *testing.T) {
	registry := connectors.NewRegistry()
	registry.Register(domain.DimBias, &fixedScorer{value: 7})
	registry.Register(domain.DimPrivacy, &fixedScorer{value: 7})
	registry.Register(domain.DimSecurity, &fixedScorer{err: fmt.Errorf("scorer down")})
	registry.Register(domain.DimExplainability, &fixedScorer{value: 7})
	registry.Register(domain.DimRegulatory, &fixedScorer{value: 7})

	fx := newFixture(t, registry, nil)
	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "auto",
		Kind:       domain.KindPeriodic,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.InDelta(t, 7.0, res.AggregateScore, 1e-9) // вес security перераспределен
	assert.NotEmpty(t, res.Warnings)
	assert.Len(t, res.Record.Dimensions, 4)
}

func TestSubmitAssessmentValidation(t *testing.T) {
	fx := newFixture(t, nil, nil)

	_, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID: "", Kind: domain.KindPeriodic,
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))

	_, err = fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID: "sys-1", Kind: "weekly",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))

	_, err = fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID: "ghost", Kind: domain.KindPeriodic,
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindNotFound))
}

func TestSubmitAssessmentFrozenChainDoesNotLoseDecision(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.ledger.Freeze("sys-1")

	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 9, domain.DimPrivacy: 9, domain.DimSecurity: 9,
			domain.DimExplainability: 9, domain.DimRegulatory: 9,
		}),
	})
	// Отказ аудита типизирован и приходит ВМЕСТЕ с результатом:
	// решение не теряется, но отличимо от успеха без разбора warnings
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindPersistence))
	require.NotNil(t, res)
	assert.False(t, res.AuditPersisted)
	assert.NotEmpty(t, res.Warnings)
	// Запись оценки при этом сохранена
	assert.Len(t, fx.assessments.records, 1)
}

func TestSubmitAssessmentConcurrentWritersKeepChainValid(t *testing.T) {
	fx := newFixture(t, nil, nil)
	const writers = 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
				SystemID:   "sys-1",
				AssessorID: "assessor-1",
				Kind:       domain.KindPeriodic,
				Scores: directScores(map[string]float64{
					domain.DimBias: 8, domain.DimPrivacy: 8, domain.DimSecurity: 8,
					domain.DimExplainability: 8, domain.DimRegulatory: 8,
				}),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Все решения в цепочке, линейность не нарушена
	events := fx.ledger.Export("sys-1", time.Time{}, time.Time{})
	assert.Len(t, events, writers*2)
	assert.True(t, fx.ledger.Verify("sys-1").Valid)
	assert.Len(t, fx.assessments.records, writers)

	// Seq вырос, но не больше числа успешных оценок
	sys, _ := fx.systems.GetSystem(context.Background(), "sys-1")
	assert.GreaterOrEqual(t, sys.AssessmentSeq, int64(1))
	assert.LessOrEqual(t, sys.AssessmentSeq, int64(writers))

	// Текущий статус сходится к самой поздней записи: lost update
	// не оставляет систему на устаревшей оценке
	var latest time.Time
	for _, rec := range fx.assessments.records {
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}
	}
	assert.Equal(t, latest, sys.LastAssessmentAt)
	assert.Equal(t, domain.StatusCompliant, sys.CurrentStatus)
}

// racingSystems вклинивает конкурента перед первым UPDATE: между
// чтением системы и записью результата успевает зафиксироваться
// другая оценка со сдвигом recDelta относительно нашей.
type racingSystems struct {
	*memSystems
	recDelta time.Duration
	once     sync.Once
}

func (r *racingSystems) UpdateAssessmentState(ctx context.Context, systemID string, expectedSeq int64, score float64, status domain.ComplianceStatus, assessmentID string, at time.Time) error {
	r.once.Do(func() {
		_ = r.memSystems.UpdateAssessmentState(ctx, systemID, expectedSeq,
			2.0, domain.StatusNonCompliant, "rival-assessment", at.Add(r.recDelta))
	})
	return r.memSystems.UpdateAssessmentState(ctx, systemID, expectedSeq, score, status, assessmentID, at)
}

func newRacingFixture(t *testing.T, recDelta time.Duration) (*Orchestrator, *memSystems) {
	t.Helper()
	mem := &memSystems{systems: map[string]*domain.AISystem{
		"sys-1": {
			ID:              "sys-1",
			Name:            "credit scorer",
			SystemClass:     "credit_scoring",
			RegulatoryScope: []string{"EU_AI_Act"},
			CurrentStatus:   domain.StatusUnknown,
		},
	}}
	orch := NewOrchestrator(&racingSystems{memSystems: mem, recDelta: recDelta},
		&memAssessments{}, &memBindings{}, nil, audit.NewLedger(nil, zap.NewNop()),
		scoring.DefaultWeightProfiles(), scoring.DefaultStatusPolicy(),
		NewMetrics(nil), 8, zap.NewNop())
	return orch, mem
}

func TestSubmitAssessmentLostRaceRetriesWhenStillFreshest(t *testing.T) {
	// Конкурент успел раньше, но с БОЛЕЕ СТАРОЙ записью: проигравший
	// перечитывает seq и доводит статус до своей, самой поздней записи
	orch, mem := newRacingFixture(t, -time.Minute)

	res, err := orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 9, domain.DimPrivacy: 9, domain.DimSecurity: 9,
			domain.DimExplainability: 9, domain.DimRegulatory: 9,
		}),
	})
	require.NoError(t, err)

	sys, _ := mem.GetSystem(context.Background(), "sys-1")
	assert.Equal(t, res.Record.ID, sys.LastAssessmentID)
	assert.Equal(t, res.Status, sys.CurrentStatus)
	assert.Equal(t, int64(2), sys.AssessmentSeq) // конкурент + наш retry
}

func TestSubmitAssessmentLostRaceSkipsWhenSuperseded(t *testing.T) {
	// Конкурент зафиксировал БОЛЕЕ ПОЗДНЮЮ запись: наш статус устарел,
	// retry не затирает более свежее состояние
	orch, mem := newRacingFixture(t, time.Minute)

	res, err := orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 9, domain.DimPrivacy: 9, domain.DimSecurity: 9,
			domain.DimExplainability: 9, domain.DimRegulatory: 9,
		}),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)

	sys, _ := mem.GetSystem(context.Background(), "sys-1")
	assert.Equal(t, "rival-assessment", sys.LastAssessmentID)
	assert.Equal(t, domain.StatusNonCompliant, sys.CurrentStatus)
	assert.Equal(t, int64(1), sys.AssessmentSeq)
}

func TestSubmitAssessmentRecordInsertFailureIsWarning(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.assessments.failing = true

	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 8, domain.DimPrivacy: 8, domain.DimSecurity: 8,
			domain.DimExplainability: 8, domain.DimRegulatory: 8,
		}),
	})
	require.NoError(t, err)
	assert.True(t, res.AuditPersisted) // цепочка живет отдельно от БД
	assert.NotEmpty(t, res.Warnings)
}

func TestSubmitAssessmentExplicitBindingsOverrideScope(t *testing.T) {
	bindings := map[string][]domain.PolicyBinding{
		"sys-1": {{
			ID:          "b-1",
			SystemID:    "sys-1",
			FrameworkID: "ISO_42001",
			Enforcement: domain.EnforceMandatory,
		}},
	}
	fx := newFixture(t, nil, bindings)

	res, err := fx.orch.SubmitAssessment(context.Background(), AssessmentRequest{
		SystemID:   "sys-1",
		AssessorID: "assessor-1",
		Kind:       domain.KindPeriodic,
		Scores: directScores(map[string]float64{
			domain.DimBias: 6, domain.DimPrivacy: 6, domain.DimSecurity: 6,
			domain.DimExplainability: 6, domain.DimRegulatory: 6,
		}),
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "ISO_42001", res.Findings[0].FrameworkID)
	assert.Equal(t, domain.StatusPartial, res.Status)
	// mandatory: дедлайн 60 дней
	require.NotNil(t, res.Findings[0].RemediationDeadline)
}
