package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

func TestTriageIncidentAlwaysTriggers(t *testing.T) {
	a := NewAnalyzer(zap.NewNop())
	kind, required := a.Triage(&domain.AISystem{ID: "sys-1"}, ChangeEvent{Kind: "incident"})
	assert.True(t, required)
	assert.Equal(t, domain.KindIncident, kind)
}

func TestTriageProductionDeployment(t *testing.T) {
	a := NewAnalyzer(zap.NewNop())

	prod := &domain.AISystem{ID: "sys-1", DeploymentStatus: "production"}
	kind, required := a.Triage(prod, ChangeEvent{Kind: "deployment"})
	assert.True(t, required)
	assert.Equal(t, domain.KindChangeTriggered, kind)

	staging := &domain.AISystem{ID: "sys-2", DeploymentStatus: "staging"}
	_, required = a.Triage(staging, ChangeEvent{Kind: "deployment"})
	assert.False(t, required)
}

func TestTriageDynamicRiskField(t *testing.T) {
	a := NewAnalyzer(zap.NewNop())
	system := &domain.AISystem{
		ID: "sys-1",
		Metadata: map[string]interface{}{
			"risk_field":     "affected_users",
			"risk_threshold": 10000.0,
		},
	}

	over := ChangeEvent{Kind: "data_change", Payload: json.RawMessage(`{"affected_users": 50000}`)}
	kind, required := a.Triage(system, over)
	assert.True(t, required)
	assert.Equal(t, domain.KindChangeTriggered, kind)

	under := ChangeEvent{Kind: "data_change", Payload: json.RawMessage(`{"affected_users": 100}`)}
	_, required = a.Triage(system, under)
	assert.False(t, required)

	// Битый payload не триггерит и не роняет
	broken := ChangeEvent{Kind: "data_change", Payload: json.RawMessage(`{{{`)}
	_, required = a.Triage(system, broken)
	assert.False(t, required)
}

func TestTriageNoRulesNoTrigger(t *testing.T) {
	a := NewAnalyzer(zap.NewNop())
	_, required := a.Triage(&domain.AISystem{ID: "sys-1"}, ChangeEvent{Kind: "config_change"})
	assert.False(t, required)
}
