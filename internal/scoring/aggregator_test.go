package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

func equalProfile() WeightProfile {
	return WeightProfile{
		Kind: domain.KindPeriodic,
		Weights: map[string]float64{
			domain.DimBias:           0.2,
			domain.DimPrivacy:        0.2,
			domain.DimSecurity:       0.2,
			domain.DimExplainability: 0.2,
			domain.DimRegulatory:     0.2,
		},
	}
}

func scoreSet(vals map[string]float64) map[string]domain.DimensionScore {
	out := make(map[string]domain.DimensionScore, len(vals))
	for dim, v := range vals {
		out[dim] = domain.DimensionScore{Dimension: dim, Value: v, Confidence: 7}
	}
	return out
}

func TestAggregateEqualWeights(t *testing.T) {
	// Сценарий A из требований: равные веса 0.2 -> агрегат ровно 7.0
	scores := scoreSet(map[string]float64{
		domain.DimBias:           6.5,
		domain.DimPrivacy:        7.0,
		domain.DimSecurity:       7.5,
		domain.DimExplainability: 6.0,
		domain.DimRegulatory:     8.0,
	})

	res, err := Aggregate(scores, equalProfile())
	require.NoError(t, err)
	assert.InDelta(t, 7.0, res.Score, 1e-9)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Missing)
}

func TestAggregateRejectsBadWeightSum(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
	}{
		{"sum below one", map[string]float64{domain.DimBias: 0.5, domain.DimPrivacy: 0.4}},
		{"sum above one", map[string]float64{domain.DimBias: 0.7, domain.DimPrivacy: 0.7}},
		{"negative weight", map[string]float64{domain.DimBias: 1.5, domain.DimPrivacy: -0.5}},
		{"empty profile", map[string]float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(
				scoreSet(map[string]float64{domain.DimBias: 5, domain.DimPrivacy: 5}),
				WeightProfile{Kind: domain.KindPeriodic, Weights: tt.weights},
			)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrKindInvalidScore))
		})
	}
}

func TestAggregateToleratesTinySumDrift(t *testing.T) {
	w := map[string]float64{domain.DimBias: 0.5, domain.DimPrivacy: 0.5 + 5e-7}
	_, err := Aggregate(scoreSet(map[string]float64{domain.DimBias: 5, domain.DimPrivacy: 5}),
		WeightProfile{Kind: domain.KindPeriodic, Weights: w})
	assert.NoError(t, err)
}

func TestAggregateRejectsOutOfRangeScores(t *testing.T) {
	scores := scoreSet(map[string]float64{domain.DimBias: 11})
	_, err := Aggregate(scores, WeightProfile{Kind: domain.KindPeriodic, Weights: map[string]float64{domain.DimBias: 1}})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInvalidScore))

	bad := map[string]domain.DimensionScore{
		domain.DimBias: {Dimension: domain.DimBias, Value: 5, Confidence: -1},
	}
	_, err = Aggregate(bad, WeightProfile{Kind: domain.KindPeriodic, Weights: map[string]float64{domain.DimBias: 1}})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInvalidScore))
}

func TestAggregateOutputStaysInRange(t *testing.T) {
	for _, vals := range []map[string]float64{
		{domain.DimBias: 0, domain.DimPrivacy: 0, domain.DimSecurity: 0, domain.DimExplainability: 0, domain.DimRegulatory: 0},
		{domain.DimBias: 10, domain.DimPrivacy: 10, domain.DimSecurity: 10, domain.DimExplainability: 10, domain.DimRegulatory: 10},
		{domain.DimBias: 0.1, domain.DimPrivacy: 9.9, domain.DimSecurity: 5.5, domain.DimExplainability: 3.3, domain.DimRegulatory: 7.7},
	} {
		res, err := Aggregate(scoreSet(vals), equalProfile())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Score, domain.ScoreMin)
		assert.LessOrEqual(t, res.Score, domain.ScoreMax)
	}
}

func TestAggregateMissingDimensionRedistributed(t *testing.T) {
	// security отсутствует: его 0.2 распределяется пропорционально
	// на оставшиеся четыре измерения (каждое получает 0.25)
	scores := scoreSet(map[string]float64{
		domain.DimBias:           6.0,
		domain.DimPrivacy:        6.0,
		domain.DimExplainability: 6.0,
		domain.DimRegulatory:     6.0,
	})

	res, err := Aggregate(scores, equalProfile())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{domain.DimSecurity}, res.Missing)
	assert.InDelta(t, 6.0, res.Score, 1e-9)

	sum := 0.0
	for dim, w := range res.Breakdown {
		assert.InDelta(t, 0.25, w, 1e-9, "dimension %s", dim)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAggregateAllMissing(t *testing.T) {
	_, err := Aggregate(map[string]domain.DimensionScore{}, equalProfile())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInsufficientData))
}

func TestAggregateMonotonicity(t *testing.T) {
	// Рост любого одного скора при фиксированных остальных
	// никогда не уменьшает агрегат
	base := map[string]float64{
		domain.DimBias:           4.0,
		domain.DimPrivacy:        5.0,
		domain.DimSecurity:       6.0,
		domain.DimExplainability: 7.0,
		domain.DimRegulatory:     8.0,
	}
	baseRes, err := Aggregate(scoreSet(base), equalProfile())
	require.NoError(t, err)

	for dim := range base {
		for _, delta := range []float64{0.5, 1, 2} {
			bumped := make(map[string]float64, len(base))
			for k, v := range base {
				bumped[k] = v
			}
			if bumped[dim]+delta > domain.ScoreMax {
				continue
			}
			bumped[dim] += delta

			res, err := Aggregate(scoreSet(bumped), equalProfile())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Score, baseRes.Score,
				"bumping %s by %v must not decrease aggregate", dim, delta)
		}
	}
}

func TestDefaultWeightProfilesAreValid(t *testing.T) {
	for kind, p := range DefaultWeightProfiles() {
		assert.NoError(t, ValidateProfile(p), "kind %s", kind)
	}
}
