package pipeline

import (
	"math"
	"testing"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		WindowSize:  4,
		Alpha:       1e-5,
		ADVFactor:   DefaultADVFactor,
		WIntensity:  DefaultWIntensity,
		WADV:        DefaultWADV,
		LixiCeiling: DefaultCeiling,
		HistorySize: 16,
	}
}

func TestScoreFormula(t *testing.T) {
	scorer := NewScorer(testPipelineConfig())

	f := market.FeatureVector{Spread: 0.5, Intensity: 1000}

	want := -math.Log10(0.5) + 0.5*math.Log10(1000) + 0.5*math.Log10(5e7)
	got := scorer.Score(f)

	if !almostEqual(got, want) {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestScoreFloorsSpreadAndIntensity(t *testing.T) {
	scorer := NewScorer(testPipelineConfig())

	// spread below 0.01 uses the 0.01 floor; intensity 0 uses 1
	f := market.FeatureVector{Spread: 0.001, Intensity: 0}

	want := -math.Log10(0.01) + 0.5*math.Log10(1) + 0.5*math.Log10(5e7)
	got := scorer.Score(f)

	if !almostEqual(got, want) {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestScoreClampedToCeiling(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.LixiCeiling = 5
	scorer := NewScorer(cfg)

	f := market.FeatureVector{Spread: 0.01, Intensity: 1_000_000_000}

	got := scorer.Score(f)
	if got != 5 {
		t.Errorf("Score = %v, want exactly the ceiling 5", got)
	}

	// Clamping is idempotent: scoring again reports the same ceiling
	if again := scorer.Score(f); again != got {
		t.Errorf("Second Score = %v, want %v", again, got)
	}
}

func TestScoreHasNoFloor(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ADVFactor = 1 // log10(1) = 0, removes the ADV contribution
	scorer := NewScorer(cfg)

	// Very wide spread, no volume: the score must go negative
	f := market.FeatureVector{Spread: 25, Intensity: 0}

	if got := scorer.Score(f); got >= 0 {
		t.Errorf("Score = %v, want negative for wide spread and no intensity", got)
	}
}

func TestScoreWeightVariants(t *testing.T) {
	tests := []struct {
		name       string
		wIntensity float64
		wADV       float64
	}{
		{"0.4/0.5", 0.4, 0.5},
		{"0.5/0.5", 0.5, 0.5},
		{"0.65/0.4", 0.65, 0.4},
	}

	f := market.FeatureVector{Spread: 0.2, Intensity: 5000}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testPipelineConfig()
			cfg.WIntensity = tt.wIntensity
			cfg.WADV = tt.wADV

			want := -math.Log10(0.2) +
				tt.wIntensity*math.Log10(5000) +
				tt.wADV*math.Log10(5e7)

			if got := NewScorer(cfg).Score(f); !almostEqual(got, want) {
				t.Errorf("Score = %v, want %v", got, want)
			}
		})
	}
}
