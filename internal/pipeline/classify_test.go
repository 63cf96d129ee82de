package pipeline

import (
	"testing"

	"github.com/quantrel/lixifeed/internal/market"
)

func TestClassify(t *testing.T) {
	classifier := NewClassifier(testPipelineConfig())

	tests := []struct {
		name         string
		meanMid      float64
		referenceMid float64
		want         market.Label
	}{
		{"clear drift up", 100.01, 100, market.LabelUpwards},
		{"clear drift down", 99.99, 100, market.LabelDownwards},
		{"identical", 100, 100, market.LabelStationary},
		{"inside band above", 100.0005, 100, market.LabelStationary},
		{"inside band below", 99.9995, 100, market.LabelStationary},
		{"just above band", 100.0011, 100, market.LabelUpwards},
		{"just below band", 99.9989, 100, market.LabelDownwards},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, label := classifier.Classify(tt.meanMid, tt.referenceMid)

			if label != tt.want {
				t.Errorf("Classify(%v, %v) label = %v, want %v",
					tt.meanMid, tt.referenceMid, label, tt.want)
			}

			wantRatio := tt.meanMid / tt.referenceMid
			if ratio != wantRatio {
				t.Errorf("ratio = %v, want %v", ratio, wantRatio)
			}
		})
	}
}

func TestClassifyBandBoundary(t *testing.T) {
	classifier := NewClassifier(testPipelineConfig())

	// Exactly on the band edge is stationary: the comparison is strict
	_, label := classifier.Classify(1+1e-5, 1)
	if label != market.LabelStationary {
		t.Errorf("ratio exactly 1+alpha should be STATIONARY, got %v", label)
	}
}
