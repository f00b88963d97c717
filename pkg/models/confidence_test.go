package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeConfidence_SinglePass(t *testing.T) {
	got := ComputeConfidence([]RelationshipEvidence{
		{RawConfidence: 0.9, Pass: PassIntraFile},
	}, 0)
	assert.InDelta(t, 0.9, got, 1e-9)
}

func TestComputeConfidence_ThreeAgreeingPasses(t *testing.T) {
	// spec.md §8 scenario 2: 0.6 + (1-0.6)*0.2 + (1-0.68)*0.2 = 0.744
	evidence := []RelationshipEvidence{
		{RawConfidence: 0.6, Pass: PassIntraFile},
		{RawConfidence: 0.6, Pass: PassIntraFile},
		{RawConfidence: 0.6, Pass: PassIntraFile},
	}
	got := ComputeConfidence(evidence, 0)
	assert.InDelta(t, 0.744, got, 1e-9)
}

func TestComputeConfidence_DisagreementPenalty(t *testing.T) {
	evidence := []RelationshipEvidence{{RawConfidence: 0.8, Pass: PassIntraFile}}
	got := ComputeConfidence(evidence, 1)
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestComputeConfidence_DeterministicForcesOne(t *testing.T) {
	evidence := []RelationshipEvidence{
		{RawConfidence: 0.1, Pass: PassIntraFile},
		{RawConfidence: 0.0, Pass: PassDeterministic},
	}
	got := ComputeConfidence(evidence, 5)
	assert.Equal(t, 1.0, got)
}

func TestComputeConfidence_ClampsToUnitInterval(t *testing.T) {
	evidence := []RelationshipEvidence{{RawConfidence: 1.0, Pass: PassIntraFile}}
	got := ComputeConfidence(evidence, 0)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestComputeConfidence_Empty(t *testing.T) {
	assert.Equal(t, 0.0, ComputeConfidence(nil, 0))
}
