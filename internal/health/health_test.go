package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveIsAlwaysTrueWhenDisabled(t *testing.T) {
	tr := NewTracker(false, 1, 20)
	for i := 0; i < 5; i++ {
		tr.RecordOutcome("cache", "", Hurt)
	}
	assert.True(t, tr.Active("cache", ""))
}

func TestThresholdHurtsTripCooldownAndBypassFeature(t *testing.T) {
	tr := NewTracker(true, 3, 2)
	tr.RecordOutcome("cache", "", Hurt)
	tr.RecordOutcome("cache", "", Hurt)
	assert.True(t, tr.Active("cache", ""), "streak below threshold stays active")

	tr.RecordOutcome("cache", "", Hurt) // trips at threshold 3
	assert.False(t, tr.Active("cache", ""))
	assert.False(t, tr.Active("cache", ""))
	assert.True(t, tr.Active("cache", ""), "cooldown of 2 requests should have elapsed")
}

func TestSuccessResetsRegressionStreak(t *testing.T) {
	tr := NewTracker(true, 3, 20)
	tr.RecordOutcome("cache", "", Hurt)
	tr.RecordOutcome("cache", "", Hurt)
	tr.RecordOutcome("cache", "", Success)
	tr.RecordOutcome("cache", "", Hurt)
	tr.RecordOutcome("cache", "", Hurt)
	assert.True(t, tr.Active("cache", ""), "streak reset by success should not trip at only 2 more hurts")
}

func TestNeutralDecrementsStreakWithFloorZero(t *testing.T) {
	tr := NewTracker(true, 2, 20)
	tr.RecordOutcome("cache", "", Neutral)
	tr.RecordOutcome("cache", "", Neutral)
	tr.RecordOutcome("cache", "", Hurt)
	assert.True(t, tr.Active("cache", ""))
}

func TestScopesAreIndependentPerToolAndGlobal(t *testing.T) {
	tr := NewTracker(true, 1, 5)
	tr.RecordOutcome("cache", "tool_a", Hurt)
	assert.False(t, tr.Active("cache", "tool_a"))
	assert.True(t, tr.Active("cache", "tool_b"))
	assert.True(t, tr.Active("cache", ""))
}
