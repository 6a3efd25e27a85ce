package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

func newTestApplier(hardClamp bool) *StateApplier {
	return NewStateApplier(models.RelationshipConfig{SoftMin: -100, SoftMax: 100, HardClamp: hardClamp}, zap.NewNop())
}

func TestInitialState(t *testing.T) {
	sc := testScenario()
	state := InitialState(sc, models.DefaultEngineConfig())

	assert.Equal(t, 40, state.Stats["cityChaos"])
	assert.Equal(t, 60, state.Stats["communityCohesion"])
	assert.False(t, state.Flags["FLAG_ESCAPE_VEHICLE_SECURED"].Active())
	assert.Equal(t, models.FlagCount, state.Flags["FLAG_SUPPLY_RUN"].Kind)
	assert.Equal(t, 10, state.Relationships[models.PairKey("민서", "지호")])
	assert.Equal(t, 4, state.Survivors)
	assert.Equal(t, models.APLedger{CurrentAP: 3, MaxAP: 3}, state.AP)
	assert.Equal(t, 1, state.Day)
	assert.Equal(t, 0, state.Turn)
}

func TestStateApplier_StatChanges(t *testing.T) {
	sc := testScenario()
	sa := newTestApplier(false)
	a := newTestAmplifier(t, models.DefaultAmplification())
	state := InitialState(sc, models.DefaultEngineConfig())

	applied, _ := a.AmplifyAll(sc, state.Stats, []models.ProposedStatChange{{StatID: "cityChaos", RawDelta: 10}})
	result, err := sa.Apply(sc, state, TurnDelta{StatChanges: applied})
	require.NoError(t, err)

	assert.Equal(t, 50, result.State.Stats["cityChaos"])
	// 纯函数：原快照不变
	assert.Equal(t, 40, state.Stats["cityChaos"])
}

func TestStateApplier_RejectsInconsistentAudit(t *testing.T) {
	sc := testScenario()
	sa := newTestApplier(false)
	state := InitialState(sc, models.DefaultEngineConfig())

	tests := []struct {
		name   string
		change models.AppliedStatChange
	}{
		{"stale previous value", models.AppliedStatChange{StatID: "cityChaos", PreviousValue: 10, NewValue: 20, AppliedDelta: 10}},
		{"out of range", models.AppliedStatChange{StatID: "cityChaos", PreviousValue: 40, NewValue: 140, AppliedDelta: 100}},
		{"delta mismatch", models.AppliedStatChange{StatID: "cityChaos", PreviousValue: 40, NewValue: 50, AppliedDelta: 15}},
		{"unknown stat", models.AppliedStatChange{StatID: "moonPhase", PreviousValue: 0, NewValue: 1, AppliedDelta: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sa.Apply(sc, state, TurnDelta{StatChanges: []models.AppliedStatChange{tt.change}})
			assert.True(t, errors.Is(err, models.ErrInvariantViolation))
		})
	}
}

func TestStateApplier_Flags(t *testing.T) {
	sc := testScenario()
	sa := newTestApplier(false)
	state := InitialState(sc, models.DefaultEngineConfig())

	t.Run("boolean flag is idempotent", func(t *testing.T) {
		once, err := sa.Apply(sc, state, TurnDelta{FlagsAcquired: []string{"FLAG_ESCAPE_VEHICLE_SECURED"}})
		require.NoError(t, err)
		twice, err := sa.Apply(sc, once.State, TurnDelta{FlagsAcquired: []string{"FLAG_ESCAPE_VEHICLE_SECURED"}})
		require.NoError(t, err)

		assert.Equal(t, once.State.Flags, twice.State.Flags)
		assert.True(t, twice.State.Flags["FLAG_ESCAPE_VEHICLE_SECURED"].Active())
	})

	t.Run("count flag increments per entry", func(t *testing.T) {
		result, err := sa.Apply(sc, state, TurnDelta{FlagsAcquired: []string{"FLAG_SUPPLY_RUN", "FLAG_SUPPLY_RUN"}})
		require.NoError(t, err)
		assert.Equal(t, 2, result.State.Flags["FLAG_SUPPLY_RUN"].Count)
	})

	t.Run("unknown flag is ignored with notice", func(t *testing.T) {
		result, err := sa.Apply(sc, state, TurnDelta{FlagsAcquired: []string{"FLAG_GHOST"}})
		require.NoError(t, err)
		_, exists := result.State.Flags["FLAG_GHOST"]
		assert.False(t, exists)
		assert.Equal(t, []models.NoticeKind{models.NoticeUnknownReference}, noticeKinds(result.Notices))
		assert.Empty(t, result.FlagsAcquired)
	})
}

func TestStateApplier_Relationships(t *testing.T) {
	sc := testScenario()
	state := InitialState(sc, models.DefaultEngineConfig())

	t.Run("order independent key accumulates", func(t *testing.T) {
		result, err := newTestApplier(false).Apply(sc, state, TurnDelta{Relationships: []models.RelationshipChange{
			{Pair: models.CharacterPair{"지호", "민서"}, Change: 5},
			{Pair: models.CharacterPair{"민서", "지호"}, Change: -2},
		}})
		require.NoError(t, err)
		assert.Equal(t, 13, result.State.Relationships["민서|지호"])
		require.Len(t, result.Relationships, 2)
		assert.Equal(t, 15, result.Relationships[1].PreviousValue)
	})

	t.Run("soft bound is recorded not enforced", func(t *testing.T) {
		result, err := newTestApplier(false).Apply(sc, state, TurnDelta{Relationships: []models.RelationshipChange{
			{Pair: models.CharacterPair{"지호", "민서"}, Change: 200},
		}})
		require.NoError(t, err)
		assert.Equal(t, 210, result.State.Relationships["민서|지호"])
		assert.True(t, result.Relationships[0].OutOfSoftRange)
		assert.Contains(t, noticeKinds(result.Notices), models.NoticeRelationshipSoftBound)
	})

	t.Run("hard clamp when enabled", func(t *testing.T) {
		result, err := newTestApplier(true).Apply(sc, state, TurnDelta{Relationships: []models.RelationshipChange{
			{Pair: models.CharacterPair{"지호", "민서"}, Change: 200},
		}})
		require.NoError(t, err)
		assert.Equal(t, 100, result.State.Relationships["민서|지호"])
	})
}

func TestStateApplier_Survivors(t *testing.T) {
	sc := testScenario()
	sa := newTestApplier(false)
	state := InitialState(sc, models.DefaultEngineConfig())

	result, err := sa.Apply(sc, state, TurnDelta{SurvivorDelta: -10})
	require.NoError(t, err)
	assert.Equal(t, 0, result.State.Survivors)
	assert.Equal(t, 4, state.Survivors)
}

func TestStateApplier_Deterministic(t *testing.T) {
	sc := testScenario()
	sa := newTestApplier(false)
	state := InitialState(sc, models.DefaultEngineConfig())
	delta := TurnDelta{
		StatChanges: []models.AppliedStatChange{
			{StatID: "communityCohesion", PreviousValue: 60, NewValue: 55, AppliedDelta: -5},
		},
		FlagsAcquired: []string{"FLAG_SUPPLY_RUN"},
		Relationships: []models.RelationshipChange{{Pair: models.CharacterPair{"지호", "민서"}, Change: 3}},
		SurvivorDelta: -1,
	}

	first, err := sa.Apply(sc, state, delta)
	require.NoError(t, err)
	second, err := sa.Apply(sc, state, delta)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
