package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFlagValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]FlagValue{"a": BoolFlag(true), "b": CountFlag(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": true, "b": 3}`, string(data))

	var decoded map[string]FlagValue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, BoolFlag(true), decoded["a"])
	assert.Equal(t, CountFlag(3), decoded["b"])
	assert.True(t, decoded["b"].Active())

	var v FlagValue
	assert.Error(t, json.Unmarshal([]byte(`-1`), &v))
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &v))
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &v))
}

func TestFlagValue_YAML(t *testing.T) {
	var def FlagDefinition
	require.NoError(t, yaml.Unmarshal([]byte("name: FLAG_SUPPLY_RUN\nkind: count\ninitial_value: 2\n"), &def))
	assert.Equal(t, CountFlag(2), def.Initial())

	var plain FlagDefinition
	require.NoError(t, yaml.Unmarshal([]byte("name: FLAG_X\nkind: boolean\n"), &plain))
	assert.Equal(t, BoolFlag(false), plain.Initial())
	assert.False(t, plain.Initial().Active())
}

func TestCharacterPair(t *testing.T) {
	for _, input := range []string{`["지호", "민서"]`, `"지호|민서"`, `"민서 & 지호"`, `"지호,민서"`} {
		var p CharacterPair
		require.NoError(t, json.Unmarshal([]byte(input), &p), input)
		assert.Equal(t, "민서|지호", p.Key(), input)
		assert.True(t, p.Valid(), input)
	}

	var p CharacterPair
	assert.Error(t, json.Unmarshal([]byte(`["지호"]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`"지호"`), &p))
	assert.Error(t, json.Unmarshal([]byte(`7`), &p))

	assert.False(t, CharacterPair{"지호", "지호"}.Valid())
	assert.Equal(t, PairKey("b", "a"), PairKey("a", "b"))
}

func TestParseComparison(t *testing.T) {
	tests := map[string]Comparison{
		">=":            GreaterEqual,
		"greater_equal": GreaterEqual,
		" LTE ":         LessEqual,
		"==":            Equal,
		">":             GreaterThan,
		"lt":            LessThan,
		"!=":            NotEqual,
	}
	for input, want := range tests {
		got, err := ParseComparison(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseComparison("about")
	assert.Error(t, err)
}

func TestConditions_YAML(t *testing.T) {
	src := `
- type: required_stat
  stat_id: cityChaos
  comparison: ">="
  value: 100
- type: required_flag
  flag_name: FLAG_ESCAPE_VEHICLE_SECURED
- type: survivor_count
  comparison: less_equal
  value: 0
`
	var cs Conditions
	require.NoError(t, yaml.Unmarshal([]byte(src), &cs))
	require.Len(t, cs, 3)
	assert.Equal(t, RequiredStat{StatID: "cityChaos", Comparison: GreaterEqual, Value: 100}, cs[0])
	assert.Equal(t, RequiredFlag{FlagName: "FLAG_ESCAPE_VEHICLE_SECURED"}, cs[1])
	assert.Equal(t, SurvivorCount{Comparison: LessEqual, Value: 0}, cs[2])

	assert.Error(t, yaml.Unmarshal([]byte("- type: mood\n"), &cs))
	assert.Error(t, yaml.Unmarshal([]byte("- type: required_flag\n"), &cs))
	assert.Error(t, yaml.Unmarshal([]byte("- type: required_stat\n  stat_id: x\n  comparison: about\n"), &cs))
}

func TestConditions_JSON(t *testing.T) {
	in := Conditions{
		RequiredStat{StatID: "cityChaos", Comparison: GreaterEqual, Value: 100},
		RequiredFlag{FlagName: "FLAG_A"},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Conditions
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`[{"type": "unknown"}]`), &out))
}

func TestGameState_Clone(t *testing.T) {
	s := GameState{
		Stats:         map[string]int{"a": 1},
		Flags:         map[string]FlagValue{"F": BoolFlag(false)},
		Relationships: map[string]int{"x|y": 5},
		Survivors:     3,
	}
	c := s.Clone()
	c.Stats["a"] = 99
	c.Flags["F"] = BoolFlag(true)
	c.Relationships["x|y"] = -5
	c.Survivors = 0

	assert.Equal(t, 1, s.Stats["a"])
	assert.False(t, s.Flags["F"].Active())
	assert.Equal(t, 5, s.Relationships["x|y"])
	assert.Equal(t, 3, s.Survivors)
}

func TestScenario_EffectiveEngine(t *testing.T) {
	base := DefaultEngineConfig()
	sc := &Scenario{MaxDays: 5, MaxAP: 4, ActionCosts: map[ActionType]int{ActionFreeText: 2}}

	cfg := sc.EffectiveEngine(base)
	assert.Equal(t, 5, cfg.MaxDays)
	assert.Equal(t, 4, cfg.Actions.MaxAP)
	assert.Equal(t, 2, cfg.Actions.Costs[ActionFreeText])
	assert.Equal(t, 1, cfg.Actions.Costs[ActionChoice])
	// 基础配置不受影响
	assert.Equal(t, 1, base.Actions.Costs[ActionFreeText])
	assert.NoError(t, cfg.Validate())
}

func TestEngineConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultEngineConfig().Validate())

	cfg := DefaultEngineConfig()
	cfg.Amplification.Worsening.Critical = 0.5
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultEngineConfig()
	cfg.Amplification.CriticalBand = 0.6
	cfg.Amplification.WarningBand = 0.5
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultEngineConfig()
	cfg.Actions.MaxAP = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}
