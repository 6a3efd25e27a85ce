package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// TurnDelta 一回合要折叠进状态的全部变化
type TurnDelta struct {
	StatChanges   []models.AppliedStatChange
	FlagsAcquired []string
	Relationships []models.RelationshipChange
	SurvivorDelta int
}

// ApplyResult 应用后的新快照及审计信息
type ApplyResult struct {
	State         models.GameState
	Relationships []models.AppliedRelationshipChange
	FlagsAcquired []string
	Notices       []models.Notice
}

// StateApplier 状态应用器。纯函数：相同输入总是得到相同快照，不修改传入的状态
type StateApplier struct {
	bounds models.RelationshipConfig
	logger *zap.Logger
}

func NewStateApplier(bounds models.RelationshipConfig, logger *zap.Logger) *StateApplier {
	return &StateApplier{bounds: bounds, logger: logger.Named("StateApplier")}
}

// InitialState 按剧本定义创建开局快照
func InitialState(sc *models.Scenario, cfg models.EngineConfig) models.GameState {
	state := models.GameState{
		Stats:         make(map[string]int, len(sc.Stats)),
		Flags:         make(map[string]models.FlagValue, len(sc.Flags)),
		Relationships: make(map[string]int, len(sc.Relationships)),
		Survivors:     sc.InitialSurvivors,
		AP:            models.APLedger{CurrentAP: cfg.Actions.MaxAP, MaxAP: cfg.Actions.MaxAP},
		Day:           1,
	}
	for _, d := range sc.Stats {
		state.Stats[d.ID] = d.InitialValue
	}
	for _, f := range sc.Flags {
		state.Flags[f.Name] = f.Initial()
	}
	for _, r := range sc.Relationships {
		if len(r.Pair) == 2 {
			state.Relationships[models.PairKey(r.Pair[0], r.Pair[1])] = r.Value
		}
	}
	return state
}

// Apply 折叠属性、旗标、关系和幸存者变化。
// 属性变化在提交前再次校验边界，任何不一致都拒绝整个回合
func (sa *StateApplier) Apply(sc *models.Scenario, state models.GameState, delta TurnDelta) (*ApplyResult, error) {
	next := state.Clone()
	result := &ApplyResult{}

	for _, c := range delta.StatChanges {
		def, ok := sc.Stat(c.StatID)
		if !ok {
			return nil, fmt.Errorf("%w: 属性 %q 不在剧本定义中", models.ErrInvariantViolation, c.StatID)
		}
		current, ok := next.Stats[def.ID]
		if !ok {
			current = def.InitialValue
		}
		if c.PreviousValue != current {
			return nil, fmt.Errorf("%w: 属性 %s 的审计前值 %d 与当前值 %d 不一致",
				models.ErrInvariantViolation, def.ID, c.PreviousValue, current)
		}
		if !def.InRange(c.NewValue) {
			return nil, fmt.Errorf("%w: 属性 %s 的新值 %d 超出 [%d, %d]",
				models.ErrInvariantViolation, def.ID, c.NewValue, def.Min, def.Max)
		}
		if c.AppliedDelta != c.NewValue-c.PreviousValue {
			return nil, fmt.Errorf("%w: 属性 %s 的审计变化量与前后值不符", models.ErrInvariantViolation, def.ID)
		}
		next.Stats[def.ID] = c.NewValue
	}

	for _, name := range delta.FlagsAcquired {
		def, ok := sc.Flag(name)
		if !ok {
			sa.logger.Warn("忽略未定义的旗标", zap.String("flag", name))
			result.Notices = append(result.Notices, models.Notice{
				Kind:   models.NoticeUnknownReference,
				Field:  "statChanges.flags_acquired",
				Detail: fmt.Sprintf("未定义的旗标 %q", name),
			})
			continue
		}
		next.Flags[def.Name] = acquire(def, next.Flags[def.Name])
		result.FlagsAcquired = append(result.FlagsAcquired, def.Name)
	}

	for _, rc := range delta.Relationships {
		key := rc.Pair.Key()
		prev := next.Relationships[key]
		value := prev + rc.Change

		outOfRange := value < sa.bounds.SoftMin || value > sa.bounds.SoftMax
		if outOfRange && sa.bounds.HardClamp {
			value = min(max(value, sa.bounds.SoftMin), sa.bounds.SoftMax)
		}
		if outOfRange {
			result.Notices = append(result.Notices, models.Notice{
				Kind:   models.NoticeRelationshipSoftBound,
				Field:  key,
				Detail: fmt.Sprintf("关系值 %d 超出约定范围 [%d, %d]", prev+rc.Change, sa.bounds.SoftMin, sa.bounds.SoftMax),
			})
		}

		next.Relationships[key] = value
		result.Relationships = append(result.Relationships, models.AppliedRelationshipChange{
			Key:            key,
			Change:         rc.Change,
			PreviousValue:  prev,
			NewValue:       value,
			OutOfSoftRange: outOfRange,
		})
	}

	next.Survivors = max(next.Survivors+delta.SurvivorDelta, 0)

	result.State = next
	return result, nil
}

// acquire 布尔旗标幂等置 true，计数旗标每次获得 +1
func acquire(def models.FlagDefinition, current models.FlagValue) models.FlagValue {
	if def.Kind == models.FlagCount {
		n := current.Count
		if current.Kind != models.FlagCount {
			n = 0
		}
		return models.CountFlag(n + 1)
	}
	return models.BoolFlag(true)
}
