package services

import (
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// EndingEvaluator 结局判定。
// 按创作者声明的顺序扫描，返回第一个全部条件都满足的结局（先匹配者胜，不是最佳匹配），
// 因此更具体、更稀有的结局必须排在宽泛结局之前。
type EndingEvaluator struct {
	logger *zap.Logger
}

func NewEndingEvaluator(logger *zap.Logger) *EndingEvaluator {
	return &EndingEvaluator{logger: logger.Named("EndingEvaluator")}
}

// Evaluate 每回合调用。时限结局不参与扫描；没有匹配返回 nil
func (e *EndingEvaluator) Evaluate(sc *models.Scenario, state models.GameState) *models.EndingArchetype {
	for i := range sc.Endings {
		ending := &sc.Endings[i]
		if ending.TimeLimit {
			continue
		}
		if e.satisfied(sc, state, ending) {
			return ending
		}
	}
	return nil
}

// ResolveDayLimit 由推进天数的驱动调用：超过天数上限且没有其他结局时返回时限结局
func (e *EndingEvaluator) ResolveDayLimit(sc *models.Scenario, state models.GameState, maxDays int) *models.EndingArchetype {
	if state.Day <= maxDays {
		return nil
	}
	if ending := e.Evaluate(sc, state); ending != nil {
		return ending
	}
	return sc.TimeLimitEnding()
}

// satisfied 条件合取。空条件列表永远不触发，兜底结局应使用 time_limit
func (e *EndingEvaluator) satisfied(sc *models.Scenario, state models.GameState, ending *models.EndingArchetype) bool {
	if len(ending.Conditions) == 0 {
		return false
	}
	for _, c := range ending.Conditions {
		if !e.check(sc, state, ending.ID, c) {
			return false
		}
	}
	return true
}

// check 单个条件。引用不存在的属性或旗标时视为不满足，不报错
func (e *EndingEvaluator) check(sc *models.Scenario, state models.GameState, endingID string, c models.SystemCondition) bool {
	switch cond := c.(type) {
	case models.RequiredStat:
		def, ok := sc.Stat(cond.StatID)
		if !ok {
			e.logger.Warn("结局条件引用了未定义的属性",
				zap.String("ending_id", endingID), zap.String("stat_id", cond.StatID))
			return false
		}
		value, ok := state.Stats[def.ID]
		if !ok {
			value = def.InitialValue
		}
		return Compare(value, cond.Comparison, cond.Value)

	case models.RequiredFlag:
		if _, ok := sc.Flag(cond.FlagName); !ok {
			e.logger.Warn("结局条件引用了未定义的旗标",
				zap.String("ending_id", endingID), zap.String("flag", cond.FlagName))
			return false
		}
		return FlagSatisfied(state.Flags[cond.FlagName])

	case models.SurvivorCount:
		return Compare(state.Survivors, cond.Comparison, cond.Value)
	}

	e.logger.Error("未知的结局条件类型", zap.String("ending_id", endingID))
	return false
}
