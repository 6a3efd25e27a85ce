package services

import (
	"fmt"
	"strings"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// ActionLedger 行动分类与行动点账本
type ActionLedger struct {
	cfg models.ActionConfig
}

func NewActionLedger(cfg models.ActionConfig) (*ActionLedger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ActionLedger{cfg: cfg}, nil
}

// Classify 把请求中的行动类型字符串映射到行动类型
func (l *ActionLedger) Classify(kind string) (models.ActionType, error) {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	switch normalized {
	case "choice", "dilemma":
		return models.ActionChoice, nil
	case "dialogue", "talk":
		return models.ActionDialogue, nil
	case "exploration", "explore", "move":
		return models.ActionExploration, nil
	case "freetext", "free_text", "custom":
		return models.ActionFreeText, nil
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnknownActionType, kind)
}

// Cost 行动消耗
func (l *ActionLedger) Cost(t models.ActionType) (int, error) {
	cost, ok := l.cfg.Costs[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownActionType, t)
	}
	return cost, nil
}

// Quote 报价：消耗多少、当前是否负担得起。不修改任何状态
func (l *ActionLedger) Quote(state models.GameState, action models.PlayerAction) (models.ActionQuote, error) {
	cost, err := l.Cost(action.Type)
	if err != nil {
		return models.ActionQuote{}, err
	}
	quote := models.ActionQuote{
		Type:       action.Type,
		Cost:       cost,
		CurrentAP:  state.AP.CurrentAP,
		Affordable: cost <= state.AP.CurrentAP,
	}
	if action.Text != "" {
		hint := l.Hint(action.Text)
		quote.Hint = &hint
	}
	return quote, nil
}

// Spend 扣除行动点。负担不起时原样返回状态并给出 ErrInsufficientActionPoints
func (l *ActionLedger) Spend(state models.GameState, t models.ActionType) (models.GameState, error) {
	cost, err := l.Cost(t)
	if err != nil {
		return state, err
	}
	if cost > state.AP.CurrentAP {
		return state, fmt.Errorf("%w: 需要 %d，剩余 %d", models.ErrInsufficientActionPoints, cost, state.AP.CurrentAP)
	}
	next := state.Clone()
	next.AP.CurrentAP -= cost
	return next, nil
}

// StartDay 新的一天：行动点恢复到上限
func (l *ActionLedger) StartDay(state models.GameState) models.GameState {
	next := state.Clone()
	next.AP.MaxAP = l.cfg.MaxAP
	next.AP.CurrentAP = l.cfg.MaxAP
	return next
}

// Hint 根据选项文字中的关键词给出粗略风险预测，仅用于界面提示
func (l *ActionLedger) Hint(text string) models.ActionHint {
	lower := strings.ToLower(text)
	for _, rule := range l.cfg.HintRules {
		var matched []string
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			return models.ActionHint{Risk: rule.Risk, Prediction: rule.Prediction, Keywords: matched}
		}
	}
	return models.ActionHint{Risk: models.RiskMedium, Prediction: l.cfg.DefaultPrediction}
}
