package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// defaultFallbackDilemma 剧本未声明兜底抉择时使用
var defaultFallbackDilemma = models.Dilemma{
	Prompt:  "잠시 정적이 흐른다. 무엇을 할 것인가?",
	ChoiceA: "주변을 조심스럽게 살피며 상황을 파악한다",
	ChoiceB: "일행과 모여 다음 행동을 의논한다",
}

// Engine 单个剧本的回合引擎。回合是一条同步调用链，没有内部挂起点；
// 同一会话的回合由调用方串行化
type Engine struct {
	scenario  *models.Scenario
	cfg       models.EngineConfig
	sanitizer *Sanitizer
	amplifier *Amplifier
	applier   *StateApplier
	evaluator *EndingEvaluator
	ledger    *ActionLedger
	logger    *zap.Logger
}

// NewEngine 按剧本覆盖后的配置组装引擎各组件
func NewEngine(sc *models.Scenario, base models.EngineConfig, logger *zap.Logger) (*Engine, error) {
	cfg := sc.EffectiveEngine(base)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("剧本 %s 的引擎配置无效: %w", sc.ID, err)
	}

	names := make([]string, 0, len(sc.Stats)*2)
	for _, d := range sc.Stats {
		names = append(names, d.ID, d.DisplayName)
	}

	logger = logger.With(zap.String("scenario_id", sc.ID))
	sanitizer, err := NewSanitizer(cfg.Sanitizer, names, logger)
	if err != nil {
		return nil, err
	}
	amplifier, err := NewAmplifier(cfg.Amplification, logger)
	if err != nil {
		return nil, err
	}
	ledger, err := NewActionLedger(cfg.Actions)
	if err != nil {
		return nil, err
	}

	return &Engine{
		scenario:  sc,
		cfg:       cfg,
		sanitizer: sanitizer,
		amplifier: amplifier,
		applier:   NewStateApplier(cfg.Relationships, logger),
		evaluator: NewEndingEvaluator(logger),
		ledger:    ledger,
		logger:    logger.Named("Engine"),
	}, nil
}

func (e *Engine) Scenario() *models.Scenario  { return e.scenario }
func (e *Engine) Config() models.EngineConfig { return e.cfg }
func (e *Engine) Ledger() *ActionLedger       { return e.ledger }
func (e *Engine) Amplifier() *Amplifier       { return e.amplifier }

// NewGame 开局快照
func (e *Engine) NewGame() models.GameState {
	return InitialState(e.scenario, e.cfg)
}

// Quote 行动报价
func (e *Engine) Quote(state models.GameState, action models.PlayerAction) (models.ActionQuote, error) {
	return e.ledger.Quote(state, action)
}

// FallbackDilemma 确定性的兜底抉择
func (e *Engine) FallbackDilemma() models.Dilemma {
	if e.scenario.FallbackDilemma.Prompt != "" && e.scenario.FallbackDilemma.ChoiceA != "" {
		return e.scenario.FallbackDilemma
	}
	return defaultFallbackDilemma
}

// ResolveTurn 处理一个回合：行动点 -> 清洗 -> 放大 -> 应用 -> 结局判定。
// 行动点不足时返回 ErrInsufficientActionPoints 且不做任何修改；
// 模型回复无法使用时返回兜底抉择，状态与行动点都保持不变。
func (e *Engine) ResolveTurn(ctx context.Context, state models.GameState, action models.PlayerAction, raw string) (*models.TurnResult, error) {
	spent, err := e.ledger.Spend(state, action.Type)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientActionPoints) {
			turnsTotal.WithLabelValues(e.scenario.ID, "rejected_ap").Inc()
		}
		return nil, err
	}

	resp, err := e.sanitizer.Process(raw)
	if err != nil {
		return e.fallback(state, err), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applied, notices := e.amplifier.AmplifyAll(e.scenario, spent.Stats, resp.StatChanges)
	outcome, err := e.applier.Apply(e.scenario, spent, TurnDelta{
		StatChanges:   applied,
		FlagsAcquired: resp.FlagsAcquired,
		Relationships: resp.RelationshipDelta,
		SurvivorDelta: resp.SurvivorDelta,
	})
	if err != nil {
		e.logger.Error("状态应用被拒绝", zap.Error(err))
		return nil, err
	}

	next := outcome.State
	next.Turn++
	if resp.ShouldAdvanceTime {
		next.Day++
		next = e.ledger.StartDay(next)
	}

	ending := e.evaluator.Evaluate(e.scenario, next)
	if ending == nil {
		ending = e.evaluator.ResolveDayLimit(e.scenario, next, e.cfg.MaxDays)
	}

	result := &models.TurnResult{
		Turn:                next.Turn,
		Narrative:           resp.NarrativeLog,
		Dilemma:             resp.Dilemma,
		Choices:             resp.Choices,
		AppliedChanges:      applied,
		RelationshipChanges: outcome.Relationships,
		FlagsAcquired:       outcome.FlagsAcquired,
		State:               next,
		Ending:              ending,
		DayAdvanced:         resp.ShouldAdvanceTime,
	}
	result.Notices = append(result.Notices, resp.Notices...)
	result.Notices = append(result.Notices, notices...)
	result.Notices = append(result.Notices, outcome.Notices...)

	if ending != nil {
		turnsTotal.WithLabelValues(e.scenario.ID, "ended").Inc()
		e.logger.Info("故事迎来结局",
			zap.String("ending_id", ending.ID),
			zap.Bool("goal_success", ending.IsGoalSuccess),
			zap.Int("turn", next.Turn),
			zap.Int("day", next.Day),
		)
	} else {
		turnsTotal.WithLabelValues(e.scenario.ID, "applied").Inc()
	}

	return result, nil
}

// fallback 模型回复硬失败时的确定性回合
func (e *Engine) fallback(state models.GameState, cause error) *models.TurnResult {
	kind := models.NoticeMalformedPayload
	switch {
	case errors.Is(cause, models.ErrLanguagePurity):
		kind = models.NoticeLanguagePurity
	case errors.Is(cause, models.ErrFormatting):
		kind = models.NoticeFormatting
	case errors.Is(cause, models.ErrChoiceFormat):
		kind = models.NoticeChoiceFormat
	}
	hardFailuresTotal.WithLabelValues(string(kind)).Inc()
	turnsTotal.WithLabelValues(e.scenario.ID, "fallback").Inc()
	e.logger.Error("模型回复无法使用，改用兜底抉择", zap.Error(cause), zap.String("reason", string(kind)))

	dilemma := e.FallbackDilemma()
	return &models.TurnResult{
		Turn:     state.Turn,
		Dilemma:  dilemma,
		Choices:  []models.ChoiceReport{{Field: "dilemma.choice_a"}, {Field: "dilemma.choice_b"}},
		State:    state.Clone(),
		Fallback: true,
		Notices: []models.Notice{{
			Kind:   kind,
			Detail: cause.Error(),
		}},
	}
}
