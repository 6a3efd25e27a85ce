package models

// Scenario 剧本定义（会话期间只读）
type Scenario struct {
	ID                 string               `json:"id" yaml:"id"`
	Title              string               `json:"title" yaml:"title"`
	Description        string               `json:"description" yaml:"description"`
	Stats              []StatDefinition     `json:"stats" yaml:"stats"`
	Flags              []FlagDefinition     `json:"flags" yaml:"flags"`
	Endings            []EndingArchetype    `json:"endings" yaml:"endings"` // 顺序即优先级，先匹配者胜
	Characters         []string             `json:"characters,omitempty" yaml:"characters,omitempty"`
	Relationships      []RelationshipSeed   `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	InitialSurvivors   int                  `json:"initial_survivors" yaml:"initial_survivors"`
	MaxDays            int                  `json:"max_days,omitempty" yaml:"max_days,omitempty"`
	MaxAP              int                  `json:"max_ap,omitempty" yaml:"max_ap,omitempty"`
	ActionCosts        map[ActionType]int   `json:"action_costs,omitempty" yaml:"action_costs,omitempty"`
	Amplification      *AmplificationConfig `json:"amplification,omitempty" yaml:"amplification,omitempty"`
	RelationshipBounds *RelationshipConfig  `json:"relationship_bounds,omitempty" yaml:"relationship_bounds,omitempty"`
	OpeningNarrative   string               `json:"opening_narrative" yaml:"opening_narrative"`
	OpeningDilemma     Dilemma              `json:"opening_dilemma" yaml:"opening_dilemma"`
	FallbackDilemma    Dilemma              `json:"fallback_dilemma" yaml:"fallback_dilemma"` // 模型回复无法使用时的确定性抉择
}

// RelationshipSeed 初始关系值
type RelationshipSeed struct {
	Pair  []string `json:"pair" yaml:"pair"`
	Value int      `json:"value" yaml:"value"`
}

// Stat 按ID查找属性定义
func (s *Scenario) Stat(id string) (StatDefinition, bool) {
	for _, d := range s.Stats {
		if d.ID == id {
			return d, true
		}
	}
	return StatDefinition{}, false
}

// Flag 按名称查找旗标定义
func (s *Scenario) Flag(name string) (FlagDefinition, bool) {
	for _, d := range s.Flags {
		if d.Name == name {
			return d, true
		}
	}
	return FlagDefinition{}, false
}

// TimeLimitEnding 天数耗尽时的兜底结局
func (s *Scenario) TimeLimitEnding() *EndingArchetype {
	for i := range s.Endings {
		if s.Endings[i].TimeLimit {
			return &s.Endings[i]
		}
	}
	return nil
}

// EffectiveEngine 剧本覆盖后的引擎配置
func (s *Scenario) EffectiveEngine(base EngineConfig) EngineConfig {
	cfg := base
	if s.Amplification != nil {
		cfg.Amplification = *s.Amplification
	}
	if s.RelationshipBounds != nil {
		cfg.Relationships = *s.RelationshipBounds
	}
	if s.MaxDays > 0 {
		cfg.MaxDays = s.MaxDays
	}
	if s.MaxAP > 0 {
		cfg.Actions.MaxAP = s.MaxAP
	}
	if len(s.ActionCosts) > 0 {
		costs := make(map[ActionType]int, len(base.Actions.Costs))
		for k, v := range base.Actions.Costs {
			costs[k] = v
		}
		for k, v := range s.ActionCosts {
			costs[k] = v
		}
		cfg.Actions.Costs = costs
	}
	return cfg
}
