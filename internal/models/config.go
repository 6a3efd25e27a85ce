package models

import (
	"fmt"
	"unicode"
)

// Config 配置
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	LLM         LLMConfig      `yaml:"llm"`
	Log         LogConfig      `yaml:"log"`
	Engine      EngineConfig   `yaml:"engine"`
	ScenarioDir string         `yaml:"scenario_dir"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	APIBase     string  `yaml:"api_base"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Encoding   string `yaml:"encoding"`
	OutputPath string `yaml:"output_path"`
}

// EngineConfig 引擎参数（剧本可覆盖其中一部分）
type EngineConfig struct {
	Amplification AmplificationConfig `yaml:"amplification" json:"amplification"`
	Sanitizer     SanitizerConfig     `yaml:"sanitizer" json:"sanitizer"`
	Actions       ActionConfig        `yaml:"actions" json:"actions"`
	Relationships RelationshipConfig  `yaml:"relationships" json:"relationships"`
	MaxDays       int                 `yaml:"max_days" json:"max_days"`
}

// ZoneFactors 每个区间的倍率
type ZoneFactors struct {
	Stable   float64 `yaml:"stable" json:"stable"`
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// For 取区间对应倍率
func (f ZoneFactors) For(z Zone) float64 {
	switch z {
	case ZoneCritical:
		return f.Critical
	case ZoneWarning:
		return f.Warning
	default:
		return f.Stable
	}
}

// AmplificationConfig 区间放大曲线
type AmplificationConfig struct {
	MaxDelta     int         `yaml:"max_delta" json:"max_delta"`         // 单回合原始变化的安全包络
	CriticalBand float64     `yaml:"critical_band" json:"critical_band"` // 靠近坏端的比例
	WarningBand  float64     `yaml:"warning_band" json:"warning_band"`
	Worsening    ZoneFactors `yaml:"worsening" json:"worsening"` // 向坏端移动
	Recovery     ZoneFactors `yaml:"recovery" json:"recovery"`   // 远离坏端
}

// Validate 区间宽度合法，倍率随严重程度单调
func (c AmplificationConfig) Validate() error {
	if c.MaxDelta <= 0 {
		return fmt.Errorf("%w: max_delta 必须大于0", ErrInvalidConfig)
	}
	if c.CriticalBand <= 0 || c.WarningBand < 0 || c.CriticalBand+c.WarningBand >= 1 {
		return fmt.Errorf("%w: 区间宽度必须满足 0 < critical, 0 <= warning, critical+warning < 1", ErrInvalidConfig)
	}
	w := c.Worsening
	if w.Stable < 1 || w.Warning < w.Stable || w.Critical < w.Warning {
		return fmt.Errorf("%w: 恶化倍率必须 >= 1 且随严重程度不减", ErrInvalidConfig)
	}
	r := c.Recovery
	if r.Critical <= 0 || r.Stable > 1 || r.Warning > r.Stable || r.Critical > r.Warning {
		return fmt.Errorf("%w: 恢复倍率必须在 (0,1] 且随严重程度不增", ErrInvalidConfig)
	}
	return nil
}

// SanitizerConfig 回复清洗参数
type SanitizerConfig struct {
	PermittedScripts []string `yaml:"permitted_scripts" json:"permitted_scripts"` // unicode 脚本名，如 Hangul
	ExtraAllowed     string   `yaml:"extra_allowed" json:"extra_allowed"`         // 额外允许的符号
	MaxForeignRatio  float64  `yaml:"max_foreign_ratio" json:"max_foreign_ratio"`
	ChoiceMinLength  int      `yaml:"choice_min_length" json:"choice_min_length"` // 按字符计
	ChoiceMaxLength  int      `yaml:"choice_max_length" json:"choice_max_length"`
	ChoiceEndings    []string `yaml:"choice_endings" json:"choice_endings"`
	StrictChoices    bool     `yaml:"strict_choices" json:"strict_choices"` // true 时不合格选项直接拒绝
	MaxRepairPasses  int      `yaml:"max_repair_passes" json:"max_repair_passes"`
}

// Validate 校验清洗参数
func (c SanitizerConfig) Validate() error {
	if len(c.PermittedScripts) == 0 {
		return fmt.Errorf("%w: permitted_scripts 不能为空", ErrInvalidConfig)
	}
	for _, name := range c.PermittedScripts {
		if _, ok := unicode.Scripts[name]; !ok {
			return fmt.Errorf("%w: 未知的文字脚本 %q", ErrInvalidConfig, name)
		}
	}
	if c.MaxForeignRatio < 0 || c.MaxForeignRatio >= 1 {
		return fmt.Errorf("%w: max_foreign_ratio 必须在 [0,1) 内", ErrInvalidConfig)
	}
	if c.ChoiceMinLength <= 0 || c.ChoiceMaxLength < c.ChoiceMinLength {
		return fmt.Errorf("%w: 选项长度区间无效", ErrInvalidConfig)
	}
	if c.MaxRepairPasses <= 0 {
		return fmt.Errorf("%w: max_repair_passes 必须大于0", ErrInvalidConfig)
	}
	return nil
}

// HintRule 关键词风险提示规则
type HintRule struct {
	Risk       RiskLevel `yaml:"risk" json:"risk"`
	Keywords   []string  `yaml:"keywords" json:"keywords"`
	Prediction string    `yaml:"prediction" json:"prediction"`
}

// ActionConfig 行动点配置
type ActionConfig struct {
	Costs             map[ActionType]int `yaml:"costs" json:"costs"`
	MaxAP             int                `yaml:"max_ap" json:"max_ap"`
	HintRules         []HintRule         `yaml:"hint_rules" json:"hint_rules"` // 按顺序匹配，风险高的规则应放前面
	DefaultPrediction string             `yaml:"default_prediction" json:"default_prediction"`
}

// Validate 校验行动点配置
func (c ActionConfig) Validate() error {
	if c.MaxAP <= 0 {
		return fmt.Errorf("%w: max_ap 必须大于0", ErrInvalidConfig)
	}
	for _, t := range ActionTypes {
		cost, ok := c.Costs[t]
		if !ok {
			return fmt.Errorf("%w: 缺少行动 %s 的消耗", ErrInvalidConfig, t)
		}
		if cost < 0 {
			return fmt.Errorf("%w: 行动 %s 的消耗不能为负", ErrInvalidConfig, t)
		}
	}
	return nil
}

// RelationshipConfig 关系值软边界（默认只记录，不强制）
type RelationshipConfig struct {
	SoftMin   int  `yaml:"soft_min" json:"soft_min"`
	SoftMax   int  `yaml:"soft_max" json:"soft_max"`
	HardClamp bool `yaml:"hard_clamp" json:"hard_clamp"`
}

// Validate 校验引擎配置
func (c EngineConfig) Validate() error {
	if err := c.Amplification.Validate(); err != nil {
		return err
	}
	if err := c.Sanitizer.Validate(); err != nil {
		return err
	}
	if err := c.Actions.Validate(); err != nil {
		return err
	}
	if c.Relationships.SoftMin >= c.Relationships.SoftMax {
		return fmt.Errorf("%w: 关系软边界无效", ErrInvalidConfig)
	}
	if c.MaxDays <= 0 {
		return fmt.Errorf("%w: max_days 必须大于0", ErrInvalidConfig)
	}
	return nil
}

// DefaultAmplification 默认放大曲线
func DefaultAmplification() AmplificationConfig {
	return AmplificationConfig{
		MaxDelta:     40,
		CriticalBand: 0.15,
		WarningBand:  0.20,
		Worsening:    ZoneFactors{Stable: 1.0, Warning: 1.25, Critical: 1.5},
		Recovery:     ZoneFactors{Stable: 1.0, Warning: 0.9, Critical: 0.75},
	}
}

// DefaultEngineConfig 默认引擎配置（韩语剧本）
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Amplification: DefaultAmplification(),
		Sanitizer: SanitizerConfig{
			PermittedScripts: []string{"Hangul"},
			ExtraAllowed:     "~·…“”‘’「」『』+=<>",
			MaxForeignRatio:  0.15,
			ChoiceMinLength:  15,
			ChoiceMaxLength:  50,
			ChoiceEndings:    []string{"다", "기", "자"},
			MaxRepairPasses:  3,
		},
		Actions: ActionConfig{
			Costs: map[ActionType]int{
				ActionChoice:      1,
				ActionDialogue:    1,
				ActionExploration: 1,
				ActionFreeText:    1,
			},
			MaxAP: 3,
			HintRules: []HintRule{
				{
					Risk:       RiskHigh,
					Keywords:   []string{"공격", "싸우", "전투", "습격", "폭력", "무기", "attack", "fight"},
					Prediction: "충돌이 예상됩니다. 상황이 급격히 악화될 수 있습니다.",
				},
				{
					Risk:       RiskMedium,
					Keywords:   []string{"협상", "설득", "거래", "대화", "타협", "negotiate", "persuade"},
					Prediction: "상대의 반응에 따라 결과가 달라질 수 있습니다.",
				},
				{
					Risk:       RiskLow,
					Keywords:   []string{"후퇴", "도망", "숨", "피하", "기다", "관찰", "retreat", "hide"},
					Prediction: "큰 변화 없이 상황을 지켜볼 수 있습니다.",
				},
			},
			DefaultPrediction: "결과를 예측하기 어렵습니다.",
		},
		Relationships: RelationshipConfig{SoftMin: -100, SoftMax: 100},
		MaxDays:       7,
	}
}
