package models

import "time"

// Polarity 属性极性：决定哪一端是"坏"的一端
type Polarity string

const (
	PolarityPositive Polarity = "positive" // 数值越低越糟
	PolarityNegative Polarity = "negative" // 数值越高越糟
)

// StatDefinition 属性定义（剧本创作时确定，游戏中只读）
type StatDefinition struct {
	ID           string   `json:"id" yaml:"id"`
	DisplayName  string   `json:"display_name" yaml:"display_name"`
	Min          int      `json:"min" yaml:"min"`
	Max          int      `json:"max" yaml:"max"`
	InitialValue int      `json:"initial_value" yaml:"initial_value"`
	Polarity     Polarity `json:"polarity" yaml:"polarity"`
}

// Clamp 将数值限制在 [Min, Max] 内
func (d StatDefinition) Clamp(v int) int {
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// InRange 数值是否在定义范围内
func (d StatDefinition) InRange(v int) bool {
	return v >= d.Min && v <= d.Max
}

// FlagDefinition 旗标定义
type FlagDefinition struct {
	Name         string    `json:"name" yaml:"name"`
	Kind         FlagKind  `json:"kind" yaml:"kind"`
	InitialValue FlagValue `json:"initial_value" yaml:"initial_value"`
}

// Initial 按定义的类型返回初始值（忽略创作者写错的类型）
func (d FlagDefinition) Initial() FlagValue {
	switch d.Kind {
	case FlagCount:
		n := d.InitialValue.Count
		if n < 0 {
			n = 0
		}
		return CountFlag(n)
	default:
		return BoolFlag(d.InitialValue.Set || d.InitialValue.Count > 0)
	}
}

// ActionType 玩家行动类型
type ActionType string

const (
	ActionChoice      ActionType = "choice"      // 推进主线抉择
	ActionDialogue    ActionType = "dialogue"    // 与NPC对话
	ActionExploration ActionType = "exploration" // 探索地点
	ActionFreeText    ActionType = "freeText"    // 自由输入
)

// ActionTypes 全部行动类型，顺序固定
var ActionTypes = []ActionType{ActionChoice, ActionDialogue, ActionExploration, ActionFreeText}

// PlayerAction 玩家请求的行动
type PlayerAction struct {
	Type   ActionType `json:"type"`
	Text   string     `json:"text,omitempty"`   // 选项原文或自由输入
	Target string     `json:"target,omitempty"` // NPC或地点
}

// APLedger 行动点账本（每个游戏日）
type APLedger struct {
	CurrentAP int `json:"current_ap"`
	MaxAP     int `json:"max_ap"`
}

// ActionQuote 行动报价（不修改状态）
type ActionQuote struct {
	Type       ActionType  `json:"type"`
	Cost       int         `json:"cost"`
	CurrentAP  int         `json:"current_ap"`
	Affordable bool        `json:"affordable"`
	Hint       *ActionHint `json:"hint,omitempty"`
}

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionHint 仅供界面展示的行动预测，绝不影响模拟结果
type ActionHint struct {
	Risk       RiskLevel `json:"risk"`
	Prediction string    `json:"prediction"`
	Keywords   []string  `json:"keywords,omitempty"` // 命中的关键词
}

// Zone 属性区间分类
type Zone string

const (
	ZoneStable   Zone = "stable"
	ZoneWarning  Zone = "warning"
	ZoneCritical Zone = "critical"
)

// ProposedStatChange 模型提出的属性变化（不可信）
type ProposedStatChange struct {
	StatID   string `json:"stat_id"`
	RawDelta int    `json:"raw_delta"`
}

// AppliedStatChange 实际应用的属性变化（审计记录）
type AppliedStatChange struct {
	StatID          string  `json:"stat_id"`
	RawDelta        int     `json:"raw_delta"`
	ClampedDelta    int     `json:"clamped_delta"` // 安全包络限制后
	AmplifiedDelta  int     `json:"amplified_delta"`
	AppliedDelta    int     `json:"applied_delta"` // newValue - previousValue
	PreviousValue   int     `json:"previous_value"`
	NewValue        int     `json:"new_value"`
	Zone            Zone    `json:"zone"`
	Factor          float64 `json:"factor"`
	EnvelopeClamped bool    `json:"envelope_clamped,omitempty"`
	BoundClamped    bool    `json:"bound_clamped,omitempty"`
}

// RelationshipChange 关系值变化
type RelationshipChange struct {
	Pair   CharacterPair `json:"pair"`
	Change int           `json:"change"`
}

// AppliedRelationshipChange 关系变化审计记录
type AppliedRelationshipChange struct {
	Key            string `json:"key"`
	Change         int    `json:"change"`
	PreviousValue  int    `json:"previous_value"`
	NewValue       int    `json:"new_value"`
	OutOfSoftRange bool   `json:"out_of_soft_range,omitempty"`
}

// Dilemma 当前抉择
type Dilemma struct {
	Prompt  string `json:"prompt" yaml:"prompt"`
	ChoiceA string `json:"choice_a" yaml:"choice_a"`
	ChoiceB string `json:"choice_b" yaml:"choice_b"`
	ChoiceC string `json:"choice_c,omitempty" yaml:"choice_c,omitempty"`
}

// Choices 返回非空选项
func (d Dilemma) Choices() []string {
	out := []string{d.ChoiceA, d.ChoiceB}
	if d.ChoiceC != "" {
		out = append(out, d.ChoiceC)
	}
	return out
}

// ChoiceReport 选项格式检查结果
type ChoiceReport struct {
	Field         string `json:"field"`
	LowConfidence bool   `json:"low_confidence"`
	Reason        string `json:"reason,omitempty"`
}

// SanitizedResponse 清洗后的模型回复
type SanitizedResponse struct {
	NarrativeLog      string               `json:"narrative_log"`
	Dilemma           Dilemma              `json:"dilemma"`
	StatChanges       []ProposedStatChange `json:"stat_changes"`
	RelationshipDelta []RelationshipChange `json:"relationship_changes,omitempty"`
	FlagsAcquired     []string             `json:"flags_acquired,omitempty"`
	SurvivorDelta     int                  `json:"survivor_delta,omitempty"`
	ShouldAdvanceTime bool                 `json:"should_advance_time"`
	Choices           []ChoiceReport       `json:"choices"`
	Notices           []Notice             `json:"notices,omitempty"`
}

// LowConfidence 任意选项置信度低
func (r *SanitizedResponse) LowConfidence() bool {
	for _, c := range r.Choices {
		if c.LowConfidence {
			return true
		}
	}
	return false
}

// NoticeKind 非致命事件类型
type NoticeKind string

const (
	NoticeLanguagePurity        NoticeKind = "language_purity"
	NoticeFormatting            NoticeKind = "formatting"
	NoticeChoiceFormat          NoticeKind = "choice_format"
	NoticeMarkup                NoticeKind = "markup"
	NoticeDeltaOutOfEnvelope    NoticeKind = "delta_out_of_envelope"
	NoticeUnknownReference      NoticeKind = "unknown_reference"
	NoticeRelationshipSoftBound NoticeKind = "relationship_soft_bound"
	NoticeMalformedPayload      NoticeKind = "malformed_payload" // 仅出现在兜底回合
)

// Notice 被自动修复或忽略的问题，随回合结果返回
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Field  string     `json:"field,omitempty"`
	Detail string     `json:"detail"`
}

// GameState 权威状态快照（可直接序列化持久化）
type GameState struct {
	Stats         map[string]int       `json:"stats"`
	Flags         map[string]FlagValue `json:"flags"`
	Relationships map[string]int       `json:"relationships"`
	Survivors     int                  `json:"survivors"`
	AP            APLedger             `json:"ap"`
	Day           int                  `json:"day"`
	Turn          int                  `json:"turn"`
}

// Clone 深拷贝
func (s GameState) Clone() GameState {
	out := s
	out.Stats = make(map[string]int, len(s.Stats))
	for k, v := range s.Stats {
		out.Stats[k] = v
	}
	out.Flags = make(map[string]FlagValue, len(s.Flags))
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	out.Relationships = make(map[string]int, len(s.Relationships))
	for k, v := range s.Relationships {
		out.Relationships[k] = v
	}
	return out
}

// TurnResult 一个回合的完整输出（交给展示层）
type TurnResult struct {
	Turn                int                         `json:"turn"`
	Narrative           string                      `json:"narrative"`
	Dilemma             Dilemma                     `json:"dilemma"`
	Choices             []ChoiceReport              `json:"choices"`
	AppliedChanges      []AppliedStatChange         `json:"applied_changes"`
	RelationshipChanges []AppliedRelationshipChange `json:"relationship_changes,omitempty"`
	FlagsAcquired       []string                    `json:"flags_acquired,omitempty"`
	State               GameState                   `json:"state"`
	Ending              *EndingArchetype            `json:"ending,omitempty"`
	DayAdvanced         bool                        `json:"day_advanced"`
	Fallback            bool                        `json:"fallback"`
	Notices             []Notice                    `json:"notices,omitempty"`
}

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session 一次游戏进程
type Session struct {
	ID         string         `json:"id"`
	ScenarioID string         `json:"scenario_id"`
	State      GameState      `json:"state"`
	History    []TurnSnapshot `json:"history"` // 历史快照（用于回退）
	Dilemma    Dilemma        `json:"dilemma"`
	Narrative  []NarrativeLog `json:"narrative"`
	Status     SessionStatus  `json:"status"`
	EndingID   string         `json:"ending_id,omitempty"`
	StateHash  string         `json:"state_hash"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TurnSnapshot 回合开始前的快照
type TurnSnapshot struct {
	State     GameState `json:"state"`
	Dilemma   Dilemma   `json:"dilemma"`
	StateHash string    `json:"state_hash"`
}

// NarrativeLog 叙事日志条目
type NarrativeLog struct {
	Turn      int       `json:"turn"`
	Type      string    `json:"type"` // action, result, system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SaveGame 存档
type SaveGame struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	Day       int       `json:"day"`
	Snapshot  Session   `json:"snapshot"`
	CreatedAt time.Time `json:"created_at"`
}
