package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Comparison 比较运算符
type Comparison string

const (
	GreaterEqual Comparison = "greater_equal"
	LessEqual    Comparison = "less_equal"
	Equal        Comparison = "equal"
	GreaterThan  Comparison = "greater_than"
	LessThan     Comparison = "less_than"
	NotEqual     Comparison = "not_equal"
)

var comparisonAliases = map[string]Comparison{
	"greater_equal": GreaterEqual, ">=": GreaterEqual, "gte": GreaterEqual,
	"less_equal": LessEqual, "<=": LessEqual, "lte": LessEqual,
	"equal": Equal, "==": Equal, "=": Equal, "eq": Equal,
	"greater_than": GreaterThan, ">": GreaterThan, "gt": GreaterThan,
	"less_than": LessThan, "<": LessThan, "lt": LessThan,
	"not_equal": NotEqual, "!=": NotEqual, "ne": NotEqual,
}

// ParseComparison 解析运算符，支持符号写法
func ParseComparison(s string) (Comparison, error) {
	c, ok := comparisonAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("未知的比较运算符: %q", s)
	}
	return c, nil
}

// ConditionKind 条件类型标签
type ConditionKind string

const (
	ConditionRequiredStat  ConditionKind = "required_stat"
	ConditionRequiredFlag  ConditionKind = "required_flag"
	ConditionSurvivorCount ConditionKind = "survivor_count"
)

// SystemCondition 结局条件。封闭的和类型：只有本包内的三种实现
type SystemCondition interface {
	Kind() ConditionKind
	systemCondition()
}

// RequiredStat 属性条件
type RequiredStat struct {
	StatID     string
	Comparison Comparison
	Value      int
}

// RequiredFlag 旗标条件（存在语义，不做数值比较）
type RequiredFlag struct {
	FlagName string
}

// SurvivorCount 幸存者数量条件
type SurvivorCount struct {
	Comparison Comparison
	Value      int
}

func (RequiredStat) Kind() ConditionKind  { return ConditionRequiredStat }
func (RequiredFlag) Kind() ConditionKind  { return ConditionRequiredFlag }
func (SurvivorCount) Kind() ConditionKind { return ConditionSurvivorCount }

func (RequiredStat) systemCondition()  {}
func (RequiredFlag) systemCondition()  {}
func (SurvivorCount) systemCondition() {}

// conditionRecord 条件的序列化形式
type conditionRecord struct {
	Type       ConditionKind `json:"type" yaml:"type"`
	StatID     string        `json:"stat_id,omitempty" yaml:"stat_id,omitempty"`
	FlagName   string        `json:"flag_name,omitempty" yaml:"flag_name,omitempty"`
	Comparison string        `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Value      int           `json:"value" yaml:"value"`
}

func (s conditionRecord) toCondition() (SystemCondition, error) {
	switch s.Type {
	case ConditionRequiredStat:
		if s.StatID == "" {
			return nil, fmt.Errorf("required_stat 缺少 stat_id")
		}
		cmp, err := ParseComparison(s.Comparison)
		if err != nil {
			return nil, err
		}
		return RequiredStat{StatID: s.StatID, Comparison: cmp, Value: s.Value}, nil
	case ConditionRequiredFlag:
		if s.FlagName == "" {
			return nil, fmt.Errorf("required_flag 缺少 flag_name")
		}
		return RequiredFlag{FlagName: s.FlagName}, nil
	case ConditionSurvivorCount:
		cmp, err := ParseComparison(s.Comparison)
		if err != nil {
			return nil, err
		}
		return SurvivorCount{Comparison: cmp, Value: s.Value}, nil
	default:
		return nil, fmt.Errorf("未知的条件类型: %q", s.Type)
	}
}

func recordOf(c SystemCondition) conditionRecord {
	switch t := c.(type) {
	case RequiredStat:
		return conditionRecord{Type: t.Kind(), StatID: t.StatID, Comparison: string(t.Comparison), Value: t.Value}
	case RequiredFlag:
		return conditionRecord{Type: t.Kind(), FlagName: t.FlagName}
	case SurvivorCount:
		return conditionRecord{Type: t.Kind(), Comparison: string(t.Comparison), Value: t.Value}
	}
	return conditionRecord{}
}

// Conditions 条件列表（合取）
type Conditions []SystemCondition

func (cs *Conditions) fromRecords(records []conditionRecord) error {
	out := make(Conditions, 0, len(records))
	for i, s := range records {
		c, err := s.toCondition()
		if err != nil {
			return fmt.Errorf("第%d个条件无效: %w", i+1, err)
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

func (cs Conditions) records() []conditionRecord {
	out := make([]conditionRecord, 0, len(cs))
	for _, c := range cs {
		out = append(out, recordOf(c))
	}
	return out
}

func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var records []conditionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	return cs.fromRecords(records)
}

func (cs Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.records())
}

func (cs *Conditions) UnmarshalYAML(node *yaml.Node) error {
	var records []conditionRecord
	if err := node.Decode(&records); err != nil {
		return err
	}
	return cs.fromRecords(records)
}

func (cs Conditions) MarshalYAML() (interface{}, error) {
	return cs.records(), nil
}

// EndingArchetype 结局原型，条件为合取
type EndingArchetype struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	IsGoalSuccess bool       `json:"is_goal_success" yaml:"is_goal_success"`
	TimeLimit     bool       `json:"time_limit,omitempty" yaml:"time_limit,omitempty"` // 天数耗尽时的兜底结局，不参与每回合扫描
	Conditions    Conditions `json:"conditions" yaml:"conditions"`
}
