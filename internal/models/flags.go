package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlagKind 旗标类型
type FlagKind string

const (
	FlagBoolean FlagKind = "boolean"
	FlagCount   FlagKind = "count"
)

// FlagValue 旗标值：布尔或计数。序列化为 JSON 的 bool 或非负整数
type FlagValue struct {
	Kind  FlagKind
	Set   bool
	Count int
}

// BoolFlag 构造布尔旗标值
func BoolFlag(v bool) FlagValue {
	return FlagValue{Kind: FlagBoolean, Set: v}
}

// CountFlag 构造计数旗标值
func CountFlag(n int) FlagValue {
	return FlagValue{Kind: FlagCount, Count: n}
}

// Active 旗标是否"已发生"：布尔为 true，计数大于 0
func (v FlagValue) Active() bool {
	if v.Kind == FlagCount {
		return v.Count > 0
	}
	return v.Set
}

func (v FlagValue) MarshalJSON() ([]byte, error) {
	if v.Kind == FlagCount {
		return json.Marshal(v.Count)
	}
	return json.Marshal(v.Set)
}

func (v *FlagValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}

func (v FlagValue) MarshalYAML() (interface{}, error) {
	if v.Kind == FlagCount {
		return v.Count, nil
	}
	return v.Set, nil
}

func (v *FlagValue) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}

func (v *FlagValue) fromAny(raw interface{}) error {
	switch t := raw.(type) {
	case nil:
		*v = BoolFlag(false)
	case bool:
		*v = BoolFlag(t)
	case float64:
		if t < 0 || t != float64(int(t)) {
			return fmt.Errorf("旗标计数必须是非负整数: %v", t)
		}
		*v = CountFlag(int(t))
	case int:
		if t < 0 {
			return fmt.Errorf("旗标计数必须是非负整数: %d", t)
		}
		*v = CountFlag(t)
	default:
		return fmt.Errorf("无法识别的旗标值: %v", raw)
	}
	return nil
}

// CharacterPair 无序角色对
type CharacterPair [2]string

// pairSeparators 字符串形式的角色对允许的分隔符
const pairSeparators = "|&,"

// Key 规范化的关系键（与顺序无关）
func (p CharacterPair) Key() string {
	return PairKey(p[0], p[1])
}

// Valid 两个角色都非空且不相同
func (p CharacterPair) Valid() bool {
	return p[0] != "" && p[1] != "" && p[0] != p[1]
}

// PairKey 生成无序角色对的规范键
func PairKey(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

// UnmarshalJSON 接受 ["a","b"] 或 "a|b" / "a&b" / "a,b"
func (p *CharacterPair) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != 2 {
			return fmt.Errorf("角色对必须包含两个角色，实际 %d 个", len(list))
		}
		p[0], p[1] = strings.TrimSpace(list[0]), strings.TrimSpace(list[1])
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("无法解析角色对: %w", err)
	}
	idx := strings.IndexAny(s, pairSeparators)
	if idx < 0 {
		return fmt.Errorf("角色对缺少分隔符: %q", s)
	}
	p[0], p[1] = strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:])
	return nil
}

func (p CharacterPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{p[0], p[1]})
}
