package models

import (
	"errors"
	"fmt"
)

// 引擎错误
var (
	// 回复校验
	ErrMalformedPayload = errors.New("模型回复结构无效")
	ErrLanguagePurity   = errors.New("叙事文本混入了其他文字")
	ErrFormatting       = errors.New("叙事格式无法修复")
	ErrChoiceFormat     = errors.New("选项格式不符合要求")

	// 状态与行动
	ErrInvariantViolation       = errors.New("状态不变量被破坏")
	ErrInsufficientActionPoints = errors.New("行动点不足")
	ErrUnknownActionType        = errors.New("未知的行动类型")

	// 会话
	ErrSessionNotFound  = errors.New("会话不存在")
	ErrScenarioNotFound = errors.New("剧本不存在")
	ErrSaveNotFound     = errors.New("存档不存在")
	ErrTurnInProgress   = errors.New("该会话已有回合在处理中")
	ErrStoryEnded       = errors.New("故事已结束")
	ErrNothingToUndo    = errors.New("无法回退：没有历史记录")

	// 配置与剧本
	ErrInvalidScenario = errors.New("剧本定义无效")
	ErrInvalidConfig   = errors.New("配置无效")
)

// ValidationError 回复校验失败的详细信息
type ValidationError struct {
	Field  string // 出错的字段，如 dilemma.choice_a
	Reason string
	Err    error // 对应的哨兵错误
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v [%s]: %s", e.Err, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError 创建校验错误
func NewValidationError(err error, field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}
