package services

import "github.com/aiwuxian/abyss-engine/internal/models"

// Compare 用比较运算符判断 current 与 threshold。未知运算符视为不满足
func Compare(current int, cmp models.Comparison, threshold int) bool {
	switch cmp {
	case models.GreaterEqual:
		return current >= threshold
	case models.LessEqual:
		return current <= threshold
	case models.Equal:
		return current == threshold
	case models.GreaterThan:
		return current > threshold
	case models.LessThan:
		return current < threshold
	case models.NotEqual:
		return current != threshold
	}
	return false
}

// FlagSatisfied 旗标条件："是否发生过"，而不是数值比较。
// 布尔旗标只有 true 才满足，计数旗标大于 0 即满足。
func FlagSatisfied(v models.FlagValue) bool {
	return v.Active()
}
