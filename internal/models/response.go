package models

// RawResponse 模型返回的原始JSON结构（不可信输入）
// 指针字段用于区分"缺失"与"零值"
type RawResponse struct {
	Log         *string         `json:"log"`
	Dilemma     *RawDilemma     `json:"dilemma"`
	StatChanges *RawStatChanges `json:"statChanges"`
}

// RawDilemma 原始抉择
type RawDilemma struct {
	Prompt  *string `json:"prompt"`
	ChoiceA *string `json:"choice_a"`
	ChoiceB *string `json:"choice_b"`
	ChoiceC *string `json:"choice_c,omitempty"`
}

// RawStatChanges 原始状态变化
type RawStatChanges struct {
	ScenarioStats             map[string]float64      `json:"scenarioStats"`
	HiddenRelationshipsChange []RawRelationshipChange `json:"hiddenRelationships_change,omitempty"`
	FlagsAcquired             []string                `json:"flags_acquired,omitempty"`
	SurvivorsChange           *float64                `json:"survivors_change,omitempty"`
	ShouldAdvanceTime         *bool                   `json:"shouldAdvanceTime"`
}

// RawRelationshipChange 原始关系变化，数值和属性一样按浮点接收
type RawRelationshipChange struct {
	Pair   CharacterPair `json:"pair"`
	Change float64       `json:"change"`
}
