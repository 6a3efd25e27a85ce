package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

const (
	choiceA = "경찰서로 달려가 도움을 요청한다"
	choiceB = "지하 주차장에 숨어 밤을 기다린다"
)

// testScenario 测试用剧本：一个负极性属性、两个正极性属性
func testScenario() *models.Scenario {
	return &models.Scenario{
		ID:    "outbreak",
		Title: "서울 봉쇄",
		Stats: []models.StatDefinition{
			{ID: "cityChaos", DisplayName: "도시 혼란도", Min: 0, Max: 100, InitialValue: 40, Polarity: models.PolarityNegative},
			{ID: "communityCohesion", DisplayName: "공동체 결속력", Min: 0, Max: 100, InitialValue: 60, Polarity: models.PolarityPositive},
			{ID: "survivalFoundation", DisplayName: "생존 기반", Min: 0, Max: 100, InitialValue: 50, Polarity: models.PolarityPositive},
		},
		Flags: []models.FlagDefinition{
			{Name: "FLAG_ESCAPE_VEHICLE_SECURED", Kind: models.FlagBoolean},
			{Name: "FLAG_SUPPLY_RUN", Kind: models.FlagCount},
		},
		Endings: []models.EndingArchetype{
			{
				ID:            "escape_success",
				Title:         "탈출 성공",
				IsGoalSuccess: true,
				Conditions: models.Conditions{
					models.RequiredFlag{FlagName: "FLAG_ESCAPE_VEHICLE_SECURED"},
					models.SurvivorCount{Comparison: models.GreaterEqual, Value: 3},
				},
			},
			{
				ID:    "city_collapse",
				Title: "도시 붕괴",
				Conditions: models.Conditions{
					models.RequiredStat{StatID: "cityChaos", Comparison: models.GreaterEqual, Value: 100},
				},
			},
			{
				ID:    "ghost",
				Title: "유령",
				Conditions: models.Conditions{
					models.RequiredFlag{FlagName: "FLAG_GHOST"},
				},
			},
			{ID: "time_up", Title: "봉쇄의 끝", TimeLimit: true},
		},
		Characters: []string{"지호", "민서"},
		Relationships: []models.RelationshipSeed{
			{Pair: []string{"지호", "민서"}, Value: 10},
		},
		InitialSurvivors: 4,
		MaxDays:          3,
		OpeningDilemma:   models.Dilemma{Prompt: "무엇부터 할까?", ChoiceA: choiceA, ChoiceB: choiceB},
		FallbackDilemma: models.Dilemma{
			Prompt:  "잠시 정적이 흐른다.",
			ChoiceA: "문을 단단히 잠그고 상황을 지켜본다",
			ChoiceB: "일행을 모아 탈출 계획을 다시 세운다",
		},
	}
}

// validPayload 一份合格的模型回复，测试按需修改
func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"log": "거리는 조용하지만 멀리서 비명이 들려온다.",
		"dilemma": map[string]interface{}{
			"prompt":   "이제 어떻게 할 것인가?",
			"choice_a": choiceA,
			"choice_b": choiceB,
		},
		"statChanges": map[string]interface{}{
			"scenarioStats":     map[string]interface{}{"cityChaos": 10},
			"shouldAdvanceTime": false,
		},
	}
}

func statChanges(p map[string]interface{}) map[string]interface{} {
	return p["statChanges"].(map[string]interface{})
}

func encode(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(data)
}

func noticeKinds(notices []models.Notice) []models.NoticeKind {
	out := make([]models.NoticeKind, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Kind)
	}
	return out
}
