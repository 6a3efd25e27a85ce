package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(testScenario(), models.DefaultEngineConfig().Sanitizer)

	assert.Contains(t, prompt, "서울 봉쇄")
	assert.Contains(t, prompt, "- cityChaos (도시 혼란도)")
	assert.Contains(t, prompt, "- FLAG_SUPPLY_RUN")
	assert.Contains(t, prompt, "지호, 민서")
	assert.Contains(t, prompt, `"shouldAdvanceTime"`)
	assert.Contains(t, prompt, "15자에서 50자 사이이며 '다', '기', '자' 중 하나로 끝납니다.")
}

func TestBuildSystemPrompt_FollowsChoiceRules(t *testing.T) {
	rules := models.DefaultEngineConfig().Sanitizer
	rules.ChoiceMinLength = 10
	rules.ChoiceMaxLength = 30
	rules.ChoiceEndings = []string{"다"}

	prompt := BuildSystemPrompt(testScenario(), rules)
	assert.Contains(t, prompt, "10자에서 30자 사이이며 '다' 중 하나로 끝납니다.")
	assert.NotContains(t, prompt, "15자")

	rules.ChoiceEndings = nil
	prompt = BuildSystemPrompt(testScenario(), rules)
	assert.Contains(t, prompt, "3. 선택지는 10자에서 30자 사이입니다.")
}

func TestBuildTurnPrompt_OnlyZones(t *testing.T) {
	e := newTestEngine(t)
	sc := e.Scenario()
	state := e.NewGame()
	state.Stats["cityChaos"] = 87
	state.Stats["communityCohesion"] = 73
	state.Flags["FLAG_SUPPLY_RUN"] = models.CountFlag(2)

	prompt := BuildTurnPrompt(TurnRequest{
		Scenario: sc,
		State:    state,
		Zones:    zonesOf(e, state),
		Action:   models.PlayerAction{Type: models.ActionChoice, Text: choiceA},
		Dilemma:  sc.OpeningDilemma,
	})

	assert.Contains(t, prompt, "도시 혼란도: 위기")
	assert.Contains(t, prompt, "공동체 결속력: 안정")
	assert.Contains(t, prompt, "이미 일어난 일: FLAG_SUPPLY_RUN")
	assert.Contains(t, prompt, choiceA)
	assert.NotContains(t, prompt, "87")
	assert.NotContains(t, prompt, "73")
}

func TestBuildTurnPrompt_RecentLimit(t *testing.T) {
	sc := testScenario()
	var recent []models.NarrativeLog
	for _, content := range []string{"첫째", "둘째", "셋째", "넷째", "다섯째", "여섯째", "일곱째"} {
		recent = append(recent, models.NarrativeLog{Content: content})
	}

	prompt := BuildTurnPrompt(TurnRequest{
		Scenario: sc,
		State:    InitialState(sc, models.DefaultEngineConfig()),
		Action:   models.PlayerAction{Type: models.ActionFreeText, Text: "주변을 살핀다"},
		Recent:   recent,
	})

	assert.NotContains(t, prompt, "첫째")
	assert.Contains(t, prompt, "둘째")
	assert.Contains(t, prompt, "일곱째")
}
