package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// TurnRequest 生成下一回合所需的上下文
type TurnRequest struct {
	Scenario *models.Scenario
	State    models.GameState
	Zones    map[string]models.Zone // 只暴露区间，不暴露具体数值
	Action   models.PlayerAction
	Dilemma  models.Dilemma
	Recent   []models.NarrativeLog
	Rules    models.SanitizerConfig // 选项长度与结尾规则，和清洗器保持一致
}

// zoneLabels 给模型看的区间描述
var zoneLabels = map[models.Zone]string{
	models.ZoneStable:   "안정",
	models.ZoneWarning:  "경고",
	models.ZoneCritical: "위기",
}

// recentLimit 提示词中保留的最近叙事条数
const recentLimit = 6

// BuildSystemPrompt 系统提示词：规定输出结构与语言
func BuildSystemPrompt(sc *models.Scenario, rules models.SanitizerConfig) string {
	var b strings.Builder

	b.WriteString("당신은 인터랙티브 서바이벌 소설의 내레이터입니다.\n")
	fmt.Fprintf(&b, "작품: %s\n", sc.Title)
	if sc.Description != "" {
		fmt.Fprintf(&b, "배경: %s\n", sc.Description)
	}
	b.WriteString("\n규칙:\n")
	b.WriteString("1. 모든 서술과 선택지는 한국어로만 작성합니다. 다른 언어 문자를 섞지 않습니다.\n")
	b.WriteString("2. 서술 안에 수치나 괄호 속 스탯 변화를 적지 않습니다.\n")
	b.WriteString(choiceRule(rules))
	b.WriteString("4. HTML이나 마크다운을 사용하지 않습니다.\n")
	b.WriteString("5. 반드시 아래 JSON 형식 하나만 출력합니다.\n\n")

	b.WriteString(`{
  "log": "서술",
  "dilemma": {"prompt": "질문", "choice_a": "선택지", "choice_b": "선택지", "choice_c": "선택지(선택)"},
  "statChanges": {
    "scenarioStats": {"스탯ID": 0},
    "hiddenRelationships_change": [{"pair": ["인물A", "인물B"], "change": 0}],
    "flags_acquired": [],
    "survivors_change": 0,
    "shouldAdvanceTime": false
  }
}`)
	b.WriteString("\n\n사용 가능한 스탯ID:\n")
	for _, d := range sc.Stats {
		fmt.Fprintf(&b, "- %s (%s)\n", d.ID, d.DisplayName)
	}
	if len(sc.Flags) > 0 {
		b.WriteString("\n획득 가능한 플래그:\n")
		for _, f := range sc.Flags {
			fmt.Fprintf(&b, "- %s\n", f.Name)
		}
	}
	if len(sc.Characters) > 0 {
		fmt.Fprintf(&b, "\n등장인물: %s\n", strings.Join(sc.Characters, ", "))
	}

	return b.String()
}

// choiceRule 选项规则说明，直接取自清洗配置
func choiceRule(rules models.SanitizerConfig) string {
	rule := fmt.Sprintf("3. 선택지는 %d자에서 %d자 사이", rules.ChoiceMinLength, rules.ChoiceMaxLength)
	if len(rules.ChoiceEndings) == 0 {
		return rule + "입니다.\n"
	}
	endings := make([]string, 0, len(rules.ChoiceEndings))
	for _, e := range rules.ChoiceEndings {
		endings = append(endings, "'"+e+"'")
	}
	return rule + "이며 " + strings.Join(endings, ", ") + " 중 하나로 끝납니다.\n"
}

// BuildTurnPrompt 回合提示词：状态只以区间形式出现
func BuildTurnPrompt(req TurnRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "현재 %d일차, %d번째 턴. 생존자 %d명.\n", req.State.Day, req.State.Turn+1, req.State.Survivors)

	b.WriteString("\n상황:\n")
	for _, d := range req.Scenario.Stats {
		zone, ok := req.Zones[d.ID]
		if !ok {
			zone = models.ZoneStable
		}
		fmt.Fprintf(&b, "- %s: %s\n", d.DisplayName, zoneLabels[zone])
	}

	active := activeFlags(req.State.Flags)
	if len(active) > 0 {
		fmt.Fprintf(&b, "\n이미 일어난 일: %s\n", strings.Join(active, ", "))
	}

	recent := req.Recent
	if len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}
	if len(recent) > 0 {
		b.WriteString("\n최근 이야기:\n")
		for _, entry := range recent {
			fmt.Fprintf(&b, "%s\n", entry.Content)
		}
	}

	if req.Dilemma.Prompt != "" {
		fmt.Fprintf(&b, "\n직전 질문: %s\n", req.Dilemma.Prompt)
	}

	fmt.Fprintf(&b, "\n플레이어 행동(%s): %s\n", req.Action.Type, req.Action.Text)
	if req.Action.Target != "" {
		fmt.Fprintf(&b, "대상: %s\n", req.Action.Target)
	}
	b.WriteString("\n다음 장면을 JSON으로 작성하세요.")

	return b.String()
}

// activeFlags 已触发的旗标，按名称排序
func activeFlags(flags map[string]models.FlagValue) []string {
	out := make([]string, 0, len(flags))
	for name, v := range flags {
		if v.Active() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
