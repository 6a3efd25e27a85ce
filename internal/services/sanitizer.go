package services

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/unicode/rangetable"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

var (
	jsonFenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

	scriptURIRegex   = regexp.MustCompile(`(?i)(?:java|vb)script\s*:`)
	dataURIRegex     = regexp.MustCompile(`(?i)data\s*:\s*text/html\S*`)
	eventAttrRegex   = regexp.MustCompile(`(?i)\bon[a-z]{2,}\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)
	residualTagRegex = regexp.MustCompile(`</?[a-zA-Z!][^>]*>`)
	tagLikeRegex     = regexp.MustCompile(`(?s)<!--.*?-->|</?[a-zA-Z!][^<>]*>`)

	blankRunRegex   = regexp.MustCompile(`\n{3,}`)
	spaceRunRegex   = regexp.MustCompile(`[ \t\p{Zs}]{2,}`)
	choicePrefixRe  = regexp.MustCompile(`^\s*(?:[A-Ca-c1-3][.)：:]|[①②③]|[-*•])\s*`)
	bareCalloutExpr = `[+\-−]?\d+(?:\.\d+)?\s*%?`
)

// rawContentTags 这些标签内的文本整体丢弃
var rawContentTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true,
	"embed": true, "noscript": true, "template": true, "svg": true,
}

// maxRawMagnitude 模型数值在浮点域先截断到这个范围再取整，超出 int 的值不会翻转符号
const maxRawMagnitude = 1_000_000

// choiceTrailingPunct 选项末尾允许被去掉的标点
const choiceTrailingPunct = " \t.!?。！？…~"

// Sanitizer 校验并修复模型回复
type Sanitizer struct {
	cfg       models.SanitizerConfig
	permitted *unicode.RangeTable
	extra     map[rune]struct{}
	callout   *regexp.Regexp
	logger    *zap.Logger
}

// NewSanitizer 创建清洗器。statNames 为剧本中的属性ID与显示名，用于识别"混乱度(60)"这类数值泄露
func NewSanitizer(cfg models.SanitizerConfig, statNames []string, logger *zap.Logger) (*Sanitizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tables := []*unicode.RangeTable{unicode.Nd, unicode.P}
	for _, name := range cfg.PermittedScripts {
		tables = append(tables, unicode.Scripts[name])
	}

	extra := make(map[rune]struct{})
	for _, r := range cfg.ExtraAllowed {
		extra[r] = struct{}{}
	}

	return &Sanitizer{
		cfg:       cfg,
		permitted: rangetable.Merge(tables...),
		extra:     extra,
		callout:   buildCalloutRegex(statNames),
		logger:    logger.Named("Sanitizer"),
	}, nil
}

func buildCalloutRegex(statNames []string) *regexp.Regexp {
	names := make([]string, 0, len(statNames))
	seen := make(map[string]bool)
	for _, n := range statNames {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, regexp.QuoteMeta(n))
	}
	// 长名字优先，避免前缀抢先匹配
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	label := ""
	if len(names) > 0 {
		label = `(?:(?:` + strings.Join(names, "|") + `)\s*[:：=]?\s*)?`
	}
	return regexp.MustCompile(`[ \t]*[(（\[]\s*` + label + bareCalloutExpr + `\s*[)）\]]`)
}

// Process 解析并清洗一段原始回复
func (s *Sanitizer) Process(raw string) (*models.SanitizedResponse, error) {
	resp, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.Sanitize(resp)
}

// Parse 解析原始JSON。结构错误或缺少必填字段都是硬失败
func (s *Sanitizer) Parse(raw string) (*models.RawResponse, error) {
	cleaned := extractJSONContent(raw)
	if cleaned == "" {
		return nil, models.NewValidationError(models.ErrMalformedPayload, "", "回复为空")
	}

	var resp models.RawResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, models.NewValidationError(models.ErrMalformedPayload, "", err.Error())
	}

	missing := func(field string) error {
		return models.NewValidationError(models.ErrMalformedPayload, field, "缺少必填字段")
	}
	switch {
	case resp.Log == nil:
		return nil, missing("log")
	case resp.Dilemma == nil:
		return nil, missing("dilemma")
	case resp.Dilemma.Prompt == nil:
		return nil, missing("dilemma.prompt")
	case resp.Dilemma.ChoiceA == nil:
		return nil, missing("dilemma.choice_a")
	case resp.Dilemma.ChoiceB == nil:
		return nil, missing("dilemma.choice_b")
	case resp.StatChanges == nil:
		return nil, missing("statChanges")
	case resp.StatChanges.ScenarioStats == nil:
		return nil, missing("statChanges.scenarioStats")
	case resp.StatChanges.ShouldAdvanceTime == nil:
		return nil, missing("statChanges.shouldAdvanceTime")
	}

	return &resp, nil
}

// extractJSONContent 去掉代码块包裹和JSON对象前后的多余文字
func extractJSONContent(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if m := jsonFenceRegex.FindStringSubmatch(cleaned); len(m) > 1 {
		cleaned = strings.TrimSpace(m[1])
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return cleaned
	}
	return cleaned[start : end+1]
}

// Sanitize 清洗已解析的回复。语言和格式问题先尝试修复，修复失败才是硬失败
func (s *Sanitizer) Sanitize(resp *models.RawResponse) (*models.SanitizedResponse, error) {
	out := &models.SanitizedResponse{
		ShouldAdvanceTime: *resp.StatChanges.ShouldAdvanceTime,
	}

	narrative, err := s.cleanProse("log", *resp.Log, true, &out.Notices)
	if err != nil {
		return nil, err
	}
	out.NarrativeLog = narrative

	prompt, err := s.cleanProse("dilemma.prompt", *resp.Dilemma.Prompt, false, &out.Notices)
	if err != nil {
		return nil, err
	}
	out.Dilemma.Prompt = prompt

	choiceFields := []struct {
		field    string
		value    *string
		required bool
		dst      *string
	}{
		{"dilemma.choice_a", resp.Dilemma.ChoiceA, true, &out.Dilemma.ChoiceA},
		{"dilemma.choice_b", resp.Dilemma.ChoiceB, true, &out.Dilemma.ChoiceB},
		{"dilemma.choice_c", resp.Dilemma.ChoiceC, false, &out.Dilemma.ChoiceC},
	}
	for _, cf := range choiceFields {
		if cf.value == nil {
			continue
		}
		text, report, err := s.cleanChoice(cf.field, *cf.value, cf.required, &out.Notices)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		*cf.dst = text
		out.Choices = append(out.Choices, report)
	}

	out.StatChanges = proposedChanges(resp.StatChanges.ScenarioStats)

	for _, raw := range resp.StatChanges.HiddenRelationshipsChange {
		rc := models.RelationshipChange{Pair: raw.Pair, Change: roundDelta(raw.Change)}
		if !rc.Pair.Valid() {
			out.Notices = append(out.Notices, models.Notice{
				Kind:   models.NoticeUnknownReference,
				Field:  "statChanges.hiddenRelationships_change",
				Detail: fmt.Sprintf("忽略无效的角色对 %v", rc.Pair),
			})
			continue
		}
		out.RelationshipDelta = append(out.RelationshipDelta, rc)
	}

	for _, f := range resp.StatChanges.FlagsAcquired {
		if f = strings.TrimSpace(f); f != "" {
			out.FlagsAcquired = append(out.FlagsAcquired, f)
		}
	}

	if resp.StatChanges.SurvivorsChange != nil {
		out.SurvivorDelta = roundDelta(*resp.StatChanges.SurvivorsChange)
	}

	for _, n := range out.Notices {
		violationsTotal.WithLabelValues(string(n.Kind)).Inc()
	}

	return out, nil
}

// proposedChanges 按属性ID排序，保证回放顺序确定
func proposedChanges(stats map[string]float64) []models.ProposedStatChange {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.ProposedStatChange, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ProposedStatChange{
			StatID:   strings.TrimSpace(id),
			RawDelta: roundDelta(stats[id]),
		})
	}
	return out
}

// roundDelta 不可信的浮点数值转为整数：先截断再四舍五入
func roundDelta(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f > maxRawMagnitude:
		return maxRawMagnitude
	case f < -maxRawMagnitude:
		return -maxRawMagnitude
	}
	return int(math.Round(f))
}

// cleanProse 清洗玩家可见的叙事文本
func (s *Sanitizer) cleanProse(field, text string, multiline bool, notices *[]models.Notice) (string, error) {
	cleaned, err := s.scrub(field, text, multiline, notices)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", models.NewValidationError(models.ErrFormatting, field, "清洗后文本为空")
	}
	return cleaned, nil
}

// scrub 反复去除标记、数值泄露并整理换行，直到文本稳定；最后做语言纯度检查
func (s *Sanitizer) scrub(field, text string, multiline bool, notices *[]models.Notice) (string, error) {
	current := text
	for pass := 0; pass < s.cfg.MaxRepairPasses; pass++ {
		next := stripMarkup(current)
		if next != current {
			s.notice(notices, models.NoticeMarkup, field, "移除了标记或脚本")
		}
		next = stripDangerous(next)

		formatted := norm.NFC.String(next)
		if multiline {
			formatted = normalizeBreaks(formatted)
		} else {
			formatted = singleLine(formatted)
		}
		withoutCallouts := s.callout.ReplaceAllString(formatted, "")
		if withoutCallouts != formatted {
			s.notice(notices, models.NoticeFormatting, field, "移除了数值泄露")
		}

		if withoutCallouts == current {
			break
		}
		current = withoutCallouts
	}

	if containsMarkup(current) {
		return "", models.NewValidationError(models.ErrFormatting, field, "标记无法在有限次数内清除")
	}

	foreign, total := s.foreignCount(current)
	if foreign == 0 {
		return current, nil
	}
	if ratio := float64(foreign) / float64(total); ratio > s.cfg.MaxForeignRatio {
		return "", models.NewValidationError(models.ErrLanguagePurity, field,
			fmt.Sprintf("外来字符比例 %.2f 超过上限 %.2f", ratio, s.cfg.MaxForeignRatio))
	}

	s.notice(notices, models.NoticeLanguagePurity, field, fmt.Sprintf("移除了 %d 个外来字符", foreign))
	repaired := s.stripForeign(current)
	if multiline {
		repaired = normalizeBreaks(repaired)
	} else {
		repaired = singleLine(repaired)
	}
	return repaired, nil
}

// cleanChoice 清洗并检查选项格式
func (s *Sanitizer) cleanChoice(field, text string, required bool, notices *[]models.Notice) (string, models.ChoiceReport, error) {
	report := models.ChoiceReport{Field: field}

	// 先去掉 "A)" 这类编号，避免编号字母被算作外来字符
	cleaned, err := s.scrub(field, choicePrefixRe.ReplaceAllString(text, ""), false, notices)
	if err != nil {
		return "", report, err
	}
	cleaned = choicePrefixRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimRight(cleaned, choiceTrailingPunct)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		if required {
			return "", report, models.NewValidationError(models.ErrChoiceFormat, field, "选项为空")
		}
		return "", report, nil
	}

	if reason := s.choiceProblem(cleaned); reason != "" {
		if s.cfg.StrictChoices {
			return "", report, models.NewValidationError(models.ErrChoiceFormat, field, reason)
		}
		report.LowConfidence = true
		report.Reason = reason
		s.notice(notices, models.NoticeChoiceFormat, field, reason)
	}

	return cleaned, report, nil
}

// choiceProblem 返回选项不合格的原因，合格返回空串
func (s *Sanitizer) choiceProblem(choice string) string {
	n := utf8.RuneCountInString(choice)
	if n < s.cfg.ChoiceMinLength || n > s.cfg.ChoiceMaxLength {
		return fmt.Sprintf("长度 %d 不在 [%d, %d] 内", n, s.cfg.ChoiceMinLength, s.cfg.ChoiceMaxLength)
	}
	if len(s.cfg.ChoiceEndings) == 0 {
		return ""
	}
	for _, ending := range s.cfg.ChoiceEndings {
		if strings.HasSuffix(choice, ending) {
			return ""
		}
	}
	return "结尾不是行动性表达"
}

func (s *Sanitizer) notice(notices *[]models.Notice, kind models.NoticeKind, field, detail string) {
	*notices = append(*notices, models.Notice{Kind: kind, Field: field, Detail: detail})
	s.logger.Warn("模型回复已自动修复",
		zap.String("kind", string(kind)),
		zap.String("field", field),
		zap.String("detail", detail),
	)
}

func (s *Sanitizer) allowed(r rune) bool {
	if unicode.IsSpace(r) || unicode.Is(s.permitted, r) {
		return true
	}
	_, ok := s.extra[r]
	return ok
}

// foreignCount 返回外来字符数和非空白字符总数
func (s *Sanitizer) foreignCount(text string) (foreign, total int) {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !s.allowed(r) {
			foreign++
		}
	}
	return foreign, total
}

func (s *Sanitizer) stripForeign(text string) string {
	return strings.Map(func(r rune) rune {
		if s.allowed(r) {
			return r
		}
		return -1
	}, text)
}

// stripMarkup 去掉HTML标签，script/style 等标签连同内容一起丢弃
func stripMarkup(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return text
	}

	z := html.NewTokenizer(strings.NewReader(escapeStrayBrackets(text)))
	var b strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch {
			case string(name) == "br":
				if skipDepth == 0 {
					b.WriteString("\n")
				}
			case rawContentTags[string(name)]:
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if rawContentTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		}
	}
}

// escapeStrayBrackets 不构成完整标签的 '<' 转义为文字，避免分词器吞掉后面的叙事
func escapeStrayBrackets(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range tagLikeRegex.FindAllStringIndex(text, -1) {
		b.WriteString(strings.ReplaceAll(text[last:loc[0]], "<", "&lt;"))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(text[last:], "<", "&lt;"))
	return b.String()
}

// stripDangerous 去掉 javascript: 之类的URI和内联事件属性
func stripDangerous(text string) string {
	text = scriptURIRegex.ReplaceAllString(text, "")
	text = dataURIRegex.ReplaceAllString(text, "")
	return eventAttrRegex.ReplaceAllString(text, "")
}

func containsMarkup(text string) bool {
	return residualTagRegex.MatchString(text) ||
		scriptURIRegex.MatchString(text) ||
		eventAttrRegex.MatchString(text)
}

// normalizeBreaks 统一换行，连续空行压缩为一个段落分隔
func normalizeBreaks(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRegex.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func singleLine(text string) string {
	text = strings.ReplaceAll(text, `\n`, " ")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, text)
	return strings.TrimSpace(spaceRunRegex.ReplaceAllString(text, " "))
}
