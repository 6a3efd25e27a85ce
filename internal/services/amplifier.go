package services

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// bandEpsilon 区间边界比较的浮点容差
const bandEpsilon = 1e-9

// Amplifier 把模型提出的属性变化转换成实际应用的变化
type Amplifier struct {
	cfg    models.AmplificationConfig
	logger *zap.Logger
}

func NewAmplifier(cfg models.AmplificationConfig, logger *zap.Logger) (*Amplifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Amplifier{cfg: cfg, logger: logger.Named("Amplifier")}, nil
}

// Classify 根据当前值离"坏端"的距离划分区间
func (a *Amplifier) Classify(def models.StatDefinition, current int) models.Zone {
	span := float64(def.Max - def.Min)
	if span <= 0 {
		return models.ZoneStable
	}

	v := def.Clamp(current)
	dist := float64(v - def.Min) // positive：低端是坏端
	if def.Polarity == models.PolarityNegative {
		dist = float64(def.Max - v)
	}

	switch {
	case dist <= a.cfg.CriticalBand*span+bandEpsilon:
		return models.ZoneCritical
	case dist <= (a.cfg.CriticalBand+a.cfg.WarningBand)*span+bandEpsilon:
		return models.ZoneWarning
	default:
		return models.ZoneStable
	}
}

// Worsens 该变化是否把属性推向坏端
func Worsens(def models.StatDefinition, delta int) bool {
	if def.Polarity == models.PolarityNegative {
		return delta > 0
	}
	return delta < 0
}

// Factor 返回当前区间与变化方向对应的倍率
func (a *Amplifier) Factor(def models.StatDefinition, current, delta int) (models.Zone, float64) {
	zone := a.Classify(def, current)
	if Worsens(def, delta) {
		return zone, a.cfg.Worsening.For(zone)
	}
	return zone, a.cfg.Recovery.For(zone)
}

// Amplify 安全包络限制 -> 区间放大 -> 边界限制。
// 记录的 AppliedDelta 是 newValue - previousValue，而不是放大后的数值
func (a *Amplifier) Amplify(def models.StatDefinition, current, rawDelta int) models.AppliedStatChange {
	change := models.AppliedStatChange{
		StatID:        def.ID,
		RawDelta:      rawDelta,
		PreviousValue: current,
		NewValue:      current,
	}

	clamped := rawDelta
	if clamped > a.cfg.MaxDelta {
		clamped = a.cfg.MaxDelta
	} else if clamped < -a.cfg.MaxDelta {
		clamped = -a.cfg.MaxDelta
	}
	change.ClampedDelta = clamped
	change.EnvelopeClamped = clamped != rawDelta

	zone, factor := a.Factor(def, current, clamped)
	change.Zone = zone
	change.Factor = factor
	if clamped == 0 {
		return change
	}

	amplified := int(math.Round(float64(clamped) * factor))
	if amplified == 0 || (amplified > 0) != (clamped > 0) {
		// 放大不能改变符号，也不能把非零变化抹成零
		amplified = sign(clamped)
	}
	change.AmplifiedDelta = amplified

	target := current + amplified
	change.NewValue = def.Clamp(target)
	change.BoundClamped = change.NewValue != target
	change.AppliedDelta = change.NewValue - current

	return change
}

// AmplifyAll 处理一回合的全部属性变化。引用不存在的属性时忽略该变化并记录
func (a *Amplifier) AmplifyAll(sc *models.Scenario, stats map[string]int, proposed []models.ProposedStatChange) ([]models.AppliedStatChange, []models.Notice) {
	running := make(map[string]int, len(stats))
	for k, v := range stats {
		running[k] = v
	}

	var applied []models.AppliedStatChange
	var notices []models.Notice
	for _, p := range proposed {
		def, ok := sc.Stat(p.StatID)
		if !ok {
			a.logger.Warn("忽略未定义的属性", zap.String("stat_id", p.StatID), zap.Int("raw_delta", p.RawDelta))
			notices = append(notices, models.Notice{
				Kind:   models.NoticeUnknownReference,
				Field:  "statChanges.scenarioStats",
				Detail: fmt.Sprintf("未定义的属性 %q", p.StatID),
			})
			continue
		}

		current, ok := running[def.ID]
		if !ok {
			current = def.InitialValue
		}
		change := a.Amplify(def, current, p.RawDelta)
		if change.EnvelopeClamped {
			notices = append(notices, models.Notice{
				Kind:   models.NoticeDeltaOutOfEnvelope,
				Field:  "statChanges.scenarioStats." + def.ID,
				Detail: fmt.Sprintf("原始变化 %d 被限制为 %d", change.RawDelta, change.ClampedDelta),
			})
		}
		amplifiedDelta.WithLabelValues(string(change.Zone)).Observe(math.Abs(float64(change.AppliedDelta)))

		running[def.ID] = change.NewValue
		applied = append(applied, change)
	}
	return applied, notices
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
