package scenario

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// LoadDir 读取目录下全部 .yaml/.yml 剧本，按ID排序返回
func LoadDir(dir string) ([]*models.Scenario, error) {
	var scenarios []*models.Scenario
	seen := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取剧本 %s 失败: %w", path, err)
		}
		sc, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[sc.ID]; dup {
			return fmt.Errorf("%w: 剧本ID %s 在 %s 和 %s 中重复", models.ErrInvalidScenario, sc.ID, prev, path)
		}
		seen[sc.ID] = path
		scenarios = append(scenarios, sc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

// Parse 解析并校验单个剧本
func Parse(data []byte) (*models.Scenario, error) {
	var sc models.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidScenario, err)
	}
	normalize(&sc)
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// normalize 补全创作者省略的默认值
func normalize(sc *models.Scenario) {
	for i := range sc.Stats {
		if sc.Stats[i].DisplayName == "" {
			sc.Stats[i].DisplayName = sc.Stats[i].ID
		}
		if sc.Stats[i].Polarity == "" {
			sc.Stats[i].Polarity = models.PolarityPositive
		}
	}
	for i := range sc.Flags {
		if sc.Flags[i].Kind == "" {
			sc.Flags[i].Kind = models.FlagBoolean
		}
	}
}

// Validate 定义层面的不变量。条件引用未定义的属性或旗标不算错误，运行时按不满足处理
func Validate(sc *models.Scenario) error {
	if sc.ID == "" {
		return fmt.Errorf("%w: 缺少剧本ID", models.ErrInvalidScenario)
	}
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: 剧本 %s: %s", models.ErrInvalidScenario, sc.ID, fmt.Sprintf(format, args...))
	}

	if len(sc.Stats) == 0 {
		return invalid("至少需要一个属性")
	}
	stats := make(map[string]bool, len(sc.Stats))
	for _, d := range sc.Stats {
		if d.ID == "" {
			return invalid("属性缺少ID")
		}
		if stats[d.ID] {
			return invalid("属性ID %s 重复", d.ID)
		}
		stats[d.ID] = true
		if d.Min >= d.Max {
			return invalid("属性 %s 的 min 必须小于 max", d.ID)
		}
		if !d.InRange(d.InitialValue) {
			return invalid("属性 %s 的初始值 %d 不在 [%d, %d] 内", d.ID, d.InitialValue, d.Min, d.Max)
		}
		if d.Polarity != models.PolarityPositive && d.Polarity != models.PolarityNegative {
			return invalid("属性 %s 的极性 %q 无效", d.ID, d.Polarity)
		}
	}

	flags := make(map[string]bool, len(sc.Flags))
	for _, f := range sc.Flags {
		if f.Name == "" {
			return invalid("旗标缺少名称")
		}
		if flags[f.Name] {
			return invalid("旗标 %s 重复", f.Name)
		}
		flags[f.Name] = true
		if f.Kind != models.FlagBoolean && f.Kind != models.FlagCount {
			return invalid("旗标 %s 的类型 %q 无效", f.Name, f.Kind)
		}
	}

	endings := make(map[string]bool, len(sc.Endings))
	timeLimits := 0
	for _, e := range sc.Endings {
		if e.ID == "" {
			return invalid("结局缺少ID")
		}
		if endings[e.ID] {
			return invalid("结局ID %s 重复", e.ID)
		}
		endings[e.ID] = true
		if e.TimeLimit {
			timeLimits++
		}
	}
	if timeLimits > 1 {
		return invalid("最多只能有一个时限结局")
	}

	for _, seed := range sc.Relationships {
		if len(seed.Pair) != 2 || seed.Pair[0] == "" || seed.Pair[1] == "" {
			return invalid("初始关系必须是两个角色")
		}
	}
	if sc.InitialSurvivors < 0 {
		return invalid("初始幸存者不能为负")
	}
	if sc.MaxDays < 0 || sc.MaxAP < 0 {
		return invalid("max_days 与 max_ap 不能为负")
	}
	return nil
}
