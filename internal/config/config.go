package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// envPrefix 环境变量前缀，如 ABYSS_PORT
const envPrefix = "abyss"

// envOverrides 可由环境变量覆盖的配置项
type envOverrides struct {
	Host        string  `envconfig:"HOST"`
	Port        string  `envconfig:"PORT"`
	DBPath      string  `envconfig:"DB_PATH"`
	APIKey      string  `envconfig:"LLM_API_KEY"`
	APIBase     string  `envconfig:"LLM_API_BASE"`
	Model       string  `envconfig:"LLM_MODEL"`
	Temperature float32 `envconfig:"LLM_TEMPERATURE"`
	LogLevel    string  `envconfig:"LOG_LEVEL"`
	LogEncoding string  `envconfig:"LOG_ENCODING"`
	ScenarioDir string  `envconfig:"SCENARIO_DIR"`
}

// Default 默认配置
func Default() *models.Config {
	return &models.Config{
		Server:   models.ServerConfig{Host: "0.0.0.0", Port: "8080"},
		Database: models.DatabaseConfig{Path: "data/abyss.db"},
		LLM: models.LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.8,
			MaxTokens:   2000,
		},
		Log:         models.LogConfig{Level: "info", Encoding: "json"},
		Engine:      models.DefaultEngineConfig(),
		ScenarioDir: "scenarios",
	}
}

// Load 读取配置文件（不存在时使用默认值），再应用环境变量并校验
func Load(path string) (*models.Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *models.Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("读取环境变量失败: %w", err)
	}

	setString(&cfg.Server.Host, env.Host)
	setString(&cfg.Server.Port, env.Port)
	setString(&cfg.Database.Path, env.DBPath)
	setString(&cfg.LLM.APIKey, env.APIKey)
	setString(&cfg.LLM.APIBase, env.APIBase)
	setString(&cfg.LLM.Model, env.Model)
	setString(&cfg.Log.Level, env.LogLevel)
	setString(&cfg.Log.Encoding, env.LogEncoding)
	setString(&cfg.ScenarioDir, env.ScenarioDir)
	if env.Temperature != 0 {
		cfg.LLM.Temperature = env.Temperature
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate 启动前校验
func Validate(cfg *models.Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("%w: server.port 不能为空", models.ErrInvalidConfig)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("%w: database.path 不能为空", models.ErrInvalidConfig)
	}
	if cfg.ScenarioDir == "" {
		return fmt.Errorf("%w: scenario_dir 不能为空", models.ErrInvalidConfig)
	}
	return cfg.Engine.Validate()
}
