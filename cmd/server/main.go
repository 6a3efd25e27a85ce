package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/api"
	"github.com/aiwuxian/abyss-engine/internal/config"
	"github.com/aiwuxian/abyss-engine/internal/logger"
	"github.com/aiwuxian/abyss-engine/internal/scenario"
	"github.com/aiwuxian/abyss-engine/internal/services"
	"github.com/aiwuxian/abyss-engine/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	// 加载剧本
	scenarios, err := scenario.LoadDir(cfg.ScenarioDir)
	if err != nil {
		zapLogger.Fatal("加载剧本失败", zap.String("dir", cfg.ScenarioDir), zap.Error(err))
	}
	if len(scenarios) == 0 {
		zapLogger.Fatal("没有可用的剧本", zap.String("dir", cfg.ScenarioDir))
	}

	// 初始化数据库
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		zapLogger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer store.Close()

	// 初始化服务
	llmService := services.NewLLMService(cfg.LLM, zapLogger)
	sessionService, err := services.NewSessionService(store, llmService, scenarios, cfg.Engine, zapLogger)
	if err != nil {
		zapLogger.Fatal("初始化会话服务失败", zap.Error(err))
	}

	handler := api.NewHandler(sessionService, cfg.LLM, zapLogger)

	// 设置Gin路由
	r := gin.Default()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.Register(r.Group("/api"))

	// 启动服务器
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Abyss Engine 启动成功",
		zap.String("addr", addr),
		zap.Int("scenarios", len(scenarios)),
	)

	if err := r.Run(addr); err != nil {
		zapLogger.Fatal("启动服务器失败", zap.Error(err))
	}
}
