package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认查找 ./configs/example.yaml")
	flag.Parse()

	// 1) 本地开发可用 .env 提供 WALLBOX_* 变量，文件不存在时忽略
	_ = godotenv.Load()

	// 2) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 3) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
