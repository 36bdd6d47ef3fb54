package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"volt-trader/internal/agent"
	"volt-trader/internal/config"
	"volt-trader/internal/engine"
	"volt-trader/internal/indicator"
	"volt-trader/internal/log"
	"volt-trader/internal/monitor"
	"volt-trader/internal/risk"
	signalgen "volt-trader/internal/signal"
	"volt-trader/internal/store"
	"volt-trader/internal/volatility"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	monitorSvc, err := monitor.NewService(sqliteStore, logger)
	if err != nil {
		logger.Error("初始化监控服务失败", zap.Error(err))
		os.Exit(1)
	}

	var network *agent.Network
	if cfg.Agents.Enabled {
		thinker, err := agent.NewOpenAIThinker(cfg.OpenAI, cfg.Agents.HistoryLimit, logger)
		if err != nil {
			logger.Error("初始化智能体推理后端失败", zap.Error(err))
			os.Exit(1)
		}
		network = agent.NewNetwork(thinker, logger)
	}

	tradingEngine, err := engine.New(cfg, engine.Dependencies{
		Calculator: indicator.NewCalculator(),
		Generator:  signalgen.NewGenerator(cfg.Signal, logger),
		Risk:       risk.NewManager(cfg.Risk, logger),
		Network:    network,
		Volatility: volatility.NewCollector(cfg.Volatility, logger),
		Monitor:    monitorSvc,
	}, logger)
	if err != nil {
		logger.Error("创建交易引擎失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tradingEngine.Initialize(ctx); err != nil {
		logger.Error("交易引擎初始化失败", zap.Error(err))
		os.Exit(1)
	}
	if err := tradingEngine.Start(ctx); err != nil {
		logger.Error("启动交易引擎失败", zap.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("收到退出信号，开始停机")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tradingEngine.Stop(shutdownCtx); err != nil {
		logger.Error("交易引擎停机异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
