package cmd

import (
	"context"
	"time"

	"souniq-server/config"
	"souniq-server/gateway"
	"souniq-server/logger"
	"souniq-server/routers"
	"souniq-server/routers/api"
	"souniq-server/service"
	"souniq-server/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncMode    bool
	concurrency int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动流水线 HTTP 服务",
	Long:  `启动歌曲处理流水线的 HTTP 服务：上传、分离、MIDI 转换、音乐生成`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&syncMode, "sync", false, "同步模式：请求线程内直接执行任务，不走队列")
	serveCmd.Flags().IntVar(&concurrency, "concurrency", 2, "队列消费者并发数")
	rootCmd.AddCommand(serveCmd)
}

func runServer() {
	config.InitConfig(cfgFile)
	cfg := config.AppConfig

	logger.InitLogger(logger.Config{
		Level:      cfg.Log.Level,
		OutputPath: cfg.Log.OutputPath,
	})
	defer logger.Sync()

	st, err := store.Connect(cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	artifacts, err := service.NewMinioStore(cfg)
	if err != nil {
		logger.Fatal("MinIO 初始化失败", zap.Error(err))
	}

	gw := gateway.New(cfg)
	exec := service.NewExecutor(st, artifacts, gw, cfg)

	var runner service.Runner
	if syncMode {
		logger.Info("同步模式启动，任务在请求线程内执行")
		runner = &service.DirectRunner{Exec: exec}
	} else {
		qr := service.NewQueueRunner(exec, cfg)
		qr.StartProcessor(concurrency)
		defer qr.Close()
		runner = qr
	}

	orch := service.NewOrchestrator(st, runner, cfg)

	// 失败任务定期清理
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := orch.Sweep(context.Background()); err != nil {
				logger.Error("清理失败任务出错", zap.Error(err))
			}
		}
	}()

	api.Setup(st, orch, artifacts, cfg)
	r := routers.InitRouter()

	logger.Info("服务启动", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("服务启动失败", zap.Error(err))
	}
}
