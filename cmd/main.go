package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kunal123thakur/job-matching/internal/api/handler"
	"github.com/kunal123thakur/job-matching/internal/api/router"
	"github.com/kunal123thakur/job-matching/internal/app"
	"github.com/kunal123thakur/job-matching/internal/config"
	appCoreLogger "github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"        //nolint:gochecknoglobals
	serviceName = "job-matching" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Str("path", configPath).Msg("加载配置失败")
	}

	logCloser, err := appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化日志失败")
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	appCoreLogger.Info().Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcName := cfg.Tracing.ServiceName
	if svcName == "" {
		svcName = serviceName
	}
	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    svcName,
		ServiceVersion: version,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化服务依赖失败")
	}
	defer rt.Close()

	if rt.Relay != nil {
		rt.Relay.Start(ctx)
		appCoreLogger.Info().Msg("消息中继服务已启动")
	}

	tracer, tracingCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB<<20),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracingCfg))

	router.RegisterRoutes(h, router.Handlers{
		Matching: handler.NewMatchingHandler(rt.Pipeline),
		Catalog:  handler.NewCatalogHandler(rt.Catalog),
	}, cfg.Server.CORSOrigins)
	appCoreLogger.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			appCoreLogger.Error().Err(err).Msg("HTTP 服务器退出")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appCoreLogger.Info().Msg("接收到终止信号，正在优雅退出...")

	if rt.Relay != nil {
		rt.Relay.Stop()
		appCoreLogger.Info().Msg("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		appCoreLogger.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appCoreLogger.Warn().Err(err).Msg("关闭链路追踪失败")
	}
	appCoreLogger.Info().Msg("优雅退出完成")
}
