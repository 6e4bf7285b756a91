package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kunal123thakur/job-matching/internal/app"
	"github.com/kunal123thakur/job-matching/internal/config"
	appCoreLogger "github.com/kunal123thakur/job-matching/internal/logger"
	"github.com/kunal123thakur/job-matching/internal/processor"

	"github.com/spf13/cobra"
)

var (
	configPath string
	csvPath    string
	limit      int

	rootCmd = &cobra.Command{
		Use:   "loader",
		Short: "Load internship listings from a CSV export into the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	rootCmd.Flags().StringVarP(&csvPath, "file", "f", "internships.csv", "CSV file with internship listings")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", processor.DefaultLoadLimit, "Maximum number of rows to load")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logCloser, err := appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	log := appCoreLogger.Named("loader")

	f, err := os.Open(csvPath)
	if err != nil {
		log.Error().Err(err).Str("file", csvPath).Msg("打开 CSV 失败")
		return err
	}
	defer f.Close()

	listings, err := processor.ReadListingsCSV(f, limit)
	if err != nil {
		log.Error().Err(err).Str("file", csvPath).Msg("解析 CSV 失败")
		return err
	}

	rt, err := app.Build(ctx, cfg, app.WithoutResumeParsing())
	if err != nil {
		log.Error().Err(err).Msg("初始化服务依赖失败")
		return err
	}
	defer rt.Close()

	if rt.Relay != nil {
		rt.Relay.Start(ctx)
		defer rt.Relay.Stop()
	}

	report := processor.LoadListings(ctx, rt.Catalog, listings)
	for _, e := range report.Errors {
		log.Warn().Err(e).Msg("跳过岗位")
	}
	log.Info().
		Str("file", csvPath).
		Int("rows", len(listings)).
		Int("loaded", report.Loaded).
		Int("failed", report.Failed).
		Msg("岗位导入完成")

	if report.Loaded == 0 && len(listings) > 0 {
		return fmt.Errorf("全部 %d 条岗位导入失败", report.Failed)
	}
	return nil
}
