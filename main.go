package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/unicdn/internal/config"
	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/engine"
	"github.com/any-hub/unicdn/internal/logging"
	"github.com/any-hub/unicdn/internal/server"
	"github.com/any-hub/unicdn/internal/server/routes"
	"github.com/any-hub/unicdn/internal/syncer"
	"github.com/any-hub/unicdn/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	once        bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["resources"] = len(cfg.Resources)
		fields["provider"] = cfg.Downloader.Provider
		fields["credentials"] = cfg.Downloader.AuthMode()
		fields["version_strategy"] = cfg.Global.VersionStrategy
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序：配置 → 日志 → Downloader → 缓存引擎 → 资源注册表 → 同步器/Fiber server。
	d, err := newDownloader(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Downloader 失败: %v\n", err)
		return 1
	}

	strategy, err := cfg.Global.NamingStrategy()
	if err != nil {
		fmt.Fprintf(stdErr, "构建版本命名策略失败: %v\n", err)
		return 1
	}

	eng := engine.New(logger)
	if err := eng.Init(ctx, engine.Config{RootDir: cfg.Global.StoragePath, VersionFileName: strategy}, d); err != nil {
		fmt.Fprintf(stdErr, "初始化缓存引擎失败: %v\n", err)
		return 1
	}

	registry, err := server.NewResourceRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建资源注册表失败: %v\n", err)
		return 1
	}

	runner := syncer.New(eng, registry.SyncResources(), syncer.Options{
		Interval:    cfg.Global.SyncInterval.DurationValue(),
		Concurrency: cfg.Global.SyncConcurrency,
		Logger:      logger,
	})

	fields := logging.BaseFields("startup", opts.configPath)
	fields["resources"] = config.ResourceNames(cfg.Resources)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["provider"] = string(d.Provider())
	fields["credentials"] = cfg.Downloader.AuthMode()
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if opts.once {
		report := runner.RunOnce(ctx)
		if err := report.Err(); err != nil {
			fmt.Fprintf(stdErr, "同步失败: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdOut, "同步完成: updated=%d up_to_date=%d\n", report.Updated, report.UpToDate)
		return 0
	}

	go runner.Run(ctx)

	if err := startHTTPServer(ctx, cfg, registry, eng, runner, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("unicdn", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		once       bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 UNICDN_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&once, "once", false, "执行一轮同步后退出，存在失败资源时返回非零退出码")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("UNICDN_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		once:        once,
	}, nil
}

func newDownloader(cfg *config.Config, logger *logrus.Logger) (downloader.Downloader, error) {
	return downloader.New(downloader.Options{
		Provider:       downloader.Provider(cfg.Downloader.Provider),
		BaseURL:        cfg.Downloader.BaseURL,
		Username:       cfg.Downloader.Username,
		Password:       cfg.Downloader.Password,
		Proxy:          cfg.Downloader.Proxy,
		UserAgent:      cfg.Downloader.UserAgent,
		Timeout:        cfg.Global.UpstreamTimeout.DurationValue(),
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		Logger:         logger,
	})
}

func startHTTPServer(ctx context.Context, cfg *config.Config, registry *server.ResourceRegistry, eng *engine.Engine, runner *syncer.Syncer, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterResourceRoutes(app, registry, eng, logger)

	status := routes.StatusOptions{
		Sync:      runner,
		Resources: len(registry.List()),
	}
	if prober, ok := eng.Downloader().(routes.Prober); ok {
		status.Prober = prober
		status.ProbeURL = cfg.Downloader.BaseURL
	}
	routes.RegisterStatusRoutes(app, status)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
