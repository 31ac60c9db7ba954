package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/user/tvtracker/internal/config"
	"github.com/user/tvtracker/internal/handler"
	"github.com/user/tvtracker/internal/logging"
	"github.com/user/tvtracker/internal/middleware"
	"github.com/user/tvtracker/internal/repository"
	"github.com/user/tvtracker/internal/router"
	"github.com/user/tvtracker/internal/service"
)

func main() {
	// 加载环境变量
	envErr := godotenv.Load()

	// 加载配置
	cfg := config.Load()
	logger := logging.New("tvtracker", cfg.LogLevel, cfg.LogFile)
	if envErr != nil {
		logger.Info("未找到 .env 文件，使用系统环境变量")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("配置校验失败", "error", err)
		os.Exit(1)
	}

	// 初始化数据库
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("数据库连接失败", "error", err)
		os.Exit(1)
	}

	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	// 初始化仓库
	repos := repository.NewRepositories(db)

	ctx := context.Background()

	// 初始化服务
	tmdb := service.NewTMDBClient(cfg.TMDB.Token,
		service.WithBaseURL(cfg.TMDB.BaseURL),
		service.WithHTTPClient(&http.Client{Timeout: cfg.TMDB.Timeout}),
		service.WithRateLimit(cfg.TMDB.RateLimit, cfg.TMDB.RateWindow),
		service.WithRateWait(cfg.TMDB.RateWait),
		service.WithLogger(logger.Named("tmdb")),
	)
	credits := service.NewCreditService(tmdb, repos, cfg.TMDB.ImageBaseURL, cfg.Discovery.CastLimit, logger.Named("credits"))

	state, err := service.LoadDiscoveryState(ctx, repos.Property)
	if err != nil {
		logger.Error("读取抓取进度失败", "error", err)
		os.Exit(1)
	}
	discovery := service.NewDiscoveryService(tmdb, repos, credits, state,
		cfg.TMDB.ImageBaseURL, cfg.Discovery.FetchWorkers, logger.Named("discovery"))

	policy := service.NewErrorPolicy(cfg.Discovery.ErrorThreshold, cfg.Discovery.Cooldown, nil)
	gate := service.NewCapacityGate(cfg.Discovery.Enabled, cfg.DBMaxSizeMB, repos)
	collector := service.NewCollector(discovery, gate, policy, cfg.Discovery.Interval, logger.Named("collector"))

	// 后台同步类型后启动定时抓取，不阻塞 HTTP 服务
	p := state.Snapshot()
	logger.Info("恢复抓取进度", "pages_explored", p.PagesExplored, "total_pages", p.TotalPages)
	collector.Start(ctx)

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger.Named("http")))
	r.Use(middleware.Logger(logger.Named("http")))

	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	h := handler.NewHandler(discovery, collector, credits, repos, logger.Named("http"))
	router.RegisterRoutes(r, h)

	// 配置 HTTP 服务器
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second, // 按需补全角色会请求上游
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		logger.Info("服务器启动", "addr", "http://localhost:"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服务器启动失败", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器强制关闭", "error", err)
	}
	collector.Stop(shutdownCtx)

	logger.Info("服务器已退出")
}
