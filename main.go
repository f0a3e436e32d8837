package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"skoropad/internal/bootstrap"
	"skoropad/internal/config"
	"skoropad/internal/routes"
	"skoropad/internal/services"
	"skoropad/internal/utils"
)

func main() {
	// 加载配置
	cfg := config.Load()

	if err := utils.InitLogger(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer utils.CloseLogger()
	logger := utils.GetLogger()

	db, err := services.NewDatabase(cfg)
	if err != nil {
		logger.Fatal("数据库初始化失败", "error", err.Error())
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("建表失败", "error", err.Error())
		}
	}

	ctn, err := bootstrap.New(cfg, db)
	if err != nil {
		logger.Fatal("服务装配失败", "error", err.Error())
	}
	defer ctn.Close()

	// 设置路由
	r := routes.SetupRoutes(cfg, ctn)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	go func() {
		logger.Info("服务器启动", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("服务器启动失败", "error", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("正在关闭服务器")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭超时", "error", err.Error())
	}
	logger.Info("服务器已退出")
}
