package main

import (
	"log"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/logger"
	"github.com/in004/bookscape/internal/server"
)

func main() {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.Init(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	svcs, cleanup := server.Bootstrap(cfg, lg)
	defer cleanup()

	app := iris.New()
	server.RegisterAdminRoutes(app, svcs)

	addr := cfg.AdminServer.Addr()
	lg.Info("admin server listening", zap.String("addr", addr))
	if err := app.Run(iris.Addr(addr)); err != nil {
		lg.Error("admin server stopped", zap.Error(err))
	}
}
