// Package main 数据库迁移入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"lab-data-api/internal/config"
	"lab-data-api/internal/infrastructure/persistence/postgres"
	"lab-data-api/pkg/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	// 迁移需要表属主权限，业务服务应使用不具备 BYPASSRLS 的独立角色连接
	if err := postgres.Migrate(postgres.URL(&cfg.Database.Postgres), *down); err != nil {
		logger.Fatal(ctx, "migration failed", err, "down", *down)
	}
	logger.Info(ctx, "migration finished", "down", *down)
}
