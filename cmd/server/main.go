package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/router"
	"github.com/joho/godotenv"
)

func main() {
	// .env 可选，缺失时直接使用进程环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 预置初始账号（可选）
	if err := db.EnsureUser(cfg.SeedUserEmail, cfg.SeedUserPassword); err != nil {
		log.Fatalf("failed to ensure seed user: %v", err)
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
