package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// 免费档位默认允许的活跃习惯数
const defaultFreeHabitLimit = 3

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr       string
	Port             string
	DatabasePath     string
	SessionSecret    string
	GinMode          string
	FreeHabitLimit   int
	SeedUserEmail    string
	SeedUserPassword string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "habitlog.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "habitlog-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	freeHabitLimit := defaultFreeHabitLimit
	if raw := strings.TrimSpace(os.Getenv("FREE_HABIT_LIMIT")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			freeHabitLimit = parsed
		}
	}

	seedUserEmail := strings.TrimSpace(os.Getenv("SEED_USER_EMAIL"))
	seedUserPassword := strings.TrimSpace(os.Getenv("SEED_USER_PASSWORD"))

	return AppConfig{
		ListenAddr:       listenAddr,
		Port:             port,
		DatabasePath:     databasePath,
		SessionSecret:    sessionSecret,
		GinMode:          ginMode,
		FreeHabitLimit:   freeHabitLimit,
		SeedUserEmail:    seedUserEmail,
		SeedUserPassword: seedUserPassword,
	}
}
