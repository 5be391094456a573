package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("habitlog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := handler.NewAPI(db.DB, cfg.FreeHabitLimit)

	public := r.Group("/api")
	{
		public.POST("/register", api.Register)
		public.POST("/login", api.Login)
		public.POST("/logout", api.Logout)
	}

	// 需要认证的路由
	auth := r.Group("/api")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/habits", api.ListHabits)
		auth.POST("/habits", api.CreateHabit)
		auth.GET("/habits/:id", api.GetHabit)
		auth.PUT("/habits/:id", api.UpdateHabit)
		auth.DELETE("/habits/:id", api.DeleteHabit)

		auth.POST("/habits/:id/checkins", api.RecordCheckIn)
		auth.GET("/habits/:id/checkins", api.ListCheckIns)

		auth.GET("/progress/today", api.GetTodaysProgress)

		auth.GET("/stats/series", api.GetCompletionSeries)
		auth.GET("/stats/performance", api.GetPerformance)
		auth.GET("/stats/insights", api.GetInsights)
		auth.GET("/stats/overview", api.GetOverview)

		auth.PUT("/profile/premium", api.SetPremium)
	}

	return r
}
