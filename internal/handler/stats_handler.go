package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
)

const (
	defaultSeriesDays = 7
	maxSeriesDays     = 365
)

// GetCompletionSeries 返回近 N 天的完成率序列，最早的日期在前
func (a *API) GetCompletionSeries(c *gin.Context) {
	days := defaultSeriesDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxSeriesDays {
			respondError(c, http.StatusBadRequest, "无效的天数")
			return
		}
		days = parsed
	}

	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	series, err := service.NewStatsEngine(agg).CompletionSeries(days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算完成率失败")
		return
	}

	items := make([]gin.H, 0, len(series))
	for _, point := range series {
		items = append(items, gin.H{
			"day_key":   point.DayKey,
			"completed": point.Completed,
			"total":     point.Total,
			"rate":      point.Rate,
		})
	}

	c.JSON(http.StatusOK, gin.H{"days": days, "series": items})
}

// GetPerformance 返回各习惯的完成率排名
func (a *API) GetPerformance(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	performances, err := service.NewStatsEngine(agg).PerHabitPerformance()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算习惯表现失败")
		return
	}

	items := make([]gin.H, 0, len(performances))
	for _, entry := range performances {
		items = append(items, performanceToPayload(entry))
	}

	c.JSON(http.StatusOK, gin.H{"performance": items})
}

// GetInsights 返回全局洞察
func (a *API) GetInsights(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	insights, err := service.NewStatsEngine(agg).Insights()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算洞察失败")
		return
	}

	payload := gin.H{
		"longest_streak": insights.LongestStreak,
		"weekly_average": insights.WeeklyAverage,
	}
	if insights.MostConsistent != nil {
		payload["most_consistent"] = performanceToPayload(*insights.MostConsistent)
	}

	c.JSON(http.StatusOK, payload)
}

// GetOverview 返回仪表盘总量数据
func (a *API) GetOverview(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	overview := service.NewStatsEngine(agg).Overview()
	c.JSON(http.StatusOK, gin.H{
		"total_check_ins":   overview.TotalCheckIns,
		"active_habits":     overview.ActiveHabits,
		"active_streak_sum": overview.ActiveStreakSum,
		"best_streak":       overview.BestStreak,
	})
}

func performanceToPayload(entry service.HabitPerformance) gin.H {
	item := gin.H{
		"habit":           habitToPayload(entry.Habit),
		"completion_rate": entry.CompletionRate,
	}
	if entry.LastCheckInDay != "" {
		item["last_check_in_day"] = entry.LastCheckInDay
	}
	return item
}
