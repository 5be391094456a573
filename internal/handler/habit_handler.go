package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/dateutil"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

type habitPayload struct {
	Title        string `json:"title"`
	Icon         string `json:"icon"`
	ReminderTime string `json:"reminder_time"`
}

type habitPatchPayload struct {
	Title        *string `json:"title"`
	Icon         *string `json:"icon"`
	ReminderTime *string `json:"reminder_time"`
}

type checkInPayload struct {
	DayKey string `json:"day_key"` // 2006-01-02，缺省为今天（UTC）
}

// aggregatorFor 取出当前登录用户的聚合器
func (a *API) aggregatorFor(c *gin.Context) (*service.Aggregator, bool) {
	agg, err := a.sessions.Aggregator(currentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "加载用户数据失败")
		return nil, false
	}
	return agg, true
}

// ListHabits 返回当前用户的活跃习惯列表
func (a *API) ListHabits(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	habits := agg.Habits()
	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情
func (a *API) GetHabit(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	habit, err := agg.Habit(c.Param("id"))
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	habit, err := agg.AddHabit(service.HabitInput{
		Title:        payload.Title,
		Icon:         payload.Icon,
		ReminderTime: payload.ReminderTime,
	})
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯的标题/图标/提醒时间
func (a *API) UpdateHabit(c *gin.Context) {
	var payload habitPatchPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	habit, err := agg.EditHabit(c.Param("id"), service.HabitPatch{
		Title:        payload.Title,
		Icon:         payload.Icon,
		ReminderTime: payload.ReminderTime,
	})
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 软删除习惯
func (a *API) DeleteHabit(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	if err := agg.DeleteHabit(c.Param("id")); err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RecordCheckIn 为习惯打卡
func (a *API) RecordCheckIn(c *gin.Context) {
	var payload checkInPayload
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "请求参数不合法") {
			return
		}
	}

	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	checkIn, err := agg.RecordCheckIn(c.Param("id"), payload.DayKey)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"check_in": checkInToPayload(*checkIn)})
}

// ListCheckIns 返回习惯的打卡历史，软删除的习惯同样可查
func (a *API) ListCheckIns(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	history, err := agg.CheckInHistory(c.Param("id"))
	if err != nil {
		handleHabitError(c, err)
		return
	}

	items := make([]gin.H, 0, len(history))
	for _, checkIn := range history {
		items = append(items, checkInToPayload(checkIn))
	}

	c.JSON(http.StatusOK, gin.H{"check_ins": items})
}

// GetTodaysProgress 返回今日完成度
func (a *API) GetTodaysProgress(c *gin.Context) {
	agg, ok := a.aggregatorFor(c)
	if !ok {
		return
	}

	progress := agg.TodaysProgress()
	c.JSON(http.StatusOK, gin.H{
		"completed": progress.Completed,
		"total":     progress.Total,
	})
}

func habitToPayload(habit db.Habit) gin.H {
	item := gin.H{
		"id":              habit.ID,
		"title":           habit.Title,
		"icon":            habit.Icon,
		"is_active":       habit.IsActive,
		"streak":          habit.Streak,
		"best_streak":     habit.BestStreak,
		"total_check_ins": habit.TotalCheckIns,
		"created_at":      habit.CreatedAt.UTC().Format(time.RFC3339),
	}

	if habit.ReminderTime != "" {
		item["reminder_time"] = habit.ReminderTime
	}

	return item
}

func checkInToPayload(checkIn db.CheckIn) gin.H {
	return gin.H{
		"id":        checkIn.ID,
		"habit_id":  checkIn.HabitID,
		"day_key":   checkIn.DayKey,
		"timestamp": checkIn.Timestamp.UTC().Format(time.RFC3339),
	}
}

func handleHabitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrAlreadyCheckedIn):
		respondError(c, http.StatusConflict, "今天已打过卡")
	case errors.Is(err, service.ErrHabitLimitReached):
		respondError(c, http.StatusForbidden, "免费账户最多保留 3 个习惯，升级后可解除限制")
	case errors.Is(err, service.ErrInvalidTitle):
		respondError(c, http.StatusBadRequest, "标题至少 2 个字符")
	case errors.Is(err, dateutil.ErrInvalidDate):
		respondError(c, http.StatusBadRequest, "无效的日期")
	case errors.Is(err, dateutil.ErrInvalidTimeOfDay):
		respondError(c, http.StatusBadRequest, "无效的提醒时间")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
