package service

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/habitlog/internal/dateutil"
	"github.com/habitlog/internal/db"
)

// StatsEngine 在聚合器快照上派生只读统计视图，从不修改状态。
// 所有视图只覆盖活跃习惯；软删除的习惯连同其打卡一并剔除。
type StatsEngine struct {
	agg *Aggregator
}

// SeriesPoint 表示完成率序列中的单日数据
type SeriesPoint struct {
	DayKey    string
	Completed int
	Total     int
	Rate      float64
}

// HabitPerformance 表示单个习惯的完成率表现
type HabitPerformance struct {
	Habit          db.Habit
	CompletionRate float64
	LastCheckInDay string
}

// Insights 汇总全局洞察
type Insights struct {
	MostConsistent *HabitPerformance
	LongestStreak  int
	WeeklyAverage  float64
}

// Overview 汇总仪表盘顶部的总量数据
type Overview struct {
	TotalCheckIns   int
	ActiveHabits    int
	ActiveStreakSum int
	BestStreak      int
}

// NewStatsEngine 构造 StatsEngine
func NewStatsEngine(agg *Aggregator) *StatsEngine {
	return &StatsEngine{agg: agg}
}

// CompletionSeries 返回截至今天（含）的 days 天完成率序列，最早的日期在前。
// total 为当前活跃习惯数；total 为 0 时 rate 记 0。
func (e *StatsEngine) CompletionSeries(days int) ([]SeriesPoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("series length must be positive, got %d", days)
	}

	snap := e.agg.Snapshot()
	total := len(snap.Habits)

	// 每日去重：同一习惯一天只计一次
	completedByDay := make(map[string]map[string]struct{})
	for habitID, checkIns := range snap.CheckIns {
		for _, checkIn := range checkIns {
			habitSet, ok := completedByDay[checkIn.DayKey]
			if !ok {
				habitSet = make(map[string]struct{})
				completedByDay[checkIn.DayKey] = habitSet
			}
			habitSet[habitID] = struct{}{}
		}
	}

	series := make([]SeriesPoint, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		key, err := dateutil.AddDays(snap.Today, -offset)
		if err != nil {
			return nil, err
		}

		point := SeriesPoint{DayKey: key, Total: total, Completed: len(completedByDay[key])}
		if total > 0 {
			point.Rate = float64(point.Completed) / float64(total) * 100
		}
		series = append(series, point)
	}

	return series, nil
}

// PerHabitPerformance 返回各活跃习惯的完成率，按完成率降序。
// 完成率 = min(100, 累计打卡数 / 创建以来天数 * 100)；创建当天记 0，避免除零。
func (e *StatsEngine) PerHabitPerformance() ([]HabitPerformance, error) {
	snap := e.agg.Snapshot()

	performances := make([]HabitPerformance, 0, len(snap.Habits))
	for _, habit := range snap.Habits {
		daysSinceCreated, err := dateutil.DaysBetween(dateutil.DayKey(habit.CreatedAt), snap.Today)
		if err != nil {
			return nil, err
		}

		entry := HabitPerformance{Habit: habit}
		if daysSinceCreated > 0 {
			rate := float64(habit.TotalCheckIns) / float64(daysSinceCreated) * 100
			entry.CompletionRate = min(rate, 100)
		}

		for _, checkIn := range snap.CheckIns[habit.ID] {
			if checkIn.DayKey > entry.LastCheckInDay {
				entry.LastCheckInDay = checkIn.DayKey
			}
		}

		performances = append(performances, entry)
	}

	// 并列时按标题、ID 兜底，保证输出稳定
	slices.SortFunc(performances, func(a, b HabitPerformance) int {
		if diff := cmp.Compare(b.CompletionRate, a.CompletionRate); diff != 0 {
			return diff
		}
		if diff := cmp.Compare(a.Habit.Title, b.Habit.Title); diff != 0 {
			return diff
		}
		return cmp.Compare(a.Habit.ID, b.Habit.ID)
	})

	return performances, nil
}

// Insights 派生全局洞察：最稳定的习惯、历史最长连续天数、近一周平均完成率
func (e *StatsEngine) Insights() (*Insights, error) {
	performances, err := e.PerHabitPerformance()
	if err != nil {
		return nil, err
	}

	series, err := e.CompletionSeries(7)
	if err != nil {
		return nil, err
	}

	insights := &Insights{}

	if len(performances) > 0 {
		top := performances[0]
		insights.MostConsistent = &top
	}

	snap := e.agg.Snapshot()
	for _, habit := range snap.Habits {
		if habit.BestStreak > insights.LongestStreak {
			insights.LongestStreak = habit.BestStreak
		}
	}

	sum := 0.0
	for _, point := range series {
		sum += point.Rate
	}
	insights.WeeklyAverage = sum / float64(len(series))

	return insights, nil
}

// Overview 返回总打卡数、活跃习惯数、进行中连续天数之和与最佳纪录
func (e *StatsEngine) Overview() Overview {
	snap := e.agg.Snapshot()

	overview := Overview{ActiveHabits: len(snap.Habits)}
	for _, habit := range snap.Habits {
		overview.TotalCheckIns += habit.TotalCheckIns
		overview.ActiveStreakSum += habit.Streak
		if habit.BestStreak > overview.BestStreak {
			overview.BestStreak = habit.BestStreak
		}
	}

	return overview
}
