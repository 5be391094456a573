package service

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/habitlog/internal/dateutil"
	"github.com/habitlog/internal/db"
)

var (
	// ErrHabitNotFound 在习惯不存在、不属于当前用户或已软删除时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrAlreadyCheckedIn 在同一习惯同一天重复打卡时返回
	ErrAlreadyCheckedIn = errors.New("already checked in for this day")
	// ErrHabitLimitReached 在免费档位活跃习惯数达到上限时返回
	ErrHabitLimitReached = errors.New("habit limit reached")
	// ErrInvalidTitle 当标题去除空白后不足 2 个字符时返回
	ErrInvalidTitle = errors.New("invalid habit title")
)

// Store 抽象远端持久化协作者。失败视为可由调用方重试，聚合器内部不做重试。
type Store interface {
	CreateHabit(habit *db.Habit) error
	UpdateHabit(habit *db.Habit) error
	QueryHabits(ownerID string) ([]db.Habit, error)
	CreateCheckIn(checkIn *db.CheckIn) error
	DeleteCheckIn(id string) error
	QueryCheckIns(ownerID string) ([]db.CheckIn, error)
}

// EntitlementProvider 返回用户的付费状态，仅用于免费档位习惯上限判断
type EntitlementProvider interface {
	IsPremium(userID string) (bool, error)
}

// EntitlementFunc 将普通函数适配为 EntitlementProvider
type EntitlementFunc func(userID string) (bool, error)

// IsPremium 实现 EntitlementProvider
func (f EntitlementFunc) IsPremium(userID string) (bool, error) {
	return f(userID)
}

// HabitInput 定义创建习惯时可配置字段
type HabitInput struct {
	Title        string
	Icon         string
	ReminderTime string
}

// HabitPatch 定义编辑习惯时的可变字段，nil 表示保持不变。
// 派生计数不可通过编辑修改。
type HabitPatch struct {
	Title        *string
	Icon         *string
	ReminderTime *string
}

// Progress 表示今日完成度
type Progress struct {
	Completed int
	Total     int
}

// Snapshot 是聚合器状态的一致性只读拷贝，供统计引擎在锁外使用
type Snapshot struct {
	Today    string
	Habits   []db.Habit
	CheckIns map[string][]db.CheckIn
}

// Aggregator 持有单个用户的习惯与打卡状态。
// 同一用户的全部写操作经由互斥锁串行化：计数更新先读后写，并发会损坏
// Streak/BestStreak/TotalCheckIns。本地变更只在远端确认成功后提交，
// 远端失败时回滚并把错误交还调用方。
type Aggregator struct {
	mu           sync.Mutex
	ownerID      string
	store        Store
	entitlements EntitlementProvider
	reminders    ReminderScheduler
	freeLimit    int
	now          func() time.Time

	habits   map[string]*db.Habit
	checkIns map[string][]db.CheckIn
}

// NewAggregator 从存储加载用户状态并构造聚合器
func NewAggregator(ownerID string, store Store, entitlements EntitlementProvider, reminders ReminderScheduler, freeLimit int) (*Aggregator, error) {
	habits, err := store.QueryHabits(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load habits: %w", err)
	}

	checkIns, err := store.QueryCheckIns(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load check-ins: %w", err)
	}

	agg := &Aggregator{
		ownerID:      ownerID,
		store:        store,
		entitlements: entitlements,
		reminders:    reminders,
		freeLimit:    freeLimit,
		now:          time.Now,
		habits:       make(map[string]*db.Habit, len(habits)),
		checkIns:     make(map[string][]db.CheckIn),
	}

	for i := range habits {
		habit := habits[i]
		agg.habits[habit.ID] = &habit
	}
	for _, checkIn := range checkIns {
		agg.checkIns[checkIn.HabitID] = append(agg.checkIns[checkIn.HabitID], checkIn)
	}

	return agg, nil
}

// OwnerID 返回聚合器归属的用户
func (a *Aggregator) OwnerID() string {
	return a.ownerID
}

// RecordCheckIn 为指定习惯打卡。dayKey 为空时默认今天（UTC）。
// 幂等检查在任何变更之前完成，重复打卡不产生任何副作用。
func (a *Aggregator) RecordCheckIn(habitID, dayKey string) (*db.CheckIn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	habit, err := a.activeHabit(habitID)
	if err != nil {
		return nil, err
	}

	today := dateutil.DayKey(a.now())
	if dayKey == "" {
		dayKey = today
	} else if _, err := dateutil.ParseDayKey(dayKey); err != nil {
		return nil, err
	}

	for _, existing := range a.checkIns[habitID] {
		if existing.DayKey == dayKey {
			return nil, ErrAlreadyCheckedIn
		}
	}

	record := &db.CheckIn{
		HabitID:   habitID,
		OwnerID:   a.ownerID,
		DayKey:    dayKey,
		Timestamp: a.now(),
	}

	if err := a.store.CreateCheckIn(record); err != nil {
		if errors.Is(err, db.ErrDuplicateCheckIn) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("commit check-in: %w", err)
	}

	// 从完整历史重新推导连续天数，而不是在旧值上 +1：
	// 跳过一天后客户端残留的旧计数会让直接递增产生漂移
	keys := make([]string, 0, len(a.checkIns[habitID])+1)
	for _, existing := range a.checkIns[habitID] {
		keys = append(keys, existing.DayKey)
	}
	keys = append(keys, dayKey)

	streak, err := CurrentStreak(keys, today)
	if err != nil {
		_ = a.store.DeleteCheckIn(record.ID)
		return nil, err
	}

	updated := *habit
	updated.Streak = streak
	if streak > updated.BestStreak {
		updated.BestStreak = streak
	}
	updated.TotalCheckIns++

	if err := a.store.UpdateHabit(&updated); err != nil {
		// 计数提交失败时补偿删除刚写入的打卡，本地状态保持不变
		_ = a.store.DeleteCheckIn(record.ID)
		return nil, fmt.Errorf("commit habit counters: %w", err)
	}

	*habit = updated
	a.checkIns[habitID] = append(a.checkIns[habitID], *record)

	return record, nil
}

// AddHabit 创建新习惯，计数全部清零。
// 非付费用户活跃习惯数不得超过 freeLimit，付费状态由权益提供者给出。
func (a *Aggregator) AddHabit(input HabitInput) (*db.Habit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	title := strings.TrimSpace(input.Title)
	if utf8.RuneCountInString(title) < 2 {
		return nil, ErrInvalidTitle
	}

	reminder := strings.TrimSpace(input.ReminderTime)
	if reminder != "" {
		normalized, err := dateutil.ParseTimeOfDay(reminder)
		if err != nil {
			return nil, err
		}
		reminder = normalized
	}

	premium, err := a.entitlements.IsPremium(a.ownerID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if !premium && a.activeCount() >= a.freeLimit {
		return nil, ErrHabitLimitReached
	}

	habit := &db.Habit{
		OwnerID:      a.ownerID,
		Title:        title,
		Icon:         strings.TrimSpace(input.Icon),
		ReminderTime: reminder,
		IsActive:     true,
	}

	if err := a.store.CreateHabit(habit); err != nil {
		return nil, fmt.Errorf("commit habit: %w", err)
	}

	local := *habit
	a.habits[habit.ID] = &local

	if reminder != "" {
		a.reminders.Schedule(habit.ID, reminder)
	}

	return habit, nil
}

// EditHabit 更新标题、图标或提醒时间，不触碰任何计数
func (a *Aggregator) EditHabit(habitID string, patch HabitPatch) (*db.Habit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	habit, err := a.activeHabit(habitID)
	if err != nil {
		return nil, err
	}

	updated := *habit

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if utf8.RuneCountInString(title) < 2 {
			return nil, ErrInvalidTitle
		}
		updated.Title = title
	}
	if patch.Icon != nil {
		updated.Icon = strings.TrimSpace(*patch.Icon)
	}
	if patch.ReminderTime != nil {
		reminder := strings.TrimSpace(*patch.ReminderTime)
		if reminder != "" {
			normalized, err := dateutil.ParseTimeOfDay(reminder)
			if err != nil {
				return nil, err
			}
			reminder = normalized
		}
		updated.ReminderTime = reminder
	}

	if err := a.store.UpdateHabit(&updated); err != nil {
		return nil, fmt.Errorf("commit habit: %w", err)
	}

	previousReminder := habit.ReminderTime
	*habit = updated

	if updated.ReminderTime != previousReminder {
		if updated.ReminderTime == "" {
			a.reminders.Cancel(habitID)
		} else {
			a.reminders.Schedule(habitID, updated.ReminderTime)
		}
	}

	result := *habit
	return &result, nil
}

// DeleteHabit 软删除习惯：仅标记 IsActive=false，打卡记录保留可审计
func (a *Aggregator) DeleteHabit(habitID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	habit, err := a.activeHabit(habitID)
	if err != nil {
		return err
	}

	updated := *habit
	updated.IsActive = false

	if err := a.store.UpdateHabit(&updated); err != nil {
		return fmt.Errorf("commit habit: %w", err)
	}

	*habit = updated
	a.reminders.Cancel(habitID)

	return nil
}

// TodaysProgress 统计活跃习惯中今天已打卡的数量
func (a *Aggregator) TodaysProgress() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	today := dateutil.DayKey(a.now())

	progress := Progress{}
	for id, habit := range a.habits {
		if !habit.IsActive {
			continue
		}
		progress.Total++
		for _, checkIn := range a.checkIns[id] {
			if checkIn.DayKey == today {
				progress.Completed++
				break
			}
		}
	}

	return progress
}

// CheckInHistory 返回习惯的全部打卡记录，软删除的习惯同样可查（审计用途）
func (a *Aggregator) CheckInHistory(habitID string) ([]db.CheckIn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	habit, ok := a.habits[habitID]
	if !ok || habit.OwnerID != a.ownerID {
		return nil, ErrHabitNotFound
	}

	history := make([]db.CheckIn, len(a.checkIns[habitID]))
	copy(history, a.checkIns[habitID])
	return history, nil
}

// Habit 返回单个活跃习惯的拷贝
func (a *Aggregator) Habit(habitID string) (*db.Habit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	habit, err := a.activeHabit(habitID)
	if err != nil {
		return nil, err
	}

	result := *habit
	return &result, nil
}

// Habits 返回全部活跃习惯的拷贝，按创建时间升序
func (a *Aggregator) Habits() []db.Habit {
	snap := a.Snapshot()
	return snap.Habits
}

// Snapshot 在锁内拷贝活跃习惯及其打卡记录，读方可在锁外安全使用
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Today:    dateutil.DayKey(a.now()),
		Habits:   make([]db.Habit, 0, len(a.habits)),
		CheckIns: make(map[string][]db.CheckIn, len(a.checkIns)),
	}

	for id, habit := range a.habits {
		if !habit.IsActive {
			continue
		}
		snap.Habits = append(snap.Habits, *habit)

		checkIns := make([]db.CheckIn, len(a.checkIns[id]))
		copy(checkIns, a.checkIns[id])
		snap.CheckIns[id] = checkIns
	}

	sortHabitsByCreation(snap.Habits)

	return snap
}

func sortHabitsByCreation(habits []db.Habit) {
	slices.SortFunc(habits, func(x, y db.Habit) int {
		if diff := x.CreatedAt.Compare(y.CreatedAt); diff != 0 {
			return diff
		}
		return cmp.Compare(x.ID, y.ID)
	})
}

func (a *Aggregator) activeHabit(habitID string) (*db.Habit, error) {
	habit, ok := a.habits[habitID]
	if !ok || !habit.IsActive || habit.OwnerID != a.ownerID {
		return nil, ErrHabitNotFound
	}
	return habit, nil
}

func (a *Aggregator) activeCount() int {
	count := 0
	for _, habit := range a.habits {
		if habit.IsActive {
			count++
		}
	}
	return count
}
