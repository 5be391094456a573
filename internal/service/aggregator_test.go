package service

import (
	"errors"
	"testing"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOwnerID = "owner-1"

// 固定参考时刻，today 为 2024-05-03（UTC）
var testNow = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)

type fakeEntitlements struct {
	premium bool
	err     error
}

func (f *fakeEntitlements) IsPremium(string) (bool, error) {
	return f.premium, f.err
}

// flakyStore 包装真实存储，可注入计数更新失败，并记录补偿删除
type flakyStore struct {
	Store
	failUpdateHabit bool
	deletedCheckIns []string
}

func (s *flakyStore) UpdateHabit(habit *db.Habit) error {
	if s.failUpdateHabit {
		return errors.New("remote unavailable")
	}
	return s.Store.UpdateHabit(habit)
}

func (s *flakyStore) DeleteCheckIn(id string) error {
	s.deletedCheckIns = append(s.deletedCheckIns, id)
	return s.Store.DeleteCheckIn(id)
}

func setupServiceTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.Habit{}, &db.CheckIn{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func newTestAggregator(t *testing.T, store Store, entitlements EntitlementProvider) (*Aggregator, *MemoryReminderScheduler) {
	t.Helper()

	reminders := NewMemoryReminderScheduler()
	agg, err := NewAggregator(testOwnerID, store, entitlements, reminders, 3)
	if err != nil {
		t.Fatalf("NewAggregator returned error: %v", err)
	}
	agg.now = func() time.Time { return testNow }
	return agg, reminders
}

func TestRecordCheckInUpdatesCounters(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "晨跑"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	checkIn, err := agg.RecordCheckIn(habit.ID, "")
	if err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}
	if checkIn.DayKey != "2024-05-03" {
		t.Fatalf("expected day key 2024-05-03, got %s", checkIn.DayKey)
	}
	if checkIn.ID == "" {
		t.Fatal("expected check-in to have ID")
	}

	updated, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if updated.Streak != 1 || updated.BestStreak != 1 || updated.TotalCheckIns != 1 {
		t.Fatalf("unexpected counters: streak=%d best=%d total=%d", updated.Streak, updated.BestStreak, updated.TotalCheckIns)
	}
}

func TestRecordCheckInIdempotent(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "冥想"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	if _, err := agg.RecordCheckIn(habit.ID, ""); err != nil {
		t.Fatalf("first RecordCheckIn returned error: %v", err)
	}

	if _, err := agg.RecordCheckIn(habit.ID, ""); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	// 失败的调用不得留下部分效果
	updated, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if updated.Streak != 1 || updated.BestStreak != 1 || updated.TotalCheckIns != 1 {
		t.Fatalf("counters changed after duplicate: streak=%d best=%d total=%d", updated.Streak, updated.BestStreak, updated.TotalCheckIns)
	}
}

func TestRecordCheckInRecomputesAfterGap(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "写日记"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	// 三天前和前天打过卡，距今天存在断档
	for _, dayKey := range []string{"2024-04-30", "2024-05-01"} {
		if _, err := agg.RecordCheckIn(habit.ID, dayKey); err != nil {
			t.Fatalf("RecordCheckIn(%s) returned error: %v", dayKey, err)
		}
	}

	stale, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if stale.Streak != 0 {
		t.Fatalf("expected streak 0 after gap, got %d", stale.Streak)
	}
	if stale.TotalCheckIns != 2 {
		t.Fatalf("expected total 2, got %d", stale.TotalCheckIns)
	}

	// 今天补卡：重新推导应得 1，而不是在旧值上递增
	if _, err := agg.RecordCheckIn(habit.ID, ""); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}

	updated, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if updated.Streak != 1 {
		t.Fatalf("expected recomputed streak 1, got %d", updated.Streak)
	}
	if updated.TotalCheckIns != 3 {
		t.Fatalf("expected total 3, got %d", updated.TotalCheckIns)
	}
}

func TestRecordCheckInBestStreakMonotonic(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "阅读"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	for _, dayKey := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		if _, err := agg.RecordCheckIn(habit.ID, dayKey); err != nil {
			t.Fatalf("RecordCheckIn(%s) returned error: %v", dayKey, err)
		}

		current, err := agg.Habit(habit.ID)
		if err != nil {
			t.Fatalf("Habit returned error: %v", err)
		}
		if current.BestStreak < current.Streak {
			t.Fatalf("invariant violated: best=%d < streak=%d", current.BestStreak, current.Streak)
		}
		if current.TotalCheckIns < current.Streak {
			t.Fatalf("invariant violated: total=%d < streak=%d", current.TotalCheckIns, current.Streak)
		}
	}

	updated, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if updated.Streak != 3 || updated.BestStreak != 3 {
		t.Fatalf("expected streak and best 3, got streak=%d best=%d", updated.Streak, updated.BestStreak)
	}
}

func TestRecordCheckInUnknownHabit(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	if _, err := agg.RecordCheckIn("missing", ""); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestRecordCheckInRollbackOnStoreFailure(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	store := &flakyStore{Store: db.NewStore(db.DB)}
	agg, _ := newTestAggregator(t, store, &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "健身"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	store.failUpdateHabit = true
	if _, err := agg.RecordCheckIn(habit.ID, ""); err == nil {
		t.Fatal("expected error when counter commit fails")
	}

	// 本地状态保持不变，远端打卡已补偿删除
	if len(store.deletedCheckIns) != 1 {
		t.Fatalf("expected 1 compensating delete, got %d", len(store.deletedCheckIns))
	}

	unchanged, err := agg.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if unchanged.Streak != 0 || unchanged.TotalCheckIns != 0 {
		t.Fatalf("local state mutated after failed commit: streak=%d total=%d", unchanged.Streak, unchanged.TotalCheckIns)
	}

	// 恢复后重试应成功
	store.failUpdateHabit = false
	if _, err := agg.RecordCheckIn(habit.ID, ""); err != nil {
		t.Fatalf("retry RecordCheckIn returned error: %v", err)
	}
}

func TestAddHabitFreeLimit(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	entitlements := &fakeEntitlements{}
	agg, _ := newTestAggregator(t, db.NewStore(db.DB), entitlements)

	for _, title := range []string{"晨跑", "阅读", "冥想"} {
		if _, err := agg.AddHabit(HabitInput{Title: title}); err != nil {
			t.Fatalf("AddHabit(%s) returned error: %v", title, err)
		}
	}

	if _, err := agg.AddHabit(HabitInput{Title: "写作"}); !errors.Is(err, ErrHabitLimitReached) {
		t.Fatalf("expected ErrHabitLimitReached, got %v", err)
	}

	// 付费用户不受上限约束
	entitlements.premium = true
	if _, err := agg.AddHabit(HabitInput{Title: "写作"}); err != nil {
		t.Fatalf("premium AddHabit returned error: %v", err)
	}
}

func TestAddHabitSoftDeleteFreesSlot(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	var first *db.Habit
	for i, title := range []string{"晨跑", "阅读", "冥想"} {
		habit, err := agg.AddHabit(HabitInput{Title: title})
		if err != nil {
			t.Fatalf("AddHabit returned error: %v", err)
		}
		if i == 0 {
			first = habit
		}
	}

	if err := agg.DeleteHabit(first.ID); err != nil {
		t.Fatalf("DeleteHabit returned error: %v", err)
	}

	if _, err := agg.AddHabit(HabitInput{Title: "写作"}); err != nil {
		t.Fatalf("AddHabit after soft delete returned error: %v", err)
	}
}

func TestAddHabitValidation(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, reminders := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	if _, err := agg.AddHabit(HabitInput{Title: " a "}); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}

	if _, err := agg.AddHabit(HabitInput{Title: "晨跑", ReminderTime: "25:00"}); err == nil {
		t.Fatal("expected error for invalid reminder time")
	}

	habit, err := agg.AddHabit(HabitInput{Title: "晨跑", Icon: " 🏃 ", ReminderTime: "07:30"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}
	if habit.Icon != "🏃" {
		t.Fatalf("expected trimmed icon, got %q", habit.Icon)
	}

	if timeOfDay, ok := reminders.Scheduled(habit.ID); !ok || timeOfDay != "07:30" {
		t.Fatalf("expected reminder scheduled at 07:30, got %q (%v)", timeOfDay, ok)
	}
}

func TestEditHabit(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, reminders := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "冥想", ReminderTime: "21:00"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	if _, err := agg.RecordCheckIn(habit.ID, ""); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}

	title := "冥想训练"
	cleared := ""
	updated, err := agg.EditHabit(habit.ID, HabitPatch{Title: &title, ReminderTime: &cleared})
	if err != nil {
		t.Fatalf("EditHabit returned error: %v", err)
	}

	if updated.Title != "冥想训练" {
		t.Fatalf("expected title to update, got %s", updated.Title)
	}
	if updated.ReminderTime != "" {
		t.Fatalf("expected reminder cleared, got %q", updated.ReminderTime)
	}
	// 编辑不得触碰计数
	if updated.Streak != 1 || updated.TotalCheckIns != 1 {
		t.Fatalf("counters changed by edit: streak=%d total=%d", updated.Streak, updated.TotalCheckIns)
	}

	if _, ok := reminders.Scheduled(habit.ID); ok {
		t.Fatal("expected reminder to be cancelled")
	}

	short := "x"
	if _, err := agg.EditHabit(habit.ID, HabitPatch{Title: &short}); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}

	if _, err := agg.EditHabit("missing", HabitPatch{Title: &title}); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestDeleteHabitExcludesFromViews(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	keep, err := agg.AddHabit(HabitInput{Title: "晨跑"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}
	drop, err := agg.AddHabit(HabitInput{Title: "阅读"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	if _, err := agg.RecordCheckIn(drop.ID, ""); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}

	if err := agg.DeleteHabit(drop.ID); err != nil {
		t.Fatalf("DeleteHabit returned error: %v", err)
	}

	progress := agg.TodaysProgress()
	if progress.Total != 1 || progress.Completed != 0 {
		t.Fatalf("expected progress 0/1 after delete, got %d/%d", progress.Completed, progress.Total)
	}

	// 软删除后打卡与编辑都视作不存在
	if _, err := agg.RecordCheckIn(drop.ID, ""); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
	if err := agg.DeleteHabit(drop.ID); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound for second delete, got %v", err)
	}

	// 打卡历史保留可审计
	history, err := agg.CheckInHistory(drop.ID)
	if err != nil {
		t.Fatalf("CheckInHistory returned error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(history))
	}

	_ = keep
}

func TestTodaysProgress(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	agg, _ := newTestAggregator(t, db.NewStore(db.DB), &fakeEntitlements{})

	done, err := agg.AddHabit(HabitInput{Title: "晨跑"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}
	if _, err := agg.AddHabit(HabitInput{Title: "阅读"}); err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}

	progress := agg.TodaysProgress()
	if progress.Completed != 0 || progress.Total != 2 {
		t.Fatalf("expected 0/2, got %d/%d", progress.Completed, progress.Total)
	}

	if _, err := agg.RecordCheckIn(done.ID, ""); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}

	progress = agg.TodaysProgress()
	if progress.Completed != 1 || progress.Total != 2 {
		t.Fatalf("expected 1/2, got %d/%d", progress.Completed, progress.Total)
	}
}

func TestAggregatorReloadFromStore(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	store := db.NewStore(db.DB)
	agg, _ := newTestAggregator(t, store, &fakeEntitlements{})

	habit, err := agg.AddHabit(HabitInput{Title: "晨跑"})
	if err != nil {
		t.Fatalf("AddHabit returned error: %v", err)
	}
	if _, err := agg.RecordCheckIn(habit.ID, "2024-05-02"); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}
	if _, err := agg.RecordCheckIn(habit.ID, "2024-05-03"); err != nil {
		t.Fatalf("RecordCheckIn returned error: %v", err)
	}

	// 重新加载后状态与提交前一致
	reloaded, _ := newTestAggregator(t, store, &fakeEntitlements{})

	habitCopy, err := reloaded.Habit(habit.ID)
	if err != nil {
		t.Fatalf("Habit returned error: %v", err)
	}
	if habitCopy.Streak != 2 || habitCopy.TotalCheckIns != 2 {
		t.Fatalf("unexpected reloaded counters: streak=%d total=%d", habitCopy.Streak, habitCopy.TotalCheckIns)
	}

	if _, err := reloaded.RecordCheckIn(habit.ID, "2024-05-03"); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn after reload, got %v", err)
	}
}
