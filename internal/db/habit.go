package db

import (
	"time"
)

// Habit 定义了习惯模型
// Streak/BestStreak/TotalCheckIns 为派生计数，由聚合器在打卡时维护，
// 恒有 BestStreak >= Streak 且 TotalCheckIns >= Streak
// IsActive=false 表示软删除：从所有聚合与统计视图剔除，但记录本身保留
// ReminderTime 为 HH:MM，空串表示未设置提醒
type Habit struct {
	ID            string `gorm:"primaryKey;size:36"`
	OwnerID       string `gorm:"index;not null"`
	Title         string `gorm:"not null"`
	Icon          string
	ReminderTime  string
	IsActive      bool `gorm:"index"`
	Streak        int
	BestStreak    int
	TotalCheckIns int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CheckIn 记录单次打卡，只增不改
// HabitID + DayKey 采用唯一索引，保证幂等；DayKey 为 YYYY-MM-DD（UTC）
// Timestamp 保存提交时刻，仅作参考，连续天数计算只依赖 DayKey
type CheckIn struct {
	ID        string `gorm:"primaryKey;size:36"`
	HabitID   string `gorm:"index;index:idx_check_in_unique,unique;not null"`
	OwnerID   string `gorm:"index;not null"`
	DayKey    string `gorm:"index:idx_check_in_unique,unique;size:10;not null"`
	Timestamp time.Time
	CreatedAt time.Time
}

// TableName 固定打卡表名
func (CheckIn) TableName() string {
	return "check_ins"
}
