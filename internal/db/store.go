package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateCheckIn 在唯一索引拦截到重复的 (habit_id, day_key) 时返回。
// 聚合器在写入前已做幂等检查，这里是持久层的第二道防线。
var ErrDuplicateCheckIn = errors.New("check-in already exists for this day")

// Store 是基于 GORM 的持久化实现，承担远端文档存储协作者的角色。
// 记录 ID 由本层在创建时分配。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store
func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// CreateHabit 写入新习惯并分配 ID
func (s *Store) CreateHabit(habit *Habit) error {
	if habit.ID == "" {
		habit.ID = uuid.NewString()
	}
	if err := s.db.Create(habit).Error; err != nil {
		return fmt.Errorf("create habit: %w", err)
	}
	return nil
}

// UpdateHabit 整体保存习惯
func (s *Store) UpdateHabit(habit *Habit) error {
	if err := s.db.Save(habit).Error; err != nil {
		return fmt.Errorf("update habit: %w", err)
	}
	return nil
}

// QueryHabits 返回用户的全部习惯（含软删除）
func (s *Store) QueryHabits(ownerID string) ([]Habit, error) {
	var habits []Habit
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	return habits, nil
}

// CreateCheckIn 写入打卡记录并分配 ID
func (s *Store) CreateCheckIn(checkIn *CheckIn) error {
	if checkIn.ID == "" {
		checkIn.ID = uuid.NewString()
	}
	if err := s.db.Create(checkIn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateCheckIn
		}
		return fmt.Errorf("create check-in: %w", err)
	}
	return nil
}

// DeleteCheckIn 物理删除单条打卡，仅用于远端提交失败后的补偿回滚
func (s *Store) DeleteCheckIn(id string) error {
	if err := s.db.Delete(&CheckIn{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete check-in: %w", err)
	}
	return nil
}

// QueryCheckIns 返回用户的全部打卡记录，按日期升序
func (s *Store) QueryCheckIns(ownerID string) ([]CheckIn, error) {
	var checkIns []CheckIn
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("day_key ASC").
		Find(&checkIns).Error; err != nil {
		return nil, fmt.Errorf("query check-ins: %w", err)
	}
	return checkIns, nil
}
