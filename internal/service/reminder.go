package service

import "sync"

// ReminderScheduler 是提醒日程协作者的抽象。
// 核心只决定何时注册或取消 (habitID, HH:MM)，推送投递由外部系统实现。
type ReminderScheduler interface {
	Schedule(habitID, timeOfDay string)
	Cancel(habitID string)
}

// MemoryReminderScheduler 是进程内实现，仅记录注册状态。
type MemoryReminderScheduler struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryReminderScheduler 构造 MemoryReminderScheduler
func NewMemoryReminderScheduler() *MemoryReminderScheduler {
	return &MemoryReminderScheduler{entries: make(map[string]string)}
}

// Schedule 注册（或覆盖）习惯的提醒时间
func (s *MemoryReminderScheduler) Schedule(habitID, timeOfDay string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[habitID] = timeOfDay
}

// Cancel 取消习惯的提醒
func (s *MemoryReminderScheduler) Cancel(habitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, habitID)
}

// Scheduled 返回习惯当前注册的提醒时间
func (s *MemoryReminderScheduler) Scheduled(habitID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeOfDay, ok := s.entries[habitID]
	return timeOfDay, ok
}
