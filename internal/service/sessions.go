package service

import "sync"

// SessionManager 为每个登录用户维护一个聚合器实例。
// 同一用户的所有请求取到同一个聚合器，写操作由聚合器内部的互斥锁串行化。
type SessionManager struct {
	mu           sync.Mutex
	store        Store
	entitlements EntitlementProvider
	reminders    ReminderScheduler
	freeLimit    int
	sessions     map[string]*Aggregator
}

// NewSessionManager 构造 SessionManager
func NewSessionManager(store Store, entitlements EntitlementProvider, reminders ReminderScheduler, freeLimit int) *SessionManager {
	return &SessionManager{
		store:        store,
		entitlements: entitlements,
		reminders:    reminders,
		freeLimit:    freeLimit,
		sessions:     make(map[string]*Aggregator),
	}
}

// Aggregator 返回用户的聚合器，首次访问时从存储加载状态
func (m *SessionManager) Aggregator(ownerID string) (*Aggregator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if agg, ok := m.sessions[ownerID]; ok {
		return agg, nil
	}

	agg, err := NewAggregator(ownerID, m.store, m.entitlements, m.reminders, m.freeLimit)
	if err != nil {
		return nil, err
	}

	m.sessions[ownerID] = agg
	return agg, nil
}

// Drop 释放用户的聚合器，登出后下次访问会重新加载
func (m *SessionManager) Drop(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, ownerID)
}
