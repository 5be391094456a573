package handler

import (
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	users    *service.UserService
	sessions *service.SessionManager
}

// NewAPI constructs a handler set with shared services.
// freeLimit 为免费档位的活跃习惯上限。
func NewAPI(gdb *gorm.DB, freeLimit int) *API {
	users := service.NewUserService(gdb)
	store := db.NewStore(gdb)
	reminders := service.NewMemoryReminderScheduler()

	return &API{
		users:    users,
		sessions: service.NewSessionManager(store, users, reminders, freeLimit),
	}
}
