package db

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 定义了用户模型
// IsPremium 是权益提供者读取的付费标记，用于免费档位习惯上限判断
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string `gorm:"not null"`
	IsPremium    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EnsureUser 存在性检查：若提供的邮箱与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的用户。
// 供启动脚本注入初始账号使用。
func EnsureUser(email, password string) error {
	trimmedEmail := strings.TrimSpace(email)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedEmail == "" || trimmedPassword == "" {
		return nil
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("email = ?", trimmedEmail).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&User{ID: uuid.NewString(), Email: trimmedEmail, PasswordHash: string(hashed)}).Error
	}

	return nil
}
