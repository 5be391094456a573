package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/habitlog/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 在指定用户不存在时返回
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken 在注册邮箱已被占用时返回
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail 在邮箱格式不合法时返回
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword 在密码不足 6 位时返回
	ErrInvalidPassword = errors.New("password too short")
	// ErrInvalidCredentials 在邮箱或密码不匹配时返回
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserService 承担身份提供者与权益提供者两个协作者角色：
// 注册/登录给出用户身份，IsPremium 给出付费状态。
type UserService struct {
	db *gorm.DB
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// Register 创建新用户，密码以 bcrypt 哈希存储
func (s *UserService) Register(email, password, displayName string) (*db.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	var existing db.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := db.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hashed),
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &user, nil
}

// Authenticate 校验邮箱与密码，成功时返回用户
func (s *UserService) Authenticate(email, password string) (*db.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user db.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(id string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// IsPremium 实现 EntitlementProvider，返回用户的付费状态
func (s *UserService) IsPremium(userID string) (bool, error) {
	user, err := s.Get(userID)
	if err != nil {
		return false, err
	}
	return user.IsPremium, nil
}

// SetPremium 更新付费状态，由订阅回调或后台操作触发
func (s *UserService) SetPremium(userID string, premium bool) error {
	result := s.db.Model(&db.User{}).Where("id = ?", userID).Update("is_premium", premium)
	if result.Error != nil {
		return fmt.Errorf("update premium flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
