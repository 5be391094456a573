package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

type registerPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 处理用户注册请求
func (a *API) Register(c *gin.Context) {
	var payload registerPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	user, err := a.users.Register(payload.Email, payload.Password, payload.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, http.StatusBadRequest, "邮箱格式不合法")
		case errors.Is(err, service.ErrInvalidPassword):
			respondError(c, http.StatusBadRequest, "密码至少 6 位")
		case errors.Is(err, service.ErrEmailTaken):
			respondError(c, http.StatusConflict, "邮箱已被注册")
		default:
			respondError(c, http.StatusInternalServerError, "注册失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// Login 处理用户登录请求
func (a *API) Login(c *gin.Context) {
	var payload loginPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	user, err := a.users.Authenticate(payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "邮箱或密码错误")
			return
		}
		respondError(c, http.StatusInternalServerError, "登录失败")
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// Logout 处理用户登出，同时释放该用户的聚合器
func (a *API) Logout(c *gin.Context) {
	if userID := currentUserID(c); userID != "" {
		a.sessions.Drop(userID)
	}

	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// SetPremium 更新当前用户的付费状态（订阅回调的简化入口）
func (a *API) SetPremium(c *gin.Context) {
	var payload struct {
		Premium bool `json:"premium"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	userID := currentUserID(c)
	if err := a.users.SetPremium(userID, payload.Premium); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "用户不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "更新付费状态失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"premium": payload.Premium})
}

func userToPayload(user *db.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"is_premium":   user.IsPremium,
	}
}

// AuthRequired 是一个简单的认证中间件
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUserID(c) == "" {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}
