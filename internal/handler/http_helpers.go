package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionUserKey = "user_id"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// currentUserID 从会话中取出登录用户，未登录时返回空串
func currentUserID(c *gin.Context) string {
	session := sessions.Default(c)
	if id, ok := session.Get(sessionUserKey).(string); ok {
		return id
	}
	return ""
}
