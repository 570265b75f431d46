package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionKey = "session_id"

// SessionHeader 非浏览器客户端携带会话 ID 的请求头
const SessionHeader = "X-Session-ID"

// Session 为匿名访客分配会话 ID，优先读取 cookie，其次读取请求头
func Session(cookieName string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(cookieName)
		if err != nil || !validSessionID(sid) {
			sid = c.GetHeader(SessionHeader)
		}
		if !validSessionID(sid) {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, sid, int(ttl.Seconds()), "/", "", false, true)
		}
		c.Header(SessionHeader, sid)
		c.Set(sessionKey, sid)
		c.Next()
	}
}

// SessionID 返回当前请求的会话 ID
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func validSessionID(sid string) bool {
	_, err := uuid.Parse(sid)
	return sid != "" && err == nil
}
