package middleware

import (
	"context"
	"net/http"
	"strings"

	"yamdb/internal/api/permission"
	"yamdb/internal/model"
	"yamdb/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// UserLoader 按 ID 加载用户记录。
//
// 角色与提权标志以数据库为准，而不是信任 token 里的快照：
// 管理员降级某个用户后，旧 token 不应继续携带旧角色。
type UserLoader interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// Auth 强制认证：缺失或非法的 token 一律 401。
func Auth(issuer *token.Issuer, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := resolveActor(c, issuer, users)
		if !ok {
			return
		}
		if !actor.Authenticated {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// OptionalAuth 可选认证：无 Authorization 头时以匿名身份放行，
// 带了头但 token 非法仍然 401。
func OptionalAuth(issuer *token.Issuer, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := resolveActor(c, issuer, users)
		if !ok {
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// GetActor 取出当前请求的 Actor；未设置时返回匿名。
func GetActor(c *gin.Context) permission.Actor {
	v, exists := c.Get(actorKey)
	if !exists {
		return permission.Anonymous
	}
	actor, ok := v.(permission.Actor)
	if !ok {
		return permission.Anonymous
	}
	return actor
}

// resolveActor 解析 Authorization 头。
//
// 第二个返回值为 false 表示已经写出了错误响应并中止。
func resolveActor(c *gin.Context, issuer *token.Issuer, users UserLoader) (permission.Actor, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return permission.Anonymous, true
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
		c.Abort()
		return permission.Anonymous, false
	}

	uid, _, err := issuer.Parse(parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return permission.Anonymous, false
	}

	user, err := users.FindByID(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return permission.Anonymous, false
	}

	return permission.FromUser(user), true
}
