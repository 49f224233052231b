package permission

import (
	"net/http"

	"yamdb/internal/model"
)

// Actor 表示一次请求的发起者（匿名或已认证）。
//
// 角色是显式枚举，Superuser/Staff 是独立的提权标志，
// 不做任何继承式的角色建模。
type Actor struct {
	ID            uint   // 用户 ID（匿名时为 0）
	Role          string // user / moderator / admin
	Authenticated bool   // 是否携带有效 token
	Superuser     bool   // 超级用户提权
	Staff         bool   // 运营人员提权
}

// Anonymous 匿名请求者。
var Anonymous = Actor{}

// FromUser 由用户记录构造已认证的 Actor。
func FromUser(u *model.User) Actor {
	return Actor{
		ID:            u.ID,
		Role:          u.Role,
		Authenticated: true,
		Superuser:     u.Superuser,
		Staff:         u.Staff,
	}
}

// IsAdmin 判断是否拥有管理员权限。
func (a Actor) IsAdmin() bool {
	return a.Authenticated && (a.Role == model.RoleAdmin || a.Superuser)
}

// IsModerator 判断是否拥有版主权限。
func (a Actor) IsModerator() bool {
	return a.Authenticated && (a.Role == model.RoleModerator || a.Staff)
}

// SafeMethod 判断方法是否只读（GET/HEAD/OPTIONS）。
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Policy 两段式鉴权管道。
//
// CheckCollection 先于任何数据加载执行，决定能否到达端点；
// CheckObject 针对具体资源实例，仅在集合检查通过后执行。
// 任何一段失败都应在发生副作用之前以 403 短路。
type Policy interface {
	CheckCollection(actor Actor, method string) bool
	CheckObject(actor Actor, method string, ownerID uint) bool
}

// AdminOnly 仅管理员（或匿名——用于保持自助注册路径开放，
// 实际路由会叠加强制认证中间件）。
type AdminOnly struct{}

func (AdminOnly) CheckCollection(actor Actor, method string) bool {
	return !actor.Authenticated || actor.IsAdmin()
}

func (AdminOnly) CheckObject(actor Actor, method string, ownerID uint) bool {
	return !actor.Authenticated || actor.IsAdmin()
}

// AdminOrReadOnly 只读放行，写操作仅管理员。
type AdminOrReadOnly struct{}

func (AdminOrReadOnly) CheckCollection(actor Actor, method string) bool {
	return SafeMethod(method) || actor.IsAdmin()
}

func (AdminOrReadOnly) CheckObject(actor Actor, method string, ownerID uint) bool {
	return SafeMethod(method) || actor.IsAdmin()
}

// OwnerOrModerated 对象级：作者本人、只读、管理员或版主放行；
// 集合级：只读或已认证。
type OwnerOrModerated struct{}

func (OwnerOrModerated) CheckCollection(actor Actor, method string) bool {
	return SafeMethod(method) || actor.Authenticated
}

func (OwnerOrModerated) CheckObject(actor Actor, method string, ownerID uint) bool {
	return (actor.Authenticated && actor.ID == ownerID) ||
		SafeMethod(method) ||
		actor.IsAdmin() ||
		actor.IsModerator()
}

// AuthenticatedOrReadOnlyWithModeration 集合级：只读或已认证；
// 对象级：只读、作者本人、版主或管理员。
type AuthenticatedOrReadOnlyWithModeration struct{}

func (AuthenticatedOrReadOnlyWithModeration) CheckCollection(actor Actor, method string) bool {
	return SafeMethod(method) || actor.Authenticated
}

func (AuthenticatedOrReadOnlyWithModeration) CheckObject(actor Actor, method string, ownerID uint) bool {
	return SafeMethod(method) ||
		(actor.Authenticated && actor.ID == ownerID) ||
		actor.IsModerator() ||
		actor.IsAdmin()
}
