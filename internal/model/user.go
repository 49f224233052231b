package model

import "time"

// 用户角色。
const (
	RoleUser      = "user"      // 普通用户
	RoleModerator = "moderator" // 版主
	RoleAdmin     = "admin"     // 管理员
)

// User 表示系统用户。
//
// 本系统不使用密码：身份通过邮箱确认码 + JWT 证明。
// LastLogin 同时是确认码派生输入中的安全快照字段，
// 成功换取 token 后更新它即可让所有已发出的确认码失效。
type User struct {
	ID        uint       `gorm:"primaryKey"`                             // 用户 ID
	Username  string     `gorm:"type:varchar(150);uniqueIndex;not null"` // 用户名（唯一）
	Email     string     `gorm:"type:varchar(254);uniqueIndex;not null"` // 邮箱（唯一）
	Role      string     `gorm:"type:varchar(16);default:user"`          // 角色: user / moderator / admin
	Bio       string     `gorm:"type:text"`                              // 个人简介
	FirstName string     `gorm:"type:varchar(150)"`                      // 名
	LastName  string     `gorm:"type:varchar(150)"`                      // 姓
	Superuser bool       `gorm:"default:false"`                          // 超级用户标志（提权）
	Staff     bool       `gorm:"default:false"`                          // 运营人员标志（提权）
	LastLogin *time.Time // 上次成功换取 token 的时间
	CreatedAt time.Time  // 创建时间
}

// IsAdmin 判断用户是否拥有管理员权限。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Superuser
}

// IsModerator 判断用户是否拥有版主权限。
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator || u.Staff
}
