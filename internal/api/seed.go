package api

import (
	"context"
	"errors"

	"yamdb/internal/model"

	"gorm.io/gorm"
)

// SeedAdmin 初始化引导管理员账号。
//
// 用户名和邮箱来自配置（ADMIN_USERNAME / ADMIN_EMAIL）。
// 账号不存在时创建；已存在时把角色和标记刷成管理员，
// 避免误操作把唯一的管理员降级后无人能恢复。
func (s *Server) SeedAdmin(ctx context.Context) error {
	username := s.cfg.Security.AdminUsername
	email := s.cfg.Security.AdminEmail
	if username == "" || email == "" {
		return nil
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = model.User{
			Username:  username,
			Email:     email,
			Role:      model.RoleAdmin,
			Superuser: true,
			Staff:     true,
		}
		return s.db.WithContext(ctx).Create(&user).Error
	}

	updates := map[string]interface{}{
		"role":      model.RoleAdmin,
		"superuser": true,
		"staff":     true,
	}
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error
}
