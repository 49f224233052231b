package api

import (
	"context"
	"errors"
	"time"

	"yamdb/internal/api/auth"
	"yamdb/internal/model"

	"gorm.io/gorm"
)

// userStore 基于 GORM 的身份存储。
//
// 同时实现 auth.UserStore 与 middleware.UserLoader。
// 唯一性冲突依赖存储层的唯一索引裁决：并发用同一个
// username 注册时恰好一个请求能创建成功。
type userStore struct {
	db *gorm.DB
}

func (s userStore) FindOrCreate(ctx context.Context, username, email string) (*model.User, bool, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND email = ?", username, email).
		First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user = model.User{
		Username: username,
		Email:    email,
		Role:     model.RoleUser,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, auth.ErrConflict
		}
		return nil, false, err
	}
	return &user, true, nil
}

func (s userStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s userStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s userStore) TouchLastLogin(ctx context.Context, user *model.User, at time.Time) error {
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", at).Error; err != nil {
		return err
	}
	user.LastLogin = &at
	return nil
}
