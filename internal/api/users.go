package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"yamdb/internal/api/auth"
	"yamdb/internal/api/middleware"
	"yamdb/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// userRequest 管理员创建/修改用户的请求。
type userRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Role      *string `json:"role"`
}

// userResponse 用户档案响应。
type userResponse struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
	Role      string `json:"role"`
}

func validRole(role string) bool {
	switch role {
	case model.RoleUser, model.RoleModerator, model.RoleAdmin:
		return true
	}
	return false
}

func (s *Server) handleListUsers(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.userPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	ctx := c.Request.Context()
	query := s.db.WithContext(ctx).Model(&model.User{})
	if search := c.Query("search"); search != "" {
		query = query.Where("username LIKE ?", "%"+search+"%")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	limit, offset := s.pageParams(c)
	var users []model.User
	if err := query.Order("username").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	results := make([]userResponse, 0, len(users))
	for i := range users {
		results = append(results, buildUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.userPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == nil || req.Email == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and email are required"})
		return
	}

	username := strings.TrimSpace(*req.Username)
	email := strings.TrimSpace(strings.ToLower(*req.Email))
	if err := auth.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"username": err.Error()})
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"email": "Некорректный email " + email})
		return
	}

	user := model.User{
		Username: username,
		Email:    email,
		Role:     model.RoleUser,
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"role": "Некорректная роль " + *req.Role})
			return
		}
		user.Role = *req.Role
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}

	if err := s.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf(
					"Ошибка при попытке создать новую запись в базе с username=%s, email=%s",
					username, email),
			})
			return
		}
		s.logger.Error("create user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, buildUserResponse(&user))
}

func (s *Server) handleGetUser(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.userPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	user, ok := s.findUserByParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildUserResponse(user))
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.userPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	user, ok := s.findUserByParam(c)
	if !ok {
		return
	}
	s.applyUserPatch(c, user, true)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.userPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	user, ok := s.findUserByParam(c)
	if !ok {
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Delete(user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleGetMe 返回当前用户的档案。
func (s *Server) handleGetMe(c *gin.Context) {
	actor := middleware.GetActor(c)
	user, err := s.users.FindByID(c.Request.Context(), actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, buildUserResponse(user))
}

// handleUpdateMe 修改当前用户的档案。
//
// 非管理员不能给自己改角色：请求里的 role 字段被静默保留为原值。
func (s *Server) handleUpdateMe(c *gin.Context) {
	actor := middleware.GetActor(c)
	user, err := s.users.FindByID(c.Request.Context(), actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	s.applyUserPatch(c, user, actor.IsAdmin())
}

// applyUserPatch 应用部分更新并写出响应。
//
// allowRole 控制 role 字段是否生效（仅管理员）。
func (s *Server) applyUserPatch(c *gin.Context, user *model.User, allowRole bool) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if err := auth.ValidateUsername(username); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"username": err.Error()})
			return
		}
		user.Username = username
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"email": "Некорректный email " + email})
			return
		}
		user.Email = email
	}
	if req.Role != nil && allowRole {
		if !validRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"role": "Некорректная роль " + *req.Role})
			return
		}
		user.Role = *req.Role
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}

	if err := s.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username или email уже заняты"})
			return
		}
		s.logger.Error("update user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, buildUserResponse(user))
}

// findUserByParam 按路径里的 username 加载用户；不存在时写出 404。
func (s *Server) findUserByParam(c *gin.Context) (*model.User, bool) {
	username := c.Param("username")
	user, err := s.users.FindByUsername(c.Request.Context(), username)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return user, true
}

func buildUserResponse(user *model.User) userResponse {
	return userResponse{
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Bio:       user.Bio,
		Role:      user.Role,
	}
}
