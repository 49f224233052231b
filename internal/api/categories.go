package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"yamdb/internal/api/middleware"
	"yamdb/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// slugRequest 分类/体裁的创建请求。
type slugRequest struct {
	Name string `json:"name" binding:"required,max=256"`
	Slug string `json:"slug" binding:"required,max=50"`
}

// slugResponse 分类/体裁的响应。
type slugResponse struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

func (s *Server) handleListCategories(c *gin.Context) {
	var items []model.Category
	count, ok := s.listSlugResource(c, &items)
	if !ok {
		return
	}
	results := make([]slugResponse, 0, len(items))
	for _, item := range items {
		results = append(results, slugResponse{Name: item.Name, Slug: item.Slug})
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleCreateCategory(c *gin.Context) {
	s.createSlugResource(c, func(req slugRequest) interface{} {
		return &model.Category{Name: req.Name, Slug: req.Slug}
	})
}

func (s *Server) handleDeleteCategory(c *gin.Context) {
	s.deleteSlugResource(c, &model.Category{})
}

func (s *Server) handleListGenres(c *gin.Context) {
	var items []model.Genre
	count, ok := s.listSlugResource(c, &items)
	if !ok {
		return
	}
	results := make([]slugResponse, 0, len(items))
	for _, item := range items {
		results = append(results, slugResponse{Name: item.Name, Slug: item.Slug})
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleCreateGenre(c *gin.Context) {
	s.createSlugResource(c, func(req slugRequest) interface{} {
		return &model.Genre{Name: req.Name, Slug: req.Slug}
	})
}

func (s *Server) handleDeleteGenre(c *gin.Context) {
	s.deleteSlugResource(c, &model.Genre{})
}

// listSlugResource 分类与体裁共用的列表逻辑：支持 search 与分页。
func (s *Server) listSlugResource(c *gin.Context, dest interface{}) (int64, bool) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return 0, false
	}

	query := s.db.WithContext(c.Request.Context()).Model(dest)
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}

	limit, offset := s.pageParams(c)
	if err := query.Order("slug").Limit(limit).Offset(offset).Find(dest).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}
	return count, true
}

func (s *Server) createSlugResource(c *gin.Context, build func(slugRequest) interface{}) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	var req slugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{"slug": "Некорректный slug " + req.Slug})
		return
	}

	record := build(req)
	if err := s.db.WithContext(c.Request.Context()).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name или slug уже заняты"})
			return
		}
		s.logger.Error("create slug resource failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, slugResponse{Name: req.Name, Slug: req.Slug})
}

func (s *Server) deleteSlugResource(c *gin.Context, dest interface{}) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	if !s.categoryPolicy.CheckObject(actor, c.Request.Method, 0) {
		forbidden(c)
		return
	}

	slug := c.Param("slug")
	result := s.db.WithContext(c.Request.Context()).Where("slug = ?", slug).Delete(dest)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
