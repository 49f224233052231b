package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"yamdb/internal/api/middleware"
	"yamdb/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// titleRequest 创建/修改作品的请求。
type titleRequest struct {
	Name        *string  `json:"name"`
	Year        *int     `json:"year"`
	Description *string  `json:"description"`
	Genre       []string `json:"genre"`    // 体裁 slug 列表
	Category    *string  `json:"category"` // 分类 slug
}

// titleResponse 作品响应，rating 为空表示还没有评论。
type titleResponse struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	Year        int            `json:"year"`
	Rating      *float64       `json:"rating"`
	Description string         `json:"description"`
	Genre       []slugResponse `json:"genre"`
	Category    *slugResponse  `json:"category"`
}

// validateYear 发行年份不得晚于当前年份。
func validateYear(year int) error {
	if year > time.Now().Year() {
		return fmt.Errorf("Некорректный год %d", year)
	}
	return nil
}

func (s *Server) handleListTitles(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	ctx := c.Request.Context()
	query := s.db.WithContext(ctx).Model(&model.Title{})

	if slug := c.Query("category"); slug != "" {
		query = query.Joins("JOIN categories ON categories.id = titles.category_id").
			Where("categories.slug = ?", slug)
	}
	if slug := c.Query("genre"); slug != "" {
		query = query.Joins("JOIN title_genres ON title_genres.title_id = titles.id").
			Joins("JOIN genres ON genres.id = title_genres.genre_id").
			Where("genres.slug = ?", slug)
	}
	if name := c.Query("name"); name != "" {
		query = query.Where("titles.name LIKE ?", "%"+name+"%")
	}
	if yearStr := c.Query("year"); yearStr != "" {
		if year, err := strconv.Atoi(yearStr); err == nil {
			query = query.Where("titles.year = ?", year)
		}
	}

	var count int64
	if err := query.Distinct("titles.id").Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	limit, offset := s.pageParams(c)
	var titles []model.Title
	if err := query.Distinct().Preload("Category").Preload("Genres").
		Order("titles.id").Limit(limit).Offset(offset).
		Find(&titles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	ratings, err := s.titleRatings(c, titles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	results := make([]titleResponse, 0, len(titles))
	for i := range titles {
		results = append(results, buildTitleResponse(&titles[i], ratings[titles[i].ID]))
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleGetTitle(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	title, ok := s.findTitle(c)
	if !ok {
		return
	}

	ratings, err := s.titleRatings(c, []model.Title{*title})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, buildTitleResponse(title, ratings[title.ID]))
}

func (s *Server) handleCreateTitle(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil || *req.Name == "" || req.Year == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and year are required"})
		return
	}
	if err := validateYear(*req.Year); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"year": err.Error()})
		return
	}

	title := model.Title{Name: *req.Name, Year: *req.Year}
	if req.Description != nil {
		title.Description = *req.Description
	}
	if !s.resolveTitleRelations(c, &title, req) {
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Create(&title).Error; err != nil {
		s.logger.Error("create title failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, buildTitleResponse(&title, nil))
}

func (s *Server) handleUpdateTitle(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	if !s.categoryPolicy.CheckObject(actor, c.Request.Method, 0) {
		forbidden(c)
		return
	}

	title, ok := s.findTitle(c)
	if !ok {
		return
	}

	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		title.Name = *req.Name
	}
	if req.Year != nil {
		if err := validateYear(*req.Year); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"year": err.Error()})
			return
		}
		title.Year = *req.Year
	}
	if req.Description != nil {
		title.Description = *req.Description
	}
	if !s.resolveTitleRelations(c, title, req) {
		return
	}

	ctx := c.Request.Context()
	if err := s.db.WithContext(ctx).Save(title).Error; err != nil {
		s.logger.Error("update title failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if req.Genre != nil {
		if err := s.db.WithContext(ctx).Model(title).Association("Genres").Replace(title.Genres); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
	}

	ratings, err := s.titleRatings(c, []model.Title{*title})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, buildTitleResponse(title, ratings[title.ID]))
}

func (s *Server) handleDeleteTitle(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.categoryPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	title, ok := s.findTitle(c)
	if !ok {
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Select("Genres").Delete(title).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// findTitle 按路径参数加载作品；不存在时写出 404。
func (s *Server) findTitle(c *gin.Context) (*model.Title, bool) {
	id, err := strconv.ParseUint(c.Param("title_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return nil, false
	}

	var title model.Title
	dbErr := s.db.WithContext(c.Request.Context()).
		Preload("Category").Preload("Genres").
		First(&title, uint(id)).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return nil, false
	}
	if dbErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &title, true
}

// resolveTitleRelations 按 slug 解析分类与体裁。
//
// 返回 false 表示已经写出了错误响应。
func (s *Server) resolveTitleRelations(c *gin.Context, title *model.Title, req titleRequest) bool {
	ctx := c.Request.Context()

	if req.Category != nil {
		var category model.Category
		err := s.db.WithContext(ctx).Where("slug = ?", *req.Category).First(&category).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"category": "Некорректный slug " + *req.Category})
			return false
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return false
		}
		title.CategoryID = &category.ID
		title.Category = &category
	}

	if req.Genre != nil {
		var genres []model.Genre
		if err := s.db.WithContext(ctx).Where("slug IN ?", req.Genre).Find(&genres).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return false
		}
		if len(genres) != len(req.Genre) {
			c.JSON(http.StatusBadRequest, gin.H{"genre": "Некорректный slug жанра"})
			return false
		}
		title.Genres = genres
	}
	return true
}

// titleRatings 一次查询聚合出每部作品的平均分。
func (s *Server) titleRatings(c *gin.Context, titles []model.Title) (map[uint]*float64, error) {
	ratings := make(map[uint]*float64, len(titles))
	if len(titles) == 0 {
		return ratings, nil
	}

	ids := make([]uint, 0, len(titles))
	for i := range titles {
		ids = append(ids, titles[i].ID)
	}

	type row struct {
		TitleID uint
		Avg     float64
	}
	var rows []row
	err := s.db.WithContext(c.Request.Context()).
		Model(&model.Review{}).
		Select("title_id, AVG(score) AS avg").
		Where("title_id IN ?", ids).
		Group("title_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		avg := r.Avg
		ratings[r.TitleID] = &avg
	}
	return ratings, nil
}

func buildTitleResponse(title *model.Title, rating *float64) titleResponse {
	resp := titleResponse{
		ID:          title.ID,
		Name:        title.Name,
		Year:        title.Year,
		Rating:      rating,
		Description: title.Description,
		Genre:       make([]slugResponse, 0, len(title.Genres)),
	}
	for _, g := range title.Genres {
		resp.Genre = append(resp.Genre, slugResponse{Name: g.Name, Slug: g.Slug})
	}
	if title.Category != nil {
		resp.Category = &slugResponse{Name: title.Category.Name, Slug: title.Category.Slug}
	}
	return resp
}
