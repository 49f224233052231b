package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"yamdb/internal/api/middleware"
	"yamdb/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type reviewRequest struct {
	Text  *string `json:"text"`
	Score *int    `json:"score"`
}

type reviewResponse struct {
	ID      uint      `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	Score   int       `json:"score"`
	PubDate time.Time `json:"pub_date"`
}

type commentRequest struct {
	Text *string `json:"text"`
}

type commentResponse struct {
	ID      uint      `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	PubDate time.Time `json:"pub_date"`
}

func (s *Server) handleListReviews(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	title, ok := s.findTitle(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	query := s.db.WithContext(ctx).Model(&model.Review{}).Where("title_id = ?", title.ID)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	limit, offset := s.pageParams(c)
	var reviews []model.Review
	if err := query.Preload("Author").Order("pub_date DESC").
		Limit(limit).Offset(offset).Find(&reviews).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	results := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		results = append(results, buildReviewResponse(&reviews[i]))
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleCreateReview(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	title, ok := s.findTitle(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == nil || *req.Text == "" || req.Score == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and score are required"})
		return
	}
	if *req.Score < 1 || *req.Score > 10 {
		c.JSON(http.StatusBadRequest, gin.H{"score": errScoreRange.Error()})
		return
	}

	review := model.Review{
		Text:     *req.Text,
		Score:    *req.Score,
		AuthorID: actor.ID,
		TitleID:  title.ID,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&review).Error; err != nil {
		// (author, title) 唯一索引：一个用户对一部作品只能有一条评论
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Можно оставить только один отзыв к одному произведению",
			})
			return
		}
		s.logger.Error("create review failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Preload("Author").
		First(&review, review.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusCreated, buildReviewResponse(&review))
}

func (s *Server) handleGetReview(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	review, ok := s.findReview(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildReviewResponse(review))
}

func (s *Server) handleUpdateReview(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	review, ok := s.findReview(c)
	if !ok {
		return
	}
	if !s.reviewPolicy.CheckObject(actor, c.Request.Method, review.AuthorID) {
		forbidden(c)
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := applyReviewPatch(review, req); err != nil {
		if errors.Is(err, errScoreRange) {
			c.JSON(http.StatusBadRequest, gin.H{"score": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Save(review).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, buildReviewResponse(review))
}

func (s *Server) handleDeleteReview(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	review, ok := s.findReview(c)
	if !ok {
		return
	}
	if !s.reviewPolicy.CheckObject(actor, c.Request.Method, review.AuthorID) {
		forbidden(c)
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Delete(review).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListComments(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	review, ok := s.findReview(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	query := s.db.WithContext(ctx).Model(&model.Comment{}).Where("review_id = ?", review.ID)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	limit, offset := s.pageParams(c)
	var comments []model.Comment
	if err := query.Preload("Author").Order("pub_date DESC").
		Limit(limit).Offset(offset).Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	results := make([]commentResponse, 0, len(comments))
	for i := range comments {
		results = append(results, buildCommentResponse(&comments[i]))
	}
	c.JSON(http.StatusOK, pagedResponse{Count: count, Results: results})
}

func (s *Server) handleCreateComment(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	review, ok := s.findReview(c)
	if !ok {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == nil || *req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	comment := model.Comment{
		Text:     *req.Text,
		AuthorID: actor.ID,
		ReviewID: review.ID,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&comment).Error; err != nil {
		s.logger.Error("create comment failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Preload("Author").
		First(&comment, comment.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusCreated, buildCommentResponse(&comment))
}

func (s *Server) handleGetComment(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}
	comment, ok := s.findComment(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildCommentResponse(comment))
}

func (s *Server) handleUpdateComment(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	comment, ok := s.findComment(c)
	if !ok {
		return
	}
	if !s.reviewPolicy.CheckObject(actor, c.Request.Method, comment.AuthorID) {
		forbidden(c)
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := applyCommentPatch(comment, req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Save(comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, buildCommentResponse(comment))
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	actor := middleware.GetActor(c)
	if !s.reviewPolicy.CheckCollection(actor, c.Request.Method) {
		forbidden(c)
		return
	}

	comment, ok := s.findComment(c)
	if !ok {
		return
	}
	if !s.reviewPolicy.CheckObject(actor, c.Request.Method, comment.AuthorID) {
		forbidden(c)
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Delete(comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// 部分更新校验的错误。
var (
	errEmptyText  = errors.New("text is required")
	errScoreRange = errors.New("Оценка должна быть от 1 до 10")
)

// applyReviewPatch 校验并应用评论的部分更新。
//
// 字段为 nil 表示不修改；传入的空正文与创建时一样被拒绝。
func applyReviewPatch(review *model.Review, req reviewRequest) error {
	if req.Text != nil {
		if *req.Text == "" {
			return errEmptyText
		}
		review.Text = *req.Text
	}
	if req.Score != nil {
		if *req.Score < 1 || *req.Score > 10 {
			return errScoreRange
		}
		review.Score = *req.Score
	}
	return nil
}

// applyCommentPatch 校验并应用跟帖的部分更新。
func applyCommentPatch(comment *model.Comment, req commentRequest) error {
	if req.Text != nil {
		if *req.Text == "" {
			return errEmptyText
		}
		comment.Text = *req.Text
	}
	return nil
}

// findReview 按路径参数加载评论（校验所属作品）；不存在时写出 404。
func (s *Server) findReview(c *gin.Context) (*model.Review, bool) {
	titleID, err := strconv.ParseUint(c.Param("title_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return nil, false
	}
	reviewID, err := strconv.ParseUint(c.Param("review_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return nil, false
	}

	var review model.Review
	dbErr := s.db.WithContext(c.Request.Context()).Preload("Author").
		Where("id = ? AND title_id = ?", uint(reviewID), uint(titleID)).
		First(&review).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return nil, false
	}
	if dbErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &review, true
}

// findComment 按路径参数加载跟帖（校验所属评论与作品）。
func (s *Server) findComment(c *gin.Context) (*model.Comment, bool) {
	review, ok := s.findReview(c)
	if !ok {
		return nil, false
	}
	commentID, err := strconv.ParseUint(c.Param("comment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return nil, false
	}

	var comment model.Comment
	dbErr := s.db.WithContext(c.Request.Context()).Preload("Author").
		Where("id = ? AND review_id = ?", uint(commentID), review.ID).
		First(&comment).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return nil, false
	}
	if dbErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &comment, true
}

func buildReviewResponse(review *model.Review) reviewResponse {
	return reviewResponse{
		ID:      review.ID,
		Text:    review.Text,
		Author:  review.Author.Username,
		Score:   review.Score,
		PubDate: review.PubDate,
	}
}

func buildCommentResponse(comment *model.Comment) commentResponse {
	return commentResponse{
		ID:      comment.ID,
		Text:    comment.Text,
		Author:  comment.Author.Username,
		PubDate: comment.PubDate,
	}
}
