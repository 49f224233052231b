package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"yamdb/internal/model"
	"yamdb/internal/pkg/confirmcode"
	"yamdb/internal/pkg/metrics"
	"yamdb/internal/pkg/notify"
	"yamdb/internal/pkg/throttle"
	"yamdb/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// 用户存储层错误。
var (
	// ErrNotFound 用户不存在。
	ErrNotFound = errors.New("user not found")
	// ErrConflict (username, email) 与已有记录部分冲突，
	// 由存储层的唯一约束裁决（并发注册时恰好一个赢家）。
	ErrConflict = errors.New("user conflict")
)

// UserStore 是认证流程消费的身份存储接口。
type UserStore interface {
	// FindOrCreate 按 (username, email) 对查找或创建用户。
	// 部分匹配（用户名相同但邮箱不同，或反之）返回 ErrConflict。
	FindOrCreate(ctx context.Context, username, email string) (*model.User, bool, error)
	// FindByUsername 按用户名查找；不存在返回 ErrNotFound。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// TouchLastLogin 更新上次登录时间（使已发出的确认码失效）。
	TouchLastLogin(ctx context.Context, user *model.User, at time.Time) error
}

// Handler 提供注册与 token 交换接口。
type Handler struct {
	store    UserStore
	codes    *confirmcode.Issuer
	tokens   *token.Issuer
	mailer   notify.Notifier
	throttle *throttle.Throttle
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(store UserStore, codes *confirmcode.Issuer, tokens *token.Issuer, mailer notify.Notifier, th *throttle.Throttle, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		codes:    codes,
		tokens:   tokens,
		mailer:   mailer,
		throttle: th,
		logger:   logger,
	}
}

type signUpRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"required,email,max=254"`
}

type tokenRequest struct {
	Username         string `json:"username" binding:"required"`
	ConfirmationCode string `json:"confirmation_code" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// 用户名约束：字母、数字和 @/./+/-/_，且保留字 "me" 不可用。
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// ValidateUsername 校验用户名；返回面向用户的错误信息。
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("Некорректное имя пользователя %s", username)
	}
	if strings.EqualFold(username, "me") {
		return fmt.Errorf("Некорректное имя пользователя %s", username)
	}
	return nil
}

// SignUp 处理注册请求。
//
// 幂等：同一 (username, email) 重复提交会重新派生并重发确认码。
// 投递失败不向客户端报成功。
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.SignupTotal.WithLabelValues("validation").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if err := ValidateUsername(username); err != nil {
		metrics.SignupTotal.WithLabelValues("validation").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"username": err.Error()})
		return
	}

	user, created, err := h.store.FindOrCreate(c.Request.Context(), username, email)
	if errors.Is(err, ErrConflict) {
		metrics.SignupTotal.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf(
				"Ошибка при попытке создать новую запись в базе с username=%s, email=%s",
				username, email),
		})
		return
	}
	if err != nil {
		h.logger.Error("find or create user failed",
			slog.String("username", username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	// 投递冷却：幂等重发也不能把邮箱刷爆
	allowed, err := h.throttle.Allow(c.Request.Context(), username+"\x00"+email)
	if err != nil {
		h.logger.Warn("signup throttle unavailable", slog.String("error", err.Error()))
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	code := h.codes.Issue(user, time.Now())
	if err := h.mailer.SendConfirmationCode(c.Request.Context(), user.Email, code); err != nil {
		metrics.SignupTotal.WithLabelValues("delivery_failed").Inc()
		h.logger.Warn("send confirmation code failed",
			slog.String("email", user.Email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send confirmation failed"})
		return
	}

	metrics.SignupTotal.WithLabelValues("ok").Inc()
	metrics.CodeIssuedTotal.Inc()
	h.logger.Info("confirmation code sent",
		slog.String("username", username), slog.Bool("created", created))
	c.JSON(http.StatusOK, gin.H{"username": user.Username, "email": user.Email})
}

// Token 用确认码换取访问 token。
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.FindByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("find user failed",
			slog.String("username", req.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	if !h.codes.Validate(user, strings.TrimSpace(req.ConfirmationCode), time.Now()) {
		metrics.CodeRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный код подтверждения"})
		return
	}

	signed, err := h.tokens.Mint(user)
	if err != nil {
		h.logger.Error("sign token failed",
			slog.String("username", user.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	// 更新 LastLogin 使已发出的确认码失效（单次使用）。
	// 失败不回滚认证结果，码最坏情况下活到时间桶过期。
	if err := h.store.TouchLastLogin(c.Request.Context(), user, time.Now()); err != nil {
		h.logger.Warn("touch last login failed",
			slog.String("username", user.Username), slog.String("error", err.Error()))
	}

	metrics.TokenIssuedTotal.Inc()
	h.logger.Info("token issued", slog.String("username", user.Username))
	c.JSON(http.StatusOK, tokenResponse{Token: signed})
}
