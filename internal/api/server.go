package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"yamdb/internal/api/auth"
	"yamdb/internal/api/middleware"
	"yamdb/internal/api/permission"
	"yamdb/internal/config"
	"yamdb/internal/model"
	"yamdb/internal/pkg/confirmcode"
	"yamdb/internal/pkg/metrics"
	"yamdb/internal/pkg/notify"
	"yamdb/internal/pkg/ratelimit"
	"yamdb/internal/pkg/throttle"
	"yamdb/internal/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、认证组件以及 Gin 路由引擎。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	auth   *auth.Handler
	tokens *token.Issuer
	users  userStore

	// 鉴权策略：先集合级检查，再对象级检查
	categoryPolicy permission.Policy // 分类/体裁/作品
	reviewPolicy   permission.Policy // 评论/跟帖
	userPolicy     permission.Policy // 用户管理
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化认证组件与 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		TranslateError: true,                                          // 唯一约束冲突翻译为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Category{}, &model.Genre{},
		&model.Title{}, &model.Review{}, &model.Comment{},
	); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	codeSecret := cfg.Security.CodeSecret
	if codeSecret == "" {
		codeSecret = cfg.Security.JWTSecret
	}
	codes := confirmcode.New(codeSecret, cfg.Auth.CodeBucket)
	tokens := token.NewIssuer(cfg.Security.JWTSecret, cfg.Auth.TokenTTL)
	mailer := notify.NewEmailNotifier(&cfg.Email, cfg.Auth.DeliveryTimeout, cfg.Auth.DeliveryRetries, logger)
	th := throttle.New(rdb, cfg.Auth.ResendCooldown)
	store := userStore{db: db}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		rdb:            rdb,
		router:         r,
		auth:           auth.NewHandler(store, codes, tokens, mailer, th, logger),
		tokens:         tokens,
		users:          store,
		categoryPolicy: permission.AdminOrReadOnly{},
		reviewPolicy:   permission.AuthenticatedOrReadOnlyWithModeration{},
		userPolicy:     permission.AdminOnly{},
	}
	s.registerRoutes(ratelimit.NewRedisRateLimiter(rdb, cfg.App.RateLimit, cfg.App.RateBurst))
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(limiter *ratelimit.RateLimiter) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	v1 := s.router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.Use(middleware.RateLimit(limiter, s.logger))
	authGroup.POST("/signup", s.auth.SignUp)
	authGroup.POST("/token", s.auth.Token)

	// 内容资源：匿名可读，写操作按策略鉴权
	content := v1.Group("/")
	content.Use(middleware.OptionalAuth(s.tokens, s.users))
	content.GET("/categories", s.handleListCategories)
	content.POST("/categories", s.handleCreateCategory)
	content.DELETE("/categories/:slug", s.handleDeleteCategory)
	content.GET("/genres", s.handleListGenres)
	content.POST("/genres", s.handleCreateGenre)
	content.DELETE("/genres/:slug", s.handleDeleteGenre)
	content.GET("/titles", s.handleListTitles)
	content.POST("/titles", s.handleCreateTitle)
	content.GET("/titles/:title_id", s.handleGetTitle)
	content.PATCH("/titles/:title_id", s.handleUpdateTitle)
	content.DELETE("/titles/:title_id", s.handleDeleteTitle)
	content.GET("/titles/:title_id/reviews", s.handleListReviews)
	content.POST("/titles/:title_id/reviews", s.handleCreateReview)
	content.GET("/titles/:title_id/reviews/:review_id", s.handleGetReview)
	content.PATCH("/titles/:title_id/reviews/:review_id", s.handleUpdateReview)
	content.DELETE("/titles/:title_id/reviews/:review_id", s.handleDeleteReview)
	content.GET("/titles/:title_id/reviews/:review_id/comments", s.handleListComments)
	content.POST("/titles/:title_id/reviews/:review_id/comments", s.handleCreateComment)
	content.GET("/titles/:title_id/reviews/:review_id/comments/:comment_id", s.handleGetComment)
	content.PATCH("/titles/:title_id/reviews/:review_id/comments/:comment_id", s.handleUpdateComment)
	content.DELETE("/titles/:title_id/reviews/:review_id/comments/:comment_id", s.handleDeleteComment)

	// 用户管理：强制认证，管理员策略在 handler 内检查
	usersGroup := v1.Group("/users")
	usersGroup.Use(middleware.Auth(s.tokens, s.users))
	usersGroup.GET("/me", s.handleGetMe)
	usersGroup.PATCH("/me", s.handleUpdateMe)
	usersGroup.GET("", s.handleListUsers)
	usersGroup.POST("", s.handleCreateUser)
	usersGroup.GET("/:username", s.handleGetUser)
	usersGroup.PATCH("/:username", s.handleUpdateUser)
	usersGroup.DELETE("/:username", s.handleDeleteUser)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// pageParams 解析 limit/offset 分页参数。
func (s *Server) pageParams(c *gin.Context) (limit, offset int) {
	limit = s.cfg.App.PageLimit
	if v := c.Query("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			if i > 100 {
				i = 100
			}
			limit = i
		}
	}
	if v := c.Query("offset"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			offset = i
		}
	}
	return limit, offset
}

// pagedResponse 列表接口的统一响应包装。
type pagedResponse struct {
	Count   int64       `json:"count"`
	Results interface{} `json:"results"`
}

// forbidden 写出 403 响应。
func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
}
