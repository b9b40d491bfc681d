package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/LJTian/ShortsHub/internal/aggregator"
	"github.com/LJTian/ShortsHub/internal/config"
	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/LJTian/ShortsHub/internal/scheduler"
	"github.com/gin-gonic/gin"
)

type Server struct {
	agg    *aggregator.Aggregator
	cfg    *config.Config
	prober *scheduler.Prober // 可为 nil（未开启探活）
	now    func() time.Time
}

func NewServer(agg *aggregator.Aggregator, cfg *config.Config, prober *scheduler.Prober) *Server {
	return &Server{agg: agg, cfg: cfg, prober: prober, now: config.Now}
}

// NewEngine 创建带中间件与路由的 gin 实例
func NewEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware(s.cfg.CORSAllowOrigin))

	s.RegisterRoutes(r)

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"success": false,
			"error":   "method not allowed",
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not found",
		})
	})
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	// 兼容旧前端使用的路径
	r.GET("/api/news", s.listNews)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.prober != nil {
		if st, ran := s.prober.Status(); ran {
			body["upstream"] = st
			if !st.OK {
				body["status"] = "degraded"
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listNews(c *gin.Context) {
	req, err := parseNewsRequest(c, s.cfg, s.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	res, err := s.agg.Aggregate(c.Request.Context(), req.Window)
	if err != nil {
		if errors.Is(err, aggregator.ErrInvalidWindow) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		logger.L.Errorf("list news: category=%s: %v", req.Window.Category, err)
		c.JSON(http.StatusBadGateway, Failure(req, MsgUpstreamFailed))
		return
	}

	c.JSON(http.StatusOK, Assemble(req, res))
}
