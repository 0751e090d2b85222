package api

import (
	"fmt"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/logger"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ApiHandler struct {
	RebalancerHandler app.RebalancerHandler
	// HS256 secret; auth is off when empty
	JwtSecret string
	Logger    *zap.SugaredLogger
}

func (m ApiHandler) InitializeRouterEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(m.logRequestMiddleware)

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(200, map[string]string{"message": "welcome to sector rebalance"})
	})

	authed := router.Group("/", authMiddleware(m.JwtSecret))
	authed.POST("/allocate", m.allocate)
	authed.POST("/targets", m.targets)
	authed.POST("/rebalance", m.rebalance)
	authed.POST("/run", m.run)

	return router
}

func (m ApiHandler) StartApi(port int) error {
	return m.InitializeRouterEngine().Run(fmt.Sprintf(":%d", port))
}

func returnErrorJson(err error, c *gin.Context) {
	returnErrorJsonCode(err, c, 500)
}

func returnErrorJsonCode(err error, c *gin.Context, code int) {
	logger.FromContext(c).Errorw("request failed", "status", code, "error", err.Error())
	c.AbortWithStatusJSON(code, gin.H{
		"error": err.Error(),
	})
}

func (m ApiHandler) logRequestMiddleware(c *gin.Context) {
	lg := m.Logger
	if lg == nil {
		lg = zap.S()
	}
	requestID := uuid.New().String()
	lg = lg.With("requestID", requestID, "method", c.Request.Method, "route", c.Request.URL.Path)
	c.Set(logger.ContextKey, lg)
	c.Set("requestID", requestID)

	start := time.Now().UTC()
	c.Next()

	lg.Infow("handled request",
		"status", c.Writer.Status(),
		"durationMs", time.Since(start).Milliseconds(),
		"ip", c.ClientIP(),
	)
}
