package ginserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"shopme/internal/infra/config"
	"shopme/internal/infra/obs"
)

type MessageHTTP interface {
	Send(c *gin.Context)
	History(c *gin.Context)
}

type PushTokenHTTP interface {
	Register(c *gin.Context)
}

type Handlers struct {
	Message   MessageHTTP
	PushToken PushTokenHTTP
	Realtime  gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	if h.Message != nil {
		router.POST("/message/send/:receiverId", h.Message.Send)
		router.GET("/message/:receiverId", h.Message.History)
	}
	if h.PushToken != nil {
		router.POST("/notification/token", h.PushToken.Register)
	}
	if h.Realtime != nil {
		router.GET("/ws", h.Realtime)
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func configureGinMode(env string) string {
	switch env {
	case "test":
		gin.SetMode(gin.TestMode)
	case "dev", "local":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	return gin.Mode()
}
