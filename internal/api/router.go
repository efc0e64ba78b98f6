package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Runner         Runner
	Helpdesk       Diagnostics
	Archiver       *Archiver // optional
	Metrics        http.Handler
	ConfigErr      error
	MaxUploadBytes int64
	AllowOrigins   []string
	Logger         *zap.Logger
}

func NewRouter(rc RouterConfig) *gin.Engine {
	logger := rc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	if rc.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = rc.MaxUploadBytes
	}

	origins := rc.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	handler := NewHandler(rc.Helpdesk, rc.ConfigErr)
	uploadHandler := NewUploadHandler(rc.Runner, rc.Archiver, logger)

	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
	r.GET("/freshdesk-test", handler.AuthTest)
	r.GET("/ticket-fields", handler.TicketFields)
	r.POST("/send-bulk", LimitBody(rc.MaxUploadBytes), uploadHandler.SendBulk)
	if rc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rc.Metrics))
	}
	return r
}
