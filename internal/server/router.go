package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/open-zapdesk/zapdesk/internal/api/handler"
	"github.com/open-zapdesk/zapdesk/internal/api/middleware"
)

type Options struct {
	Env        string
	AuthSecret string

	HealthHandler     *handler.HealthHandler
	IngestHandler     *handler.IngestHandler
	TicketHandler     *handler.TicketHandler
	ConnectionHandler *handler.ConnectionHandler
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)

	protected := api.Group("")
	protected.Use(middleware.Auth(opts.AuthSecret))

	opts.IngestHandler.Register(protected)
	opts.TicketHandler.Register(protected)
	opts.ConnectionHandler.Register(protected)

	return router
}
