// Package https_server builds the gin engine: middlewares first, then routes.
package https_server

import (
	"support_chat_server/internal/config"
	"support_chat_server/internal/handler"
	"support_chat_server/internal/infrastructure/logger"
	"support_chat_server/internal/infrastructure/middleware"
	"support_chat_server/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init returns the configured engine.
func Init(conf *config.Config, handlers *handler.Handlers) *gin.Engine {
	if conf.MainConfig.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = conf.AllowOrigins
	if len(conf.AllowOrigins) == 1 && conf.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	engine.Use(middleware.SecureHeaders(conf.MainConfig.Host, conf.MainConfig.Port, conf.TLSRedirect, conf.MainConfig.Mode == "dev"))

	rt := router.NewRouter(handlers)
	rt.RegisterRoutes(engine)
	return engine
}
