// Package router registers the HTTP routes.
package router

import (
	"net/http"

	"support_chat_server/internal/handler"
	"support_chat_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router holds the handlers the routes point at.
type Router struct {
	handlers *handler.Handlers
}

func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes registers every route group on r.
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	rt.RegisterWidgetRoutes(r.Group("/widget"))

	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuth())
	rt.RegisterAdminRoutes(admin)

	if rt.handlers.Telegram != nil {
		rt.RegisterTelegramRoutes(r.Group("/telegram"))
	}
}
