package router

import "github.com/gin-gonic/gin"

// RegisterTelegramRoutes registers the Bot API webhook.
func (rt *Router) RegisterTelegramRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhook", rt.handlers.Telegram.Webhook)
}
