package router

import "github.com/gin-gonic/gin"

// RegisterWidgetRoutes registers the public customer routes.
func (rt *Router) RegisterWidgetRoutes(rg *gin.RouterGroup) {
	rg.POST("/session", rt.handlers.Widget.StartSession) // open or resume a session
	rg.POST("/message", rt.handlers.Widget.Send)         // customer message
	rg.GET("/messages", rt.handlers.Widget.Messages)     // history window
	rg.GET("/ws", rt.handlers.Widget.Ws)                 // live window
}
