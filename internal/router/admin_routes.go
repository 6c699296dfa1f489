package router

import "github.com/gin-gonic/gin"

// RegisterAdminRoutes registers the inbox routes; rg already requires an admin token.
func (rt *Router) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", rt.handlers.Admin.Sessions)
	rg.GET("/messages", rt.handlers.Admin.Messages)
	rg.GET("/ws", rt.handlers.Admin.Ws)

	sessionGroup := rg.Group("/session")
	{
		sessionGroup.POST("/read", rt.handlers.Admin.MarkRead)        // reset unread, mark visible messages read
		sessionGroup.POST("/block", rt.handlers.Admin.ToggleBlock)    // toggle blocked
		sessionGroup.POST("/delete", rt.handlers.Admin.DeleteSession) // delete with all messages
	}

	messageGroup := rg.Group("/message")
	{
		messageGroup.POST("/send", rt.handlers.Admin.Send)
		messageGroup.POST("/edit", rt.handlers.Admin.Edit)
		messageGroup.POST("/delete", rt.handlers.Admin.DeleteMessage)
	}
}
