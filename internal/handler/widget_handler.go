package handler

import (
	"support_chat_server/internal/dto/request"
	"support_chat_server/internal/gateway/websocket"
	"support_chat_server/internal/service"
	"support_chat_server/internal/service/session"

	"github.com/gin-gonic/gin"
)

// WidgetHandler serves the public customer widget.
type WidgetHandler struct {
	widgetSvc service.WidgetService
	gateway   *websocket.Gateway
}

func NewWidgetHandler(widgetSvc service.WidgetService, gateway *websocket.Gateway) *WidgetHandler {
	return &WidgetHandler{widgetSvc: widgetSvc, gateway: gateway}
}

// StartSession opens a new session or resumes the one the browser kept.
// POST /widget/session
func (h *WidgetHandler) StartSession(c *gin.Context) {
	var req request.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	sess, err := h.widgetSvc.StartSession(c.Request.Context(), session.CreateRequest{
		ID:       req.SessionId,
		UserName: req.UserName,
		Phone:    req.Phone,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, sess)
}

// Send posts a customer message.
// POST /widget/message
func (h *WidgetHandler) Send(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	msg, err := h.widgetSvc.Send(c.Request.Context(), req.SessionId, req.Text, toMedia(req.Media))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msg)
}

// Messages returns a window of the customer's history.
// GET /widget/messages?sessionId=xxx&before=cursor&limit=30
func (h *WidgetHandler) Messages(c *gin.Context) {
	var req request.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	page, err := h.widgetSvc.History(c.Request.Context(), req.SessionId, req.Before, req.Limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, page)
}

// Ws upgrades to a live window of the session.
// GET /widget/ws?sessionId=xxx
func (h *WidgetHandler) Ws(c *gin.Context) {
	var req request.WsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	h.gateway.ServeWidget(c.Writer, c.Request, req.SessionId, req.Limit)
}
