package handler

import (
	"support_chat_server/internal/dto/request"
	"support_chat_server/internal/dto/respond"
	"support_chat_server/internal/gateway/websocket"
	"support_chat_server/internal/model"
	"support_chat_server/internal/service"
	"support_chat_server/internal/service/relay"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the admin inbox. Routes are behind middleware.JWTAuth.
type AdminHandler struct {
	inboxSvc service.InboxService
	gateway  *websocket.Gateway
}

func NewAdminHandler(inboxSvc service.InboxService, gateway *websocket.Gateway) *AdminHandler {
	return &AdminHandler{inboxSvc: inboxSvc, gateway: gateway}
}

// Sessions lists sessions by last activity.
// GET /admin/sessions?limit=50
func (h *AdminHandler) Sessions(c *gin.Context) {
	var req request.SessionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	sessions, err := h.inboxSvc.Sessions(c.Request.Context(), req.Limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, sessions)
}

// MarkRead opens a session: unread counter reset, visible messages read.
// POST /admin/session/read
func (h *AdminHandler) MarkRead(c *gin.Context) {
	var req request.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.inboxSvc.Open(c.Request.Context(), req.SessionId, req.VisibleIds); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// ToggleBlock flips the blocked flag.
// POST /admin/session/block
func (h *AdminHandler) ToggleBlock(c *gin.Context) {
	var req request.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	blocked, err := h.inboxSvc.ToggleBlock(c.Request.Context(), req.SessionId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.ToggleBlockRespond{SessionId: req.SessionId, Blocked: blocked})
}

// DeleteSession removes a session with all its messages.
// POST /admin/session/delete
func (h *AdminHandler) DeleteSession(c *gin.Context) {
	var req request.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.inboxSvc.DeleteSession(c.Request.Context(), req.SessionId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Messages loads a window of a session's history.
// GET /admin/messages?sessionId=xxx&before=cursor&limit=30
func (h *AdminHandler) Messages(c *gin.Context) {
	var req request.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	page, err := h.inboxSvc.LoadMore(c.Request.Context(), req.SessionId, req.Before, req.Limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, page)
}

// Send replies to a session, relaying to Telegram when it is a Telegram chat.
// POST /admin/message/send
func (h *AdminHandler) Send(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	out, err := h.inboxSvc.Reply(c.Request.Context(), req.SessionId, req.Text, toMedia(req.Media))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, toRelayRespond(out))
}

// Edit changes the text of an admin message.
// POST /admin/message/edit
func (h *AdminHandler) Edit(c *gin.Context) {
	var req request.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	out, err := h.inboxSvc.Edit(c.Request.Context(), req.SessionId, req.MessageId, req.Text)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, toRelayRespond(out))
}

// DeleteMessage removes a message locally. Telegram copies are left alone.
// POST /admin/message/delete
func (h *AdminHandler) DeleteMessage(c *gin.Context) {
	var req request.DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.inboxSvc.Delete(c.Request.Context(), req.SessionId, req.MessageId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Ws upgrades to the live inbox: session list plus the selected session.
// GET /admin/ws
func (h *AdminHandler) Ws(c *gin.Context) {
	h.gateway.ServeAdmin(c.Writer, c.Request)
}

func toMedia(m *request.MediaRequest) *model.Media {
	if m == nil {
		return nil
	}
	return &model.Media{Type: model.MediaType(m.Type), URL: m.Url}
}

func toRelayRespond(out *relay.Outcome) respond.RelayRespond {
	return respond.RelayRespond{Message: out.Message, State: string(out.State), Status: out.Status}
}
