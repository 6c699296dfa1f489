package handler

import (
	"crypto/subtle"
	"net/http"

	"support_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramHandler receives Bot API webhook updates.
type TelegramHandler struct {
	webhook http.Handler
	secret  string
}

func NewTelegramHandler(webhook http.Handler, secret string) *TelegramHandler {
	return &TelegramHandler{webhook: webhook, secret: secret}
}

// Webhook hands the update to the bot after checking the secret token.
// POST /telegram/webhook
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(secretTokenHeader)), []byte(h.secret)) != 1 {
		zap.L().Warn("telegram webhook with a wrong secret token", zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, ResponseData{Code: errorx.CodeUnauthorized, Msg: "invalid secret token"})
		return
	}
	h.webhook.ServeHTTP(c.Writer, c.Request)
}
