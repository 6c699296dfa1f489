package request

// MediaRequest is an optional attachment.
type MediaRequest struct {
	Type string `json:"type" binding:"required,oneof=photo video audio document"`
	Url  string `json:"url"`
}

// SendMessageRequest posts a message to a session.
// Used by:
//   - internal/handler/widget_handler.go: Send
//   - internal/handler/admin_handler.go: Send
type SendMessageRequest struct {
	SessionId string        `json:"sessionId" binding:"required,sessionid"`
	Text      string        `json:"text" binding:"required_without=Media"`
	Media     *MediaRequest `json:"media" binding:"omitempty"`
}

// EditMessageRequest replaces the text of an admin message.
// Used by:
//   - internal/handler/admin_handler.go: Edit
type EditMessageRequest struct {
	SessionId string `json:"sessionId" binding:"required,sessionid"`
	MessageId string `json:"messageId" binding:"required"`
	Text      string `json:"text"`
}

// DeleteMessageRequest removes one message.
// Used by:
//   - internal/handler/admin_handler.go: DeleteMessage
type DeleteMessageRequest struct {
	SessionId string `json:"sessionId" binding:"required,sessionid"`
	MessageId string `json:"messageId" binding:"required"`
}

// MessageListRequest loads a window of history, newest first when Before is empty.
// Used by:
//   - internal/handler/widget_handler.go: Messages
//   - internal/handler/admin_handler.go: Messages
type MessageListRequest struct {
	SessionId string `form:"sessionId" binding:"required,sessionid"`
	Before    string `form:"before"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// WsRequest opens a live subscription.
// Used by:
//   - internal/handler/widget_handler.go: Ws
type WsRequest struct {
	SessionId string `form:"sessionId" binding:"required,sessionid"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
}
