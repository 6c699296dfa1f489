package request

// StartSessionRequest opens or resumes a widget session.
// Used by:
//   - internal/handler/widget_handler.go: StartSession
type StartSessionRequest struct {
	SessionId string `json:"sessionId" binding:"omitempty,websession"`
	UserName  string `json:"userName" binding:"max=64"`
	Phone     string `json:"phone" binding:"max=32"`
}

// SessionRequest targets one session.
// Used by:
//   - internal/handler/admin_handler.go: MarkRead, ToggleBlock, DeleteSession
type SessionRequest struct {
	SessionId  string   `json:"sessionId" binding:"required,sessionid"`
	VisibleIds []string `json:"visibleIds" binding:"omitempty,max=200,dive,required"` // MarkRead only
}

// SessionListRequest pages the admin session list.
// Used by:
//   - internal/handler/admin_handler.go: Sessions
type SessionListRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
