package respond

import "support_chat_server/internal/model"

// RelayRespond is an admin send or edit. Status is shown to the admin as a
// transient notice, e.g. "telegram proxy error: ...".
// Used by:
//   - internal/handler/admin_handler.go: Send, Edit
type RelayRespond struct {
	Message *model.Message `json:"message"`
	State   string         `json:"state"`
	Status  string         `json:"status,omitempty"`
}
