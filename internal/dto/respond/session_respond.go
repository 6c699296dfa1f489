package respond

// ToggleBlockRespond carries the new blocked state.
// Used by:
//   - internal/handler/admin_handler.go: ToggleBlock
type ToggleBlockRespond struct {
	SessionId string `json:"sessionId"`
	Blocked   bool   `json:"blocked"`
}
