// Package kithttp is a small web framework built around an event-framed
// websocket protocol. Application objects expose HTTP routes and socket event
// handlers through method naming conventions; live connections are tracked in
// a registry that supports correlated replies and broadcast.
package kithttp

import "encoding/json"

// Result is the uniform response envelope used by route handlers, socket
// event handlers and the HTTP client wrapper.
type Result struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Code    int         `json:"code"`
}

// Ok returns a successful Result carrying data.
func Ok(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// Fail returns a failed Result with a message.
func Fail(msg string) *Result {
	return &Result{Success: false, Msg: msg, Code: -1}
}

// FailCode returns a failed Result with a message and code.
func FailCode(msg string, code int) *Result {
	return &Result{Success: false, Msg: msg, Code: code}
}

// JSON renders the Result as a JSON byte slice.
func (r *Result) JSON() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"success":false,"msg":"encoding error","code":-1}`)
	}
	return b
}
