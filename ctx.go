package kithttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const (
	paramsKey ctxKey = iota
	claimsKey
	localeKey
	requestIDKey
)

// ParamsFrom returns the merged request parameters stored by the param-merge
// middleware: query string, JSON body, form fields and URL path params, with
// later sources overriding earlier ones.
func ParamsFrom(ctx context.Context) map[string]interface{} {
	if p, ok := ctx.Value(paramsKey).(map[string]interface{}); ok {
		return p
	}
	return map[string]interface{}{}
}

// ClaimsFrom returns the JWT claims stored by the auth middleware, or nil.
func ClaimsFrom(ctx context.Context) jwt.MapClaims {
	if c, ok := ctx.Value(claimsKey).(jwt.MapClaims); ok {
		return c
	}
	return nil
}

// LocaleFrom returns the Locale header or parameter, if any.
func LocaleFrom(ctx context.Context) string {
	if l, ok := ctx.Value(localeKey).(string); ok {
		return l
	}
	return ""
}

// RequestIDFrom returns the id assigned to this request.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// HandlerFunc is an HTTP route handler. Returning a *Result renders it as
// JSON; returning nil means the handler already wrote the response; any other
// value is JSON-encoded as-is. A returned error becomes a 500 Result.
type HandlerFunc func(c *Ctx) (interface{}, error)

// EventHandler handles one inbound socket frame. The returned value, when
// non-nil, is pushed back as an uncorrelated frame on the same event name.
type EventHandler func(e *EventCtx) (interface{}, error)

// ReplyFunc sends a correlated reply for the frame being handled.
type ReplyFunc func(data interface{}) error

// Ctx carries one HTTP request through a route handler.
type Ctx struct {
	W      http.ResponseWriter
	R      *http.Request
	Params map[string]interface{}
	Claims jwt.MapClaims
	Locale string
}

// Param returns a merged request parameter.
func (c *Ctx) Param(name string) interface{} {
	return c.Params[name]
}

// StringParam returns a merged request parameter as a string; non-string
// values are formatted.
func (c *Ctx) StringParam(name string) string {
	v, ok := c.Params[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// JSON writes a JSON response with status 200.
func (c *Ctx) JSON(v interface{}) (interface{}, error) {
	return nil, writeJSON(c.W, http.StatusOK, v)
}

// HTML writes an HTML response with status 200.
func (c *Ctx) HTML(content string) (interface{}, error) {
	c.W.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.W.WriteHeader(http.StatusOK)
	_, err := c.W.Write([]byte(content))
	return nil, err
}

// Status writes a bare status response.
func (c *Ctx) Status(code int) (interface{}, error) {
	c.W.WriteHeader(code)
	return nil, nil
}

// EventCtx carries one inbound socket frame through an event handler.
type EventCtx struct {
	Conn   *Conn
	Event  string
	Data   interface{}
	Params map[string]interface{}
	Claims jwt.MapClaims
	R      *http.Request

	// Reply sends a correlated reply frame back on this connection. It is nil
	// when the inbound frame carried no callback token.
	Reply ReplyFunc
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
