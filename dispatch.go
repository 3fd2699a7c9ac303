package kithttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gitvzz/kitHttp/socket"
)

// dispatch routes one inbound text frame. A handler registered for the
// frame's event takes precedence over the endpoint's default handler. When
// the frame carries a callback token the handler additionally gets a Reply
// capability that sends a correlated frame; independent of any such reply,
// a non-nil return value is pushed as an uncorrelated follow-up frame on the
// same event name. Handler errors and panics become error frames; they never
// end the receive loop.
func (k *KitHttp) dispatch(conn *Conn, r *http.Request, params map[string]interface{}, defaultHandler EventHandler, payload []byte) {
	var f socket.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		k.sendError(conn, "Invalid JSON format")
		return
	}

	ec := &EventCtx{
		Conn:   conn,
		Event:  f.Event,
		Data:   f.Data,
		Params: params,
		Claims: ClaimsFrom(r.Context()),
		R:      r,
	}

	if f.Callback != "" {
		event, token := f.Event, f.Callback
		ec.Reply = func(data interface{}) error {
			k.metrics.FramesSent.Inc()
			return conn.send(socket.Frame{Event: event, Data: data, Callback: token})
		}
	}

	handler := defaultHandler
	if h, ok := k.events[f.Event]; ok {
		handler = h
	}
	if handler == nil {
		k.logger.Debug("no handler for event", "event", f.Event, "conn", conn.ID())
		return
	}

	value, err := invokeHandler(handler, ec)
	if err != nil {
		k.logger.Error("event handler failed", "event", f.Event, "conn", conn.ID(), "error", err)
		k.metrics.DispatchErrors.Inc()
		k.sendError(conn, err.Error())
		return
	}

	if value != nil {
		k.metrics.FramesSent.Inc()
		if err := conn.Emit(f.Event, value); err != nil {
			k.logger.Warn("follow-up send failed", "event", f.Event, "conn", conn.ID(), "error", err)
		}
	}
}

func invokeHandler(h EventHandler, ec *EventCtx) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ec)
}

func (k *KitHttp) sendError(conn *Conn, msg string) {
	k.metrics.FramesSent.Inc()
	if err := conn.Emit(socket.EventError, map[string]interface{}{"message": msg}); err != nil {
		k.logger.Warn("error frame send failed", "conn", conn.ID(), "error", err)
	}
}
