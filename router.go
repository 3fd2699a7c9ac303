package kithttp

import (
	"log/slog"
	"reflect"
	"strings"
)

// route is one entry in the table built from an application object.
type route struct {
	method  string // GET, POST, PUT, DELETE or ACTION (GET+POST)
	path    string
	name    string
	handler HandlerFunc  // nil for socket routes
	socket  EventHandler // default frame handler for socket routes
}

// Route suffixes, in matching order. A method named UserInfoGet registers
// GET /user/info; PingAction registers the path for both GET and POST;
// ChatSocket registers GET /chat as a websocket endpoint whose method is the
// fallback handler for inbound frames.
var routeSuffixes = []struct {
	suffix string
	method string
}{
	{"Action", "ACTION"},
	{"Socket", "SOCKET"},
	{"Delete", "DELETE"},
	{"Post", "POST"},
	{"Put", "PUT"},
	{"Get", "GET"},
}

const eventSuffix = "Event"

// buildTable inspects app once and returns the route table plus the
// per-event handler map. Methods ending in "Event" with the EventHandler
// signature handle the matching socket event: EchoEvent handles "echo",
// GetUsersEvent handles "getUsers". Dispatch never reflects per frame; the
// lookup map is built here and only here.
func buildTable(app interface{}, logger *slog.Logger) ([]route, map[string]EventHandler) {
	events := make(map[string]EventHandler)
	var routes []route

	if app == nil {
		return routes, events
	}

	v := reflect.ValueOf(app)
	t := v.Type()

	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		fn := v.Method(i).Interface()

		if strings.HasSuffix(name, eventSuffix) && len(name) > len(eventSuffix) {
			h, ok := fn.(func(*EventCtx) (interface{}, error))
			if !ok {
				logger.Warn("event method has wrong signature, skipped", "method", name)
				continue
			}
			event := lowerFirst(strings.TrimSuffix(name, eventSuffix))
			events[event] = h
			continue
		}

		for _, s := range routeSuffixes {
			if !strings.HasSuffix(name, s.suffix) || len(name) == len(s.suffix) {
				continue
			}
			base := strings.TrimSuffix(name, s.suffix)

			rt := route{method: s.method, path: routePath(name, base), name: name}
			if s.method == "SOCKET" {
				h, ok := fn.(func(*EventCtx) (interface{}, error))
				if !ok {
					logger.Warn("socket method has wrong signature, skipped", "method", name)
					break
				}
				rt.socket = h
			} else {
				h, ok := fn.(func(*Ctx) (interface{}, error))
				if !ok {
					logger.Warn("route method has wrong signature, skipped", "method", name)
					break
				}
				rt.handler = h
			}
			routes = append(routes, rt)
			break
		}
	}

	return routes, events
}

func routePath(name, base string) string {
	switch name {
	case "IndexGet":
		return "/"
	case "FaviconIcoGet":
		return "/favicon.ico"
	}
	return camelToPath(base)
}
