package kithttp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gitvzz/kitHttp/socket/transport"
)

// KitHttp is the server: an HTTP router populated from an application
// object's method names, plus a registry of live socket connections with
// event dispatch and broadcast.
type KitHttp struct {
	host          string
	port          int
	secretKey     string
	routePrefix   string
	staticPrefix  string
	staticPath    string
	clientMaxSize int64
	logger        *slog.Logger
	socketConfig  transport.WebSocketServerConfig
	public        map[string]bool
	upgrader      websocket.Upgrader

	mux       *chi.Mux
	srv       *http.Server
	boundAddr string
	conns     *connRegistry
	metrics   *Metrics
	events    map[string]EventHandler
}

type Option func(*KitHttp)

func WithHost(host string) Option {
	return func(k *KitHttp) { k.host = host }
}

func WithPort(port int) Option {
	return func(k *KitHttp) { k.port = port }
}

// WithSecretKey enables JWT authentication on non-public routes.
func WithSecretKey(key string) Option {
	return func(k *KitHttp) { k.secretKey = key }
}

// WithRoutePrefix prepends prefix to every convention route.
func WithRoutePrefix(prefix string) Option {
	return func(k *KitHttp) { k.routePrefix = strings.TrimSuffix(prefix, "/") }
}

// WithStatic serves files from dir under the given URL prefix.
func WithStatic(prefix, dir string) Option {
	return func(k *KitHttp) {
		k.staticPrefix = strings.TrimSuffix(prefix, "/")
		k.staticPath = dir
	}
}

// WithClientMaxSize bounds in-memory multipart parsing.
func WithClientMaxSize(n int64) Option {
	return func(k *KitHttp) { k.clientMaxSize = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(k *KitHttp) { k.logger = logger }
}

// WithSocketConfig tunes the server-side websocket transport (ping interval,
// pong wait, write timeout, buffer sizes).
func WithSocketConfig(cfg transport.WebSocketServerConfig) Option {
	return func(k *KitHttp) { k.socketConfig = cfg }
}

// WithPublicPaths exempts additional paths from JWT authentication.
func WithPublicPaths(paths ...string) Option {
	return func(k *KitHttp) {
		for _, p := range paths {
			k.public[p] = true
		}
	}
}

// New builds a server from the application object. app's exported methods
// define HTTP routes (Get/Post/Put/Delete/Action suffixes), websocket
// endpoints (Socket suffix) and socket event handlers (Event suffix); app may
// be nil for a bare server. Defaults for the index page, favicon and login
// route are installed unless app provides its own.
func New(app interface{}, opts ...Option) *KitHttp {
	k := &KitHttp{
		host:          "0.0.0.0",
		port:          8080,
		clientMaxSize: 10 << 20,
		logger:        slog.Default(),
		socketConfig:  transport.DefaultWebSocketServerConfig(),
		public:        make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:   newConnRegistry(),
		metrics: newMetrics("kithttp"),
	}

	for _, opt := range opts {
		opt(k)
	}

	routes, events := buildTable(app, k.logger)
	k.events = events
	k.mux = k.buildMux(routes)

	return k
}

// buildMux assembles the chi router: defaults first, app routes overriding
// them, all behind the request-id, param-merge and auth middlewares.
func (k *KitHttp) buildMux(routes []route) *chi.Mux {
	table := map[string]route{}
	for _, rt := range defaultRoutes() {
		table[rt.method+" "+rt.path] = rt
	}
	for _, rt := range routes {
		table[rt.method+" "+rt.path] = rt
	}

	mux := chi.NewRouter()
	mux.Use(k.requestID, k.mergeParams, k.auth)

	loginPath := k.routePrefix + "/login"
	k.public[loginPath] = true
	k.public["/favicon.ico"] = true
	k.public["/metrics"] = true

	for _, rt := range table {
		path := rt.path
		if path != "/" && path != "/favicon.ico" {
			path = k.routePrefix + path
		} else if path == "/" && k.routePrefix != "" {
			path = k.routePrefix + "/"
		}

		var h http.HandlerFunc
		if rt.socket != nil {
			h = k.wrapSocket(rt)
		} else {
			h = k.wrapHandler(rt)
		}

		switch rt.method {
		case "ACTION":
			mux.Get(path, h)
			mux.Post(path, h)
		case "SOCKET":
			mux.Get(path, h)
		default:
			mux.Method(rt.method, path, h)
		}

		if rt.name == "IndexGet" {
			mux.Get(k.routePrefix+"/index", h)
		}

		k.logger.Debug("route registered", "method", rt.method, "path", path, "handler", rt.name)
	}

	mux.Method(http.MethodGet, "/metrics", k.metrics.Handler())

	if k.staticPath != "" {
		fs := http.StripPrefix(k.staticPrefix, http.FileServer(http.Dir(k.staticPath)))
		mux.Get(k.staticPrefix+"/*", fs.ServeHTTP)
	}

	return mux
}

func defaultRoutes() []route {
	return []route{
		{method: "GET", path: "/", name: "IndexGet", handler: func(c *Ctx) (interface{}, error) {
			return c.HTML("<h1>Welcome to kitHttp!</h1>")
		}},
		{method: "GET", path: "/favicon.ico", name: "FaviconIcoGet", handler: func(c *Ctx) (interface{}, error) {
			return c.Status(http.StatusNoContent)
		}},
		{method: "ACTION", path: "/login", name: "LoginAction", handler: func(c *Ctx) (interface{}, error) {
			return Fail("login failed"), nil
		}},
	}
}

func (k *KitHttp) wrapHandler(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := &Ctx{
			W:      w,
			R:      r,
			Params: mergedParams(r),
			Claims: ClaimsFrom(r.Context()),
			Locale: LocaleFrom(r.Context()),
		}

		value, err := rt.handler(c)
		if err != nil {
			k.logger.Error("route handler failed", "route", rt.name, "error", err)
			writeJSON(w, http.StatusInternalServerError, FailCode("Internal Server Error: "+err.Error(), http.StatusInternalServerError))
			return
		}

		switch v := value.(type) {
		case nil:
			// handler wrote its own response
		case *Result:
			writeJSON(w, http.StatusOK, v)
		default:
			writeJSON(w, http.StatusOK, v)
		}
	}
}

func (k *KitHttp) wrapSocket(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Not a WebSocket request"})
			return
		}
		k.serveSocket(w, r, rt.socket)
	}
}

// Handler exposes the assembled router, mainly for tests and embedding.
func (k *KitHttp) Handler() http.Handler {
	return k.mux
}

// Conn returns the live connection registered under id.
func (k *KitHttp) Conn(id string) (*Conn, bool) {
	return k.conns.get(id)
}

// ConnCount returns the number of live connections.
func (k *KitHttp) ConnCount() int {
	return k.conns.len()
}

// Metrics returns the server's metrics handle.
func (k *KitHttp) Metrics() *Metrics {
	return k.metrics
}

// Broadcast sends an event frame to every live connection matching filter
// (all of them when filter is nil). A failed send to one connection is logged
// and never stops delivery to the rest.
func (k *KitHttp) Broadcast(event string, data interface{}, filter func(*Conn) bool) {
	k.metrics.BroadcastsTotal.Inc()
	for _, conn := range k.conns.snapshot() {
		if filter != nil && !filter(conn) {
			continue
		}
		k.metrics.FramesSent.Inc()
		if err := conn.Emit(event, data); err != nil {
			k.logger.Warn("broadcast send failed", "conn", conn.ID(), "event", event, "error", err)
		}
	}
}

// Addr returns the configured listen address.
func (k *KitHttp) Addr() string {
	return net.JoinHostPort(k.host, fmt.Sprintf("%d", k.port))
}

// BoundAddr returns the address Start actually bound, useful when the
// configured port is 0.
func (k *KitHttp) BoundAddr() string {
	return k.boundAddr
}

// Run starts the server and blocks until it stops.
func (k *KitHttp) Run() error {
	k.srv = &http.Server{Addr: k.Addr(), Handler: k.mux}
	k.logger.Info("server running", "addr", k.Addr())
	err := k.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Start runs the server in the background. Use Stop to shut it down.
func (k *KitHttp) Start() error {
	ln, err := net.Listen("tcp", k.Addr())
	if err != nil {
		return err
	}
	k.srv = &http.Server{Handler: k.mux}
	k.boundAddr = ln.Addr().String()
	k.logger.Info("server running", "addr", k.boundAddr)
	go func() {
		if err := k.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			k.logger.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes every live socket connection and shuts the HTTP server down.
func (k *KitHttp) Stop(ctx context.Context) error {
	for _, conn := range k.conns.snapshot() {
		if err := conn.Close("Server shutdown"); err != nil {
			k.logger.Warn("close failed during shutdown", "conn", conn.ID(), "error", err)
		}
	}
	if k.srv == nil {
		return nil
	}
	return k.srv.Shutdown(ctx)
}

// SaveFile stores uploaded files under dir/YYYYMMDD with random names,
// skipping files whose content type is not in formats (when formats is
// non-empty) and truncating none: a file exceeding limit bytes is discarded.
// It returns the paths of the files actually written.
func (k *KitHttp) SaveFile(files []*multipart.FileHeader, dir string, limit int64, formats []string) ([]string, error) {
	day := time.Now().Format("20060102")
	target := filepath.Join(dir, day)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, err
	}

	allowed := func(ct string) bool {
		if len(formats) == 0 {
			return true
		}
		for _, f := range formats {
			if f == ct {
				return true
			}
		}
		return false
	}

	var saved []string
	for _, fh := range files {
		ct := fh.Header.Get("Content-Type")
		if !allowed(ct) {
			continue
		}
		if limit > 0 && fh.Size > limit {
			continue
		}

		ext := "bin"
		if i := strings.LastIndex(ct, "/"); i >= 0 && i < len(ct)-1 {
			ext = ct[i+1:]
		}
		location := filepath.Join(target, randomDigits(10)+"."+ext)

		if err := copyUpload(fh, location); err != nil {
			k.logger.Error("save file failed", "file", fh.Filename, "error", err)
			continue
		}
		saved = append(saved, location)
	}

	return saved, nil
}

func copyUpload(fh *multipart.FileHeader, location string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(location)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
