// Command kithttpd runs a small chat server demonstrating the kitHttp event
// protocol: correlated echo replies, broadcast fan-out and Prometheus
// metrics on /metrics.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	kithttp "github.com/gitvzz/kitHttp"
	"github.com/gitvzz/kitHttp/internal/log"
)

type chatApp struct {
	srv    *kithttp.KitHttp
	logger *slog.Logger
}

// ChatSocket is the websocket endpoint (GET /chat) and the fallback handler
// for events without a dedicated method.
func (a *chatApp) ChatSocket(e *kithttp.EventCtx) (interface{}, error) {
	a.logger.Info("unhandled event", "event", e.Event, "conn", e.Conn.ID())
	return nil, nil
}

// EchoEvent answers "echo" frames with a correlated reply.
func (a *chatApp) EchoEvent(e *kithttp.EventCtx) (interface{}, error) {
	if e.Reply != nil {
		return nil, e.Reply(e.Data)
	}
	return e.Data, nil
}

// SendEvent fans a chat message out to every live connection.
func (a *chatApp) SendEvent(e *kithttp.EventCtx) (interface{}, error) {
	a.srv.Broadcast("chat", map[string]interface{}{
		"from": e.Conn.ID(),
		"text": e.Data,
		"at":   time.Now().Format(time.RFC3339),
	}, nil)
	return nil, nil
}

// WhoEvent reports the sender's connection id and the current peer count.
func (a *chatApp) WhoEvent(e *kithttp.EventCtx) (interface{}, error) {
	info := map[string]interface{}{"id": e.Conn.ID(), "peers": a.srv.ConnCount()}
	if e.Reply != nil {
		return nil, e.Reply(info)
	}
	return info, nil
}

// HealthGet serves a liveness probe.
func (a *chatApp) HealthGet(c *kithttp.Ctx) (interface{}, error) {
	return kithttp.Ok(map[string]interface{}{"connections": a.srv.ConnCount()}), nil
}

func main() {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "kithttpd",
		Short:        "kitHttp demo chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			logger := log.New(cfg.Log)
			slog.SetDefault(logger)

			app := &chatApp{logger: logger}

			opts := []kithttp.Option{
				kithttp.WithHost(cfg.Host),
				kithttp.WithPort(cfg.Port),
				kithttp.WithLogger(logger),
				kithttp.WithRoutePrefix(cfg.RoutePrefix),
				kithttp.WithPublicPaths("/health"),
			}
			if cfg.SecretKey != "" {
				opts = append(opts, kithttp.WithSecretKey(cfg.SecretKey))
			}
			if cfg.Static.Path != "" {
				opts = append(opts, kithttp.WithStatic(cfg.Static.Prefix, cfg.Static.Path))
			}

			srv := kithttp.New(app, opts...)
			app.srv = srv

			return srv.Run()
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.Flags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
