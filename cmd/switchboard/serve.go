// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/z5labs/switchboard"
	"github.com/z5labs/switchboard/config"
	"github.com/z5labs/switchboard/dispatch"
	"github.com/z5labs/switchboard/health"
	"github.com/z5labs/switchboard/identity/kubesecret"
	"github.com/z5labs/switchboard/lifecycle"
	"github.com/z5labs/switchboard/listener"
	"github.com/z5labs/switchboard/pkg/otelconfig"
	"github.com/z5labs/switchboard/runtime"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

type serveFlags struct {
	configFile   string
	logLevel     slog.Level
	drainTimeout time.Duration
	forceClose   bool
}

func serveCmd() *cobra.Command {
	var (
		flags    serveFlags
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen and serve until interrupted",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.logLevel.UnmarshalText([]byte(logLevel))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := configSources(flags.configFile)
			if err != nil {
				return err
			}

			return switchboard.Run(cmd.Context(), builder(flags), srcs...)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.configFile, "config", "", "YAML or JSON config file, rendered as a text/template")
	fs.StringVar(&logLevel, "log-level", "info", "minimum log level")
	fs.DurationVar(&flags.drainTimeout, "drain-timeout", runtime.DefaultDrainTimeout, "how long to wait for connections to finish on shutdown")
	fs.BoolVar(&flags.forceClose, "force-close", false, "close accepted connections immediately on shutdown")

	return cmd
}

// configSources renders the config file, if any, and layers the
// SWITCHBOARD_ environment variables over it.
func configSources(path string) ([]config.Source, error) {
	if path == "" {
		return []config.Source{config.FromEnv()}, nil
	}

	file, err := config.FromFile(path, config.TemplateFunc("env", os.Getenv))
	if err != nil {
		return nil, err
	}
	return []config.Source{file, config.FromEnv()}, nil
}

func builder(flags serveFlags) switchboard.Builder[config.Listener] {
	return switchboard.BuilderFunc[config.Listener](func(ctx context.Context, cfg config.Listener) (switchboard.Runtime, error) {
		logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: flags.logLevel})

		b, err := build(ctx, cfg, logHandler, prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}

		opts := append(b.opts,
			runtime.LogHandler(logHandler),
			runtime.DrainTimeout(flags.drainTimeout),
			runtime.ForceClose(flags.forceClose),
		)
		r := runtime.New(b.l, opts...)
		return switchboard.RecoverPanics(switchboard.NotifyOnSignal(r, os.Interrupt)), nil
	})
}

type built struct {
	app  *switchboard.App
	l    *listener.Listener
	opts []runtime.Option
}

func build(ctx context.Context, cfg config.Listener, logHandler slog.Handler, reg *prometheus.Registry) (*built, error) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lopts, err := listener.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "switchboard"
	}
	tracing, err := otelconfig.FromConfig(cfg.Tracing.Exporter, serviceName, cfg.Tracing.Target)
	if err != nil {
		return nil, err
	}
	tp, shutdown, err := tracing.Init(ctx)
	if err != nil {
		return nil, err
	}
	lc, hasLifecycle := lifecycle.FromContext(ctx)
	if hasLifecycle {
		lc.OnPostRun(lifecycle.HookFunc(shutdown))
	}
	// The listener instruments requests through the global provider.
	otel.SetTracerProvider(tp)

	app := switchboard.New(
		dispatch.LogHandler(logHandler),
		dispatch.Env(cfg.Env),
		dispatch.TracerProvider(tp),
	)

	lopts = append(lopts,
		listener.WithRegisterer(reg),
		listener.WithLogHandler(logHandler),
	)
	l, err := app.Listen(lopts...)
	if err != nil {
		return nil, err
	}
	if hasLifecycle {
		lc.OnPostRun(lifecycle.HookFunc(l.Destroy))
	}

	routes(app, l, reg)

	b := &built{
		app: app,
		l:   l,
	}
	if !cfg.Kubernetes.Enabled() {
		return b, nil
	}

	src, err := secretSource(cfg.Kubernetes, logHandler)
	if err != nil {
		return nil, err
	}
	if cfg.Kubernetes.Watch {
		b.opts = append(b.opts, runtime.Background(func(ctx context.Context) error {
			return src.Watch(ctx, l)
		}))
		return b, nil
	}

	_, err = src.Load(ctx, l)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func routes(app *switchboard.App, l *listener.Listener, reg *prometheus.Registry) {
	app.Get("/healthz", dispatch.HTTP(health.Handler(l)))
	app.Get("/metrics", dispatch.HTTP(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	app.Use("/api", dispatch.HTTP(apiRouter()))
	app.WS("/echo", dispatch.HandlerFunc(echo))
}

func apiRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Hello, %s", chi.URLParam(r, "name"))
	})
	r.Get("/time", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, time.Now().UTC().Format(time.RFC3339))
	})
	return r
}

func echo(c *dispatch.Context, next dispatch.Next) {
	defer c.WebSocket.Close()

	for {
		typ, msg, err := c.WebSocket.ReadMessage()
		if err != nil {
			return
		}
		err = c.WebSocket.WriteMessage(typ, msg)
		if err != nil {
			return
		}
	}
}

func secretSource(cfg config.Kubernetes, logHandler slog.Handler) (*kubesecret.Source, error) {
	// An empty kubeconfig falls back to the in-cluster config.
	restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return kubesecret.New(
		client,
		kubesecret.Namespace(cfg.Namespace),
		kubesecret.LabelSelector(cfg.LabelSelector),
		kubesecret.LogHandler(logHandler),
	), nil
}
