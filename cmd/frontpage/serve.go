package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/eringen/frontpage"
	"github.com/eringen/frontpage/listing"
	"github.com/eringen/frontpage/views"
)

func serveCmd() *cobra.Command {
	var (
		addr   string
		static string
		trace  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the web server.

Examples:
  frontpage serve --config frontpage.yaml
  FRONTPAGE_STORE_DRIVER=mongo FRONTPAGE_MONGO_URI=mongodb://localhost:27017 frontpage serve
  frontpage serve --trace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			if trace {
				shutdown, err := initTracer()
				if err != nil {
					return err
				}
				defer shutdown()
			}

			app := frontpage.New(cfg, siteViews(), frontpage.WithStaticDir(static))
			defer app.Close()

			app.Echo.HideBanner = true
			if cfg.Production {
				app.Echo.Logger.SetLevel(log.WARN)
			} else {
				app.Echo.Logger.SetLevel(log.INFO)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- app.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			return app.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&static, "static", "public", "static assets and uploads directory")
	cmd.Flags().BoolVar(&trace, "trace", false, "print listing spans to stdout")
	return cmd
}

func loadConfig(cmd *cobra.Command) (frontpage.SiteConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return frontpage.LoadConfig(path)
}

// siteViews adapts the views package to the app's view hooks.
func siteViews() frontpage.ViewFuncs {
	return frontpage.ViewFuncs{
		Home: func(env listing.Envelope, site frontpage.Site) templ.Component {
			return views.Home(env, views.Site(site))
		},
		Post: func(post listing.ContentRecord, site frontpage.Site) templ.Component {
			return views.Post(post, views.Site(site))
		},
		NotFound:    views.NotFound,
		ServerError: views.ServerError,
	}
}

func initTracer() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(os.Stderr, "trace shutdown:", err)
		}
	}, nil
}
