// Package frontpage serves a news homepage built with Go, Echo, and templ.
// The listing package decides which posts appear; this package wires it into
// an Echo application together with authoring, feeds, sitemap and metrics.
//
// Users provide their own templ components via the ViewFuncs struct.
package frontpage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/frontpage/docstore"
	"github.com/eringen/frontpage/listing"
)

// ViewFuncs holds user-provided templ components that the app calls when
// rendering pages.
type ViewFuncs struct {
	Home        func(env listing.Envelope, site Site) templ.Component
	Post        func(post listing.ContentRecord, site Site) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// Site is the subset of SiteConfig handed to templates.
type Site struct {
	Name        string
	URL         string
	Description string
}

// App is the central frontpage application. It wires together the store,
// the listing pipeline, handlers, middleware, and user-provided templates.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Listing *listing.Handler
	Views   ViewFuncs

	conn         docstore.Connector
	registry     *prometheus.Registry
	loginLimiter *RateLimiter
	writeLimiter *RateLimiter
	validate     *validator.Validate
	customRoutes []func(*App)
	staticDir    string
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		registry:  prometheus.NewRegistry(),
		validate:  validator.New(),
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.conn == nil {
		a.conn = docstore.NewLazy(a.openStore)
	}

	return a
}

// Setup validates the configuration and installs the listing handler,
// middleware and routes. Start calls it; tests may call it directly and use
// a.Echo as an http.Handler.
func (a *App) Setup() error {
	if err := a.Config.validate(); err != nil {
		return err
	}

	a.Listing = listing.NewHandler(a.conn, a.Config.listingConfig())

	a.loginLimiter = NewRateLimiter(5, time.Minute)
	a.writeLimiter = NewRateLimiter(a.Config.WriteLimit, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start sets the app up and runs the server until it stops.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.Echo.Logger.Infof("frontpage: listening on %s (store %s, production=%v)", a.Config.Addr, a.Config.StoreDriver, a.Config.Production)
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

// openStore opens the backend named by StoreDriver. docstore.Lazy calls it on
// first use and again after a failure.
func (a *App) openStore(ctx context.Context) (docstore.Store, error) {
	switch a.Config.StoreDriver {
	case DriverMongo:
		return docstore.OpenMongo(ctx, docstore.MongoConfig{
			URI:                  a.Config.MongoURI,
			Database:             a.Config.MongoDatabase,
			PostsCollection:      a.Config.PostsCollection,
			CategoriesCollection: a.Config.CategoriesCollection,
		})
	case DriverSQLite:
		return docstore.OpenSQLite(a.Config.DatabasePath)
	default:
		return nil, fmt.Errorf("frontpage: unknown store driver %q", a.Config.StoreDriver)
	}
}

// Connect returns the shared store connection, opening it on first use.
func (a *App) Connect(ctx context.Context) (docstore.Store, error) {
	return a.conn.Connect(ctx)
}

func (a *App) site() Site {
	return Site{Name: a.Config.Name, URL: a.Config.URL, Description: a.Config.Description}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{a.registry, prometheus.DefaultGatherer},
	}))

	// Public pages
	e.GET("/", a.handleHome)
	e.GET("/posts/:slug/", a.handlePost)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	// JSON API
	api := e.Group("/api")
	api.GET("/posts", a.Listing.ServeJSON)
	api.POST("/posts", a.handleCreatePost)
	api.GET("/session", a.handleSession)
	api.POST("/session", a.handleLogin)
	api.DELETE("/session", handleLogout)
	api.POST("/banners", a.handleBannerUpload)
}

// Close stops background work and releases the store connection.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.writeLimiter != nil {
		a.writeLimiter.Stop()
	}
	if closer, ok := a.conn.(interface{ Close(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return closer.Close(ctx)
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
