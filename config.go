package frontpage

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eringen/frontpage/docstore"
	"github.com/eringen/frontpage/listing"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// SiteConfig holds all configuration for a frontpage site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "Front Page")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Site description for RSS and meta tags

	Addr string `yaml:"addr"` // Listen address (default ":3000")

	StoreDriver          string `yaml:"store_driver"`          // "mongo" or "sqlite" (default "sqlite")
	MongoURI             string `yaml:"mongo_uri"`             // Required for the mongo driver
	MongoDatabase        string `yaml:"mongo_database"`        // default "frontpage"
	PostsCollection      string `yaml:"posts_collection"`      // default "posts"
	CategoriesCollection string `yaml:"categories_collection"` // default "categories"
	DatabasePath         string `yaml:"database_path"`         // SQLite path (default "data/frontpage.db")

	AdminPassword string `yaml:"admin_password"` // Required: admin login password
	SessionSecret string `yaml:"session_secret"` // Required: session encryption secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS

	Production      bool          `yaml:"production"`       // Hides listing diagnostics
	ResponseBudget  time.Duration `yaml:"response_budget"`  // Listing deadline (default 15s)
	StrategyTimeout time.Duration `yaml:"strategy_timeout"` // Per store call (default 3s)
	ResultLimit     int           `yaml:"result_limit"`     // Posts fetched per strategy (default 20)
	FrontPageSize   int           `yaml:"front_page_size"`  // Front page and trending size (default 10)
	SampleLimit     int           `yaml:"sample_limit"`     // Unfiltered fallback size (default 20)
	ProbeLatest     bool          `yaml:"probe_latest"`     // Try an unfiltered newest-first query before the strategies

	WriteLimit int `yaml:"write_limit"` // Authoring requests per IP per minute (default 30)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Front Page"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = DriverSQLite
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "frontpage"
	}
	if c.PostsCollection == "" {
		c.PostsCollection = string(docstore.CollectionPosts)
	}
	if c.CategoriesCollection == "" {
		c.CategoriesCollection = string(docstore.CollectionCategories)
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/frontpage.db"
	}
	if c.ResponseBudget <= 0 {
		c.ResponseBudget = 15 * time.Second
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = 3 * time.Second
	}
	if c.ResultLimit <= 0 {
		c.ResultLimit = 20
	}
	if c.FrontPageSize <= 0 {
		c.FrontPageSize = 10
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = 20
	}
	if c.WriteLimit <= 0 {
		c.WriteLimit = 30
	}
}

func (c SiteConfig) validate() error {
	if c.AdminPassword == "" {
		return fmt.Errorf("frontpage: AdminPassword is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("frontpage: SessionSecret is required")
	}
	switch c.StoreDriver {
	case DriverSQLite:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("frontpage: MongoURI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("frontpage: unknown store driver %q", c.StoreDriver)
	}
	return nil
}

func (c SiteConfig) listingConfig() listing.Config {
	return listing.Config{
		Budget:          c.ResponseBudget,
		StrategyTimeout: c.StrategyTimeout,
		ResultLimit:     c.ResultLimit,
		FrontPageSize:   c.FrontPageSize,
		SampleLimit:     c.SampleLimit,
		ProbeLatest:     c.ProbeLatest,
		Debug:           !c.Production,
	}
}

// LoadConfig reads a YAML config file, if path is not empty, and applies
// FRONTPAGE_* environment overrides on top.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("frontpage: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("frontpage: parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) applyEnv() {
	c.Name = EnvOr("FRONTPAGE_SITE_NAME", c.Name)
	c.URL = EnvOr("FRONTPAGE_SITE_URL", c.URL)
	c.Addr = EnvOr("FRONTPAGE_ADDR", c.Addr)
	c.StoreDriver = EnvOr("FRONTPAGE_STORE_DRIVER", c.StoreDriver)
	c.MongoURI = EnvOr("FRONTPAGE_MONGO_URI", c.MongoURI)
	c.DatabasePath = EnvOr("FRONTPAGE_DATABASE_PATH", c.DatabasePath)
	c.AdminPassword = EnvOr("FRONTPAGE_ADMIN_PASSWORD", c.AdminPassword)
	c.SessionSecret = EnvOr("FRONTPAGE_SESSION_SECRET", c.SessionSecret)
	if v := os.Getenv("FRONTPAGE_ENV"); v != "" {
		c.Production = v == "production"
	}
	if v, err := strconv.ParseBool(os.Getenv("FRONTPAGE_COOKIE_SECURE")); err == nil {
		c.CookieSecure = v
	}
	if d, err := time.ParseDuration(os.Getenv("FRONTPAGE_RESPONSE_BUDGET")); err == nil {
		c.ResponseBudget = d
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets and uploads (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithConnector replaces the store selected by StoreDriver.
func WithConnector(conn docstore.Connector) Option {
	return func(a *App) {
		a.conn = conn
	}
}
