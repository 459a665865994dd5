package config

import (
	"fmt"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config holds all runtime configuration. It is loaded exactly once in main
// and passed by value into every constructor; no component reads ambient
// state. Values come from environment variables (TRUTHY prefix) with an
// optional config.hcl / config.local.hcl override file.
type Config struct {
	// Feed source
	FeedInstance string `hcl:"feed_instance" env:"FEED_INSTANCE" default:"truthsocial.com"`
	FeedUsername string `hcl:"feed_username" env:"FEED_USERNAME" required:"true"`
	PageLimit    int    `hcl:"page_limit" env:"PAGE_LIMIT" default:"40"`

	// Poll loop
	PollInterval   time.Duration `hcl:"poll_interval" env:"POLL_INTERVAL" default:"5m"`
	RequestTimeout time.Duration `hcl:"request_timeout" env:"REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `hcl:"max_retries" env:"MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `hcl:"retry_base_delay" env:"RETRY_BASE_DELAY" default:"1s"`

	// Request intermediary: "scrapeops", "solver" or "direct"
	ProxyMode        string `hcl:"proxy_mode" env:"PROXY_MODE" default:"scrapeops"`
	ScrapeOpsAPIKey  string `hcl:"scrapeops_api_key" env:"SCRAPEOPS_API_KEY"`
	ScrapeOpsURL     string `hcl:"scrapeops_url" env:"SCRAPEOPS_URL" default:"https://proxy.scrapeops.io/v1/"`
	ScrapeOpsCountry string `hcl:"scrapeops_country" env:"SCRAPEOPS_COUNTRY" default:"us"`
	SolverURL        string `hcl:"solver_url" env:"SOLVER_URL"`

	// Outbound webhook
	WebhookURL      string        `hcl:"webhook_url" env:"WEBHOOK_URL" required:"true"`
	WebhookUsername string        `hcl:"webhook_username" env:"WEBHOOK_USERNAME" default:"Truth Social Bot"`
	PostType        string        `hcl:"post_type" env:"POST_TYPE" default:"truth"`
	RateCalls       int           `hcl:"rate_calls" env:"RATE_CALLS" default:"30"`
	RatePeriod      time.Duration `hcl:"rate_period" env:"RATE_PERIOD" default:"60s"`

	// Database
	DatabaseURL string `hcl:"database_url" env:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `hcl:"db_max_conns" env:"DB_MAX_CONNS" default:"4"`
	DBMinConns  int32  `hcl:"db_min_conns" env:"DB_MIN_CONNS" default:"1"`

	// Ops HTTP surface
	HTTPPort string `hcl:"http_port" env:"HTTP_PORT" default:"8080"`
}

// Load reads the configuration and validates cross-field requirements that
// struct tags cannot express.
func Load() (Config, error) {
	var cfg Config

	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TRUTHY",
		SkipFlags: true,
		Files:     []string{"./config.hcl", "./config.local.hcl"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})

	if err := loader.Load(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	// The fetcher treats max_retries as the total attempt count; zero
	// attempts would mean never talking to the upstream at all.
	if cfg.MaxRetries < 1 {
		return Config{}, fmt.Errorf("max_retries must be at least 1, got %d", cfg.MaxRetries)
	}

	switch cfg.ProxyMode {
	case "scrapeops":
		if cfg.ScrapeOpsAPIKey == "" {
			return Config{}, fmt.Errorf("SCRAPEOPS_API_KEY is required when proxy_mode=scrapeops")
		}
	case "solver":
		if cfg.SolverURL == "" {
			return Config{}, fmt.Errorf("SOLVER_URL is required when proxy_mode=solver")
		}
	case "direct":
	default:
		return Config{}, fmt.Errorf("unknown proxy_mode %q", cfg.ProxyMode)
	}

	return cfg, nil
}
