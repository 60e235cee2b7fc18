package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type R2 struct {
	AccountID  string `envconfig:"R2_ACCOUNT_ID"`
	AccessKey  string `envconfig:"R2_ACCESS_KEY"`
	SecretKey  string `envconfig:"R2_SECRET_KEY"`
	BucketName string `envconfig:"R2_BUCKET_NAME"`
	PublicURL  string `envconfig:"R2_PUBLIC_URL"`
}

// PlatformApp is the OAuth client registration for one platform.
type PlatformApp struct {
	ClientID     string
	ClientSecret string
	Active       bool
}

type Dispatch struct {
	Interval         time.Duration `envconfig:"DISPATCH_INTERVAL" default:"5s"`
	Concurrency      int           `envconfig:"DISPATCH_CONCURRENCY" default:"10"`
	TaskTimeout      time.Duration `envconfig:"TASK_TIMEOUT" default:"10m"`
	RefreshLookahead time.Duration `envconfig:"REFRESH_LOOKAHEAD" default:"15m"`
	RefreshSweep     time.Duration `envconfig:"REFRESH_SWEEP" default:"10m"`
	ReleaseMedia     bool          `envconfig:"RELEASE_MEDIA" default:"false"`
}

type Media struct {
	Backend string `envconfig:"MEDIA_BACKEND" default:"local"`
	Root    string `envconfig:"MEDIA_ROOT" default:"./media"`
	AppURL  string `envconfig:"APP_URL" default:"http://localhost:3000"`
}

type Notification struct {
	APIURL        string  `envconfig:"NOTIFICATION_API_URL"`
	APIKey        string  `envconfig:"NOTIFICATION_API_KEY"`
	OperatorEmail string  `envconfig:"OPERATOR_EMAIL"`
	RatePerSecond float64 `envconfig:"NOTIFICATION_RATE" default:"1"`
	Burst         int     `envconfig:"NOTIFICATION_BURST" default:"5"`
}

type OTEL struct {
	Enabled     bool    `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure    bool    `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	ServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"postflow-dispatcher"`
	SampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

type Config struct {
	SecretKey   string `envconfig:"SECRET_KEY"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURI    string `envconfig:"REDIS_URI"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`
	OpsAddr     string `envconfig:"OPS_ADDR" default:":3000"`

	Dispatch     Dispatch     `envconfig:""`
	Media        Media        `envconfig:""`
	R2           R2           `envconfig:""`
	Notification Notification `envconfig:""`
	OTEL         OTEL         `envconfig:""`

	XClientID             string `envconfig:"X_CLIENT_ID"`
	XClientSecret         string `envconfig:"X_CLIENT_SECRET"`
	XPostingActive        bool   `envconfig:"X_POSTING_ACTIVE" default:"true"`
	LinkedInClientID      string `envconfig:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret  string `envconfig:"LINKEDIN_CLIENT_SECRET"`
	LinkedInPostingActive bool   `envconfig:"LINKEDIN_POSTING_ACTIVE" default:"true"`
	FacebookClientID      string `envconfig:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret  string `envconfig:"FACEBOOK_CLIENT_SECRET"`
	FacebookPostingActive bool   `envconfig:"FACEBOOK_POSTING_ACTIVE" default:"true"`
	InstagramClientID     string `envconfig:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `envconfig:"INSTAGRAM_CLIENT_SECRET"`
	InstagramActive       bool   `envconfig:"INSTAGRAM_POSTING_ACTIVE" default:"true"`
	TiktokClientKey       string `envconfig:"TIKTOK_CLIENT_KEY"`
	TiktokClientSecret    string `envconfig:"TIKTOK_CLIENT_SECRET"`
	TiktokPostingActive   bool   `envconfig:"TIKTOK_POSTING_ACTIVE" default:"true"`
	GoogleClientID        string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `envconfig:"GOOGLE_CLIENT_SECRET"`
	YoutubePostingActive  bool   `envconfig:"YOUTUBE_POSTING_ACTIVE" default:"true"`
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Dispatch.Interval <= 0 {
		errs = append(errs, errors.New("DISPATCH_INTERVAL must be positive"))
	}
	if c.Dispatch.Concurrency < 1 {
		errs = append(errs, errors.New("DISPATCH_CONCURRENCY must be at least 1"))
	}
	if c.Dispatch.TaskTimeout <= 0 {
		errs = append(errs, errors.New("TASK_TIMEOUT must be positive"))
	}
	if c.Dispatch.RefreshLookahead < 0 {
		errs = append(errs, errors.New("REFRESH_LOOKAHEAD must not be negative"))
	}
	if c.Dispatch.RefreshSweep <= 0 {
		errs = append(errs, errors.New("REFRESH_SWEEP must be positive"))
	}
	switch c.Media.Backend {
	case "local":
	case "r2":
		if c.R2.AccountID == "" || c.R2.BucketName == "" || c.R2.PublicURL == "" {
			errs = append(errs, errors.New("MEDIA_BACKEND=r2 requires R2_ACCOUNT_ID, R2_BUCKET_NAME and R2_PUBLIC_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("MEDIA_BACKEND must be local or r2, got %q", c.Media.Backend))
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// X, LinkedIn and the other accessors group the per-platform OAuth settings.
func (c *Config) X() PlatformApp {
	return PlatformApp{ClientID: c.XClientID, ClientSecret: c.XClientSecret, Active: c.XPostingActive}
}

func (c *Config) LinkedIn() PlatformApp {
	return PlatformApp{ClientID: c.LinkedInClientID, ClientSecret: c.LinkedInClientSecret, Active: c.LinkedInPostingActive}
}

func (c *Config) Facebook() PlatformApp {
	return PlatformApp{ClientID: c.FacebookClientID, ClientSecret: c.FacebookClientSecret, Active: c.FacebookPostingActive}
}

func (c *Config) Instagram() PlatformApp {
	return PlatformApp{ClientID: c.InstagramClientID, ClientSecret: c.InstagramClientSecret, Active: c.InstagramActive}
}

func (c *Config) Tiktok() PlatformApp {
	return PlatformApp{ClientID: c.TiktokClientKey, ClientSecret: c.TiktokClientSecret, Active: c.TiktokPostingActive}
}

func (c *Config) Youtube() PlatformApp {
	return PlatformApp{ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret, Active: c.YoutubePostingActive}
}
