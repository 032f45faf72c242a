// Package config loads modelviewer settings: defaults, then an optional YAML
// file, then MODELVIEWER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/token"
	"github.com/signalsfoundry/modelviewer/internal/tracker"
)

// Config is the complete application configuration.
type Config struct {
	Auth    AuthConfig    `yaml:"auth" env:"AUTH"`
	Server  ServerConfig  `yaml:"server" env:"SERVER"`
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Tracing TracingConfig `yaml:"tracing" env:"TRACING"`
	Viewer  ViewerConfig  `yaml:"viewer" env:"VIEWER"`
}

// AuthConfig holds the relay's service credentials.
type AuthConfig struct {
	TokenURL     string `yaml:"token_url" env:"TOKEN_URL"`
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	Scope        string `yaml:"scope" env:"SCOPE"`
	// AuthStyle is auto, header or params.
	AuthStyle string `yaml:"auth_style" env:"AUTH_STYLE"`
}

// ServerConfig configures the relay listeners.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	MetricsAddr       string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	GRPCHealthAddr    string        `yaml:"grpc_health_addr" env:"GRPC_HEALTH_ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	UpstreamTimeout   time.Duration `yaml:"upstream_timeout" env:"UPSTREAM_TIMEOUT"`
	Swagger           bool          `yaml:"swagger" env:"SWAGGER"`
	RateLimit         float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst         int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level     string `yaml:"level" env:"LEVEL"`
	Format    string `yaml:"format" env:"FORMAT"`
	AddSource bool   `yaml:"add_source" env:"ADD_SOURCE"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	Exporter    string  `yaml:"exporter" env:"EXPORTER"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// ViewerConfig configures the headless viewer session.
type ViewerConfig struct {
	RelayURL          string        `yaml:"relay_url" env:"RELAY_URL"`
	DerivativeBaseURL string        `yaml:"derivative_base_url" env:"DERIVATIVE_BASE_URL"`
	ManifestDir       string        `yaml:"manifest_dir" env:"MANIFEST_DIR"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"RECONCILE_INTERVAL"`
	ReconcileAttempts int           `yaml:"reconcile_attempts" env:"RECONCILE_ATTEMPTS"`
	AspectWidth       float64       `yaml:"aspect_width" env:"ASPECT_WIDTH"`
	AspectHeight      float64       `yaml:"aspect_height" env:"ASPECT_HEIGHT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			TokenURL:  token.DefaultTokenURL,
			Scope:     token.DefaultScope,
			AuthStyle: string(token.AuthStyleAuto),
		},
		Server: ServerConfig{
			Addr:              ":5000",
			MetricsAddr:       ":9090",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			UpstreamTimeout:   20 * time.Second,
			RateBurst:         10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "modelviewer",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		Viewer: ViewerConfig{
			RelayURL:          "http://localhost:5000/token",
			DerivativeBaseURL: "https://developer.api.autodesk.com",
			ReconcileInterval: tracker.DefaultReconcileInterval,
			ReconcileAttempts: tracker.DefaultReconcileAttempts,
			AspectWidth:       16,
			AspectHeight:      9,
		},
	}
}

var (
	// ErrMissingCredentials reports an empty client id or secret.
	ErrMissingCredentials = errors.New("auth.client_id and auth.client_secret are required")
	// ErrInvalid wraps every other validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Validate checks settings used by every command.
func (c *Config) Validate() error {
	var errs []error
	if _, err := token.ParseAuthStyle(c.Auth.AuthStyle); err != nil {
		errs = append(errs, fmt.Errorf("%w: auth.auth_style: %w", ErrInvalid, err))
	}
	if c.Auth.TokenURL != "" {
		if err := checkURL(c.Auth.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("%w: auth.token_url: %w", ErrInvalid, err))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q must be text or json", ErrInvalid, c.Log.Format))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("%w: tracing.exporter %q must be stdout or otlp", ErrInvalid, c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: tracing.sample_ratio must be within [0,1]", ErrInvalid))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: server.rate_limit must not be negative", ErrInvalid))
	}
	if c.Viewer.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: viewer.reconcile_interval must be positive", ErrInvalid))
	}
	if c.Viewer.ReconcileAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: viewer.reconcile_attempts must be at least 1", ErrInvalid))
	}
	if c.Viewer.AspectWidth <= 0 || c.Viewer.AspectHeight <= 0 {
		errs = append(errs, fmt.Errorf("%w: viewer aspect dimensions must be positive", ErrInvalid))
	}
	return errors.Join(errs...)
}

// ValidateRelay additionally requires the service credentials.
func (c *Config) ValidateRelay() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
		errs = append(errs, ErrMissingCredentials)
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: server.addr is required", ErrInvalid))
	}
	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Credentials maps the auth section onto token.Credentials.
func (c *Config) Credentials() token.Credentials {
	style, _ := token.ParseAuthStyle(c.Auth.AuthStyle)
	return token.Credentials{
		TokenURL:     c.Auth.TokenURL,
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
		Scope:        c.Auth.Scope,
		AuthStyle:    style,
	}
}

// TracingOptions maps the tracing section onto observability.TracingConfig.
func (c *Config) TracingOptions() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// LoggingOptions maps the log section onto logging.Config.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		AddSource: c.Log.AddSource,
	}
}

// Aspect is the viewer's width/height ratio.
func (c *Config) Aspect() float64 {
	return c.Viewer.AspectWidth / c.Viewer.AspectHeight
}
