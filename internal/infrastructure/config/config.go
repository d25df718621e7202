package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Cookie    CookieConfig
	Log       LogConfig
	Event     EventConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Reconcile ReconcileConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	ConnMaxIdleTime int // minutes
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret                 string
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	Issuer                 string
	RefreshSecret          string
	MaxRefreshCount        int
	ExpirationHours        int // Deprecated: use AccessTokenExpiration instead
}

// CookieConfig holds refresh-token cookie settings.
type CookieConfig struct {
	Domain   string // empty means current domain
	Path     string
	Secure   bool   // must be true in production
	SameSite string // "strict", "lax", or "none"
}

// EventConfig holds outbox processing configuration.
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	MaxHeaderBytes        int
	MaxBodySize           int64
	RateLimitEnabled      bool
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	AuthRateLimitEnabled  bool          // stricter limiting for login and refresh
	AuthRateLimitRequests int           // max auth attempts per window
	AuthRateLimitWindow   time.Duration // auth rate limit window
	CORSAllowOrigins      []string
	CORSAllowMethods      []string
	CORSAllowHeaders      []string
	TrustedProxies        []string
}

// SchedulerConfig holds background job scheduler configuration.
type SchedulerConfig struct {
	Enabled           bool
	DailyCronSchedule string // daily maintenance jobs (drift sampling, invite sweep)
	DuesCronSchedule  string // monthly dues generation
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// ReconcileConfig holds reconciliation and cache-repair configuration.
type ReconcileConfig struct {
	RebuildThrottleWindow time.Duration // minimum spacing between rebuilds of the same unit
	SettleResultRetention time.Duration // how long idempotent settlement results are kept
	DriftSamplingEnabled  bool          // whether the scheduled drift sampler runs
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTLP gRPC endpoint, e.g. "localhost:4317"
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // non-TLS collector connection, development only
	DBTraceEnabled    bool // otelgorm query tracing
	DBLogFullSQL      bool // record full SQL in spans; never enable in production
	DBSlowQueryThresh time.Duration
}

// Load reads configuration from config.toml and the environment.
// Precedence, highest first: STRATA_-prefixed environment variables
// (e.g. STRATA_DATABASE_PASSWORD), config.toml, built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env vars take over.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := buildConfig(v)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildConfig(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                 v.GetString("jwt.secret"),
			AccessTokenExpiration:  v.GetDuration("jwt.access_token_expiration"),
			RefreshTokenExpiration: v.GetDuration("jwt.refresh_token_expiration"),
			Issuer:                 v.GetString("jwt.issuer"),
			RefreshSecret:          v.GetString("jwt.refresh_secret"),
			MaxRefreshCount:        v.GetInt("jwt.max_refresh_count"),
			ExpirationHours:        v.GetInt("jwt.expiration_hours"),
		},
		Cookie: CookieConfig{
			Domain:   v.GetString("cookie.domain"),
			Path:     v.GetString("cookie.path"),
			Secure:   v.GetBool("cookie.secure"),
			SameSite: v.GetString("cookie.same_site"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:           v.GetDuration("http.read_timeout"),
			WriteTimeout:          v.GetDuration("http.write_timeout"),
			IdleTimeout:           v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:        v.GetInt("http.max_header_bytes"),
			MaxBodySize:           v.GetInt64("http.max_body_size"),
			RateLimitEnabled:      v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests:     v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:       v.GetDuration("http.rate_limit_window"),
			AuthRateLimitEnabled:  v.GetBool("http.auth_rate_limit_enabled"),
			AuthRateLimitRequests: v.GetInt("http.auth_rate_limit_requests"),
			AuthRateLimitWindow:   v.GetDuration("http.auth_rate_limit_window"),
			CORSAllowOrigins:      v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:      v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:      v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:        v.GetStringSlice("http.trusted_proxies"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			DailyCronSchedule: v.GetString("scheduler.daily_cron_schedule"),
			DuesCronSchedule:  v.GetString("scheduler.dues_cron_schedule"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
		},
		Reconcile: ReconcileConfig{
			RebuildThrottleWindow: v.GetDuration("reconcile.rebuild_throttle_window"),
			SettleResultRetention: v.GetDuration("reconcile.settle_result_retention"),
			DriftSamplingEnabled:  v.GetBool("reconcile.drift_sampling_enabled"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}
}

func setStr(target *string, def string) {
	if *target == "" {
		*target = def
	}
}

func setInt(target *int, def int) {
	if *target == 0 {
		*target = def
	}
}

func setDur(target *time.Duration, def time.Duration) {
	if *target == 0 {
		*target = def
	}
}

// applyDefaults fills in defaults for every zero-valued field. Booleans
// keep their zero value: anything risky (HSTS, tracing, full SQL logging)
// stays off until explicitly enabled.
func (c *Config) applyDefaults() {
	setStr(&c.App.Name, "strata-backend")
	setStr(&c.App.Env, "development")
	setStr(&c.App.Port, "8080")

	setStr(&c.Database.Host, "localhost")
	setInt(&c.Database.Port, 5432)
	setStr(&c.Database.User, "postgres")
	setStr(&c.Database.DBName, "strata")
	setStr(&c.Database.SSLMode, "disable")
	setInt(&c.Database.MaxOpenConns, 25)
	setInt(&c.Database.MaxIdleConns, 5)
	setInt(&c.Database.ConnMaxLifetime, 60)
	setInt(&c.Database.ConnMaxIdleTime, 30)

	setStr(&c.Redis.Host, "localhost")
	setInt(&c.Redis.Port, 6379)

	setDur(&c.JWT.AccessTokenExpiration, 15*time.Minute)
	setDur(&c.JWT.RefreshTokenExpiration, 168*time.Hour)
	setStr(&c.JWT.Issuer, "strata-backend")
	setInt(&c.JWT.MaxRefreshCount, 10)

	setStr(&c.Cookie.Path, "/")
	setStr(&c.Cookie.SameSite, "lax")

	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "console")
	setStr(&c.Log.Output, "stdout")

	setInt(&c.Event.BatchSize, 100)
	setDur(&c.Event.PollInterval, 5*time.Second)
	setInt(&c.Event.MaxRetries, 5)
	setDur(&c.Event.CleanupRetention, 168*time.Hour)

	setDur(&c.HTTP.ReadTimeout, 15*time.Second)
	setDur(&c.HTTP.WriteTimeout, 15*time.Second)
	setDur(&c.HTTP.IdleTimeout, 60*time.Second)
	setInt(&c.HTTP.MaxHeaderBytes, 1<<20)
	if c.HTTP.MaxBodySize == 0 {
		c.HTTP.MaxBodySize = 10 << 20
	}
	setInt(&c.HTTP.RateLimitRequests, 100)
	setDur(&c.HTTP.RateLimitWindow, time.Minute)

	// Auth endpoints get a much tighter budget to slow down credential
	// stuffing.
	setInt(&c.HTTP.AuthRateLimitRequests, 5)
	setDur(&c.HTTP.AuthRateLimitWindow, time.Minute)

	// CORS origins deliberately have no fallback: an empty list means no
	// cross-origin requests until a deployment configures real origins.
	if len(c.HTTP.CORSAllowMethods) == 0 {
		c.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(c.HTTP.CORSAllowHeaders) == 0 {
		c.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"}
	}

	setStr(&c.Scheduler.DailyCronSchedule, "0 2 * * *")
	setStr(&c.Scheduler.DuesCronSchedule, "0 3 1 * *") // first of the month, 03:00
	setInt(&c.Scheduler.MaxConcurrentJobs, 3)
	setDur(&c.Scheduler.JobTimeout, 30*time.Minute)
	setInt(&c.Scheduler.RetryAttempts, 3)
	setDur(&c.Scheduler.RetryDelay, 5*time.Minute)

	setDur(&c.Reconcile.RebuildThrottleWindow, 5*time.Minute)
	setDur(&c.Reconcile.SettleResultRetention, 720*time.Hour) // 30 days

	setStr(&c.Telemetry.CollectorEndpoint, "localhost:4317")
	if c.Telemetry.SamplingRatio == 0 {
		c.Telemetry.SamplingRatio = 1.0
	}
	setStr(&c.Telemetry.ServiceName, "strata-backend")
	setDur(&c.Telemetry.DBSlowQueryThresh, 200*time.Millisecond)
}

func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if err := c.validateProduction(); err != nil {
			return err
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// validateProduction rejects settings that are tolerable in development
// but unsafe with real member and payment data.
func (c *Config) validateProduction() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 characters in production")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("database.password is required in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database.sslmode cannot be 'disable' in production")
	}
	if !c.Cookie.Secure {
		return fmt.Errorf("cookie.secure must be true in production (HTTPS required for secure cookies)")
	}
	if c.Cookie.SameSite == "none" && !c.Cookie.Secure {
		return fmt.Errorf("cookie.same_site=none requires cookie.secure=true")
	}
	for _, origin := range c.HTTP.CORSAllowOrigins {
		if origin == "*" {
			return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
		}
	}
	if c.Telemetry.DBLogFullSQL {
		return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
	}
	return nil
}

// DSN returns the Postgres connection string with escaped credentials.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
