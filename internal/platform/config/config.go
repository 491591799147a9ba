package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	liststr "selfsignup/pkg/platform/strings"
)

// Store backends for pending registrations.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// AdminToken guards operator endpoints; empty disables them.
	AdminToken string
}

// Log selects level and handler format for the process logger.
type Log struct {
	Level  string
	Format string
}

// Signup configures the workflow engine and the purge worker.
type Signup struct {
	Store            string
	CodeTTL          time.Duration
	OperationTimeout time.Duration
	DefaultChannel   string
	DefaultDomain    string
	Domains          []string
	PurgeInterval    time.Duration
	PurgeRetention   time.Duration
	BcryptCost       int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// SMTP is optional; without a host, email goes through the event topic.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string
	Timeout  time.Duration
}

// Kafka is optional; without brokers no event notifier is wired.
type Kafka struct {
	Brokers           []string
	NotificationTopic string
	Partitions        int32
	ReplicationFactor int16
}

// RateLimit sets per-IP limits on the sign-up routes. A zero count leaves the
// route unlimited.
type RateLimit struct {
	Enabled  bool
	Window   time.Duration
	Register int
	Confirm  int
	Resend   int
}

type Config struct {
	Server   Server
	Log      Log
	Signup   Signup
	Redis    RedisConfig
	Postgres PostgresConfig
	SMTP     SMTP
	Kafka    Kafka
	Limits   RateLimit
}

// Load reads the given .env files (missing ones are skipped) and then the
// environment. Variables already set in the environment win.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Server: Server{
			Addr:            p.str("SIGNUP_ADDR", ":8080"),
			RequestTimeout:  p.dur("SIGNUP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: p.dur("SIGNUP_SHUTDOWN_TIMEOUT", 10*time.Second),
			AdminToken:      os.Getenv("SIGNUP_ADMIN_TOKEN"),
		},
		Log: Log{
			Level:  p.str("SIGNUP_LOG_LEVEL", "info"),
			Format: p.str("SIGNUP_LOG_FORMAT", "json"),
		},
		Signup: Signup{
			Store:            strings.ToLower(p.str("SIGNUP_STORE", StoreMemory)),
			CodeTTL:          p.dur("SIGNUP_CODE_TTL", 24*time.Hour),
			OperationTimeout: p.dur("SIGNUP_OPERATION_TIMEOUT", 5*time.Second),
			DefaultChannel:   strings.ToUpper(p.str("SIGNUP_DEFAULT_CHANNEL", "NONE")),
			DefaultDomain:    p.str("SIGNUP_DEFAULT_DOMAIN", "PRIMARY"),
			Domains:          p.csv("SIGNUP_DOMAINS", nil),
			PurgeInterval:    p.dur("SIGNUP_PURGE_INTERVAL", 10*time.Minute),
			PurgeRetention:   p.dur("SIGNUP_PURGE_RETENTION", 24*time.Hour),
			BcryptCost:       p.int("SIGNUP_BCRYPT_COST", 0),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: p.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: p.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLife:  p.dur("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     p.int("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			TLSMode:  strings.ToLower(p.str("SMTP_TLS_MODE", "auto")),
			Timeout:  p.dur("SMTP_TIMEOUT", 10*time.Second),
		},
		Kafka: Kafka{
			Brokers:           p.csv("KAFKA_BROKERS", nil),
			NotificationTopic: p.str("KAFKA_NOTIFICATION_TOPIC", "signup.notifications"),
			Partitions:        int32(p.int("KAFKA_TOPIC_PARTITIONS", 1)),
			ReplicationFactor: int16(p.int("KAFKA_TOPIC_REPLICATION_FACTOR", 1)),
		},
		Limits: RateLimit{
			Enabled:  p.bool("SIGNUP_RATELIMIT_ENABLED", true),
			Window:   p.dur("SIGNUP_RATELIMIT_WINDOW", time.Minute),
			Register: p.int("SIGNUP_RATELIMIT_REGISTER", 10),
			Confirm:  p.int("SIGNUP_RATELIMIT_CONFIRM", 20),
			Resend:   p.int("SIGNUP_RATELIMIT_RESEND", 5),
		},
	}
	if len(cfg.Signup.Domains) == 0 {
		cfg.Signup.Domains = []string{cfg.Signup.DefaultDomain}
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Signup.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("SIGNUP_STORE=redis requires REDIS_URL")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return errors.New("SIGNUP_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown SIGNUP_STORE %q", c.Signup.Store)
	}
	switch c.Signup.DefaultChannel {
	case "EMAIL", "SMS", "NONE":
	default:
		return fmt.Errorf("unknown SIGNUP_DEFAULT_CHANNEL %q", c.Signup.DefaultChannel)
	}
	switch c.SMTP.TLSMode {
	case "auto", "starttls", "ssl", "none":
	default:
		return fmt.Errorf("unknown SMTP_TLS_MODE %q", c.SMTP.TLSMode)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("SMTP_HOST requires SMTP_FROM")
	}
	if c.Limits.Enabled && c.Limits.Window <= 0 {
		return errors.New("SIGNUP_RATELIMIT_WINDOW must be positive")
	}
	if c.Signup.CodeTTL <= 0 {
		return errors.New("SIGNUP_CODE_TTL must be positive")
	}
	return nil
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return i
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) csv(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return liststr.SplitList(v)
}
