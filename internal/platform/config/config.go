package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Database  Database
	Redis     RedisConfig
	Blob      Blob
	Drive     Drive
	Kafka     Kafka
	Outbox    Outbox
	Secondary Secondary
	Auth      Auth
	Invoice   Invoice
	LogLevel  string
	LockTTL   time.Duration
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	MaxBodyBytes int64
}

type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig is optional: an empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Blob configures the primary (S3-compatible) tier.
type Blob struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Drive configures the secondary tier. Empty values disable it.
type Drive struct {
	CredentialsFile string
	RootFolderID    string
}

func (d Drive) Enabled() bool {
	return d.CredentialsFile != "" && d.RootFolderID != ""
}

type Kafka struct {
	Brokers []string
	Topic   string
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

type Outbox struct {
	PollInterval time.Duration
	BatchSize    int
}

// Secondary holds retry and breaker settings for the backup tier.
type Secondary struct {
	RetryAttempts        int
	RetryInitialInterval time.Duration
	BreakerFailures      int
	BreakerSuccesses     int
}

// Auth enables bearer token verification when SigningKey is set.
type Auth struct {
	SigningKey string
	Issuer     string
	Audience   string
}

func (a Auth) Enabled() bool {
	return a.SigningKey != ""
}

type Invoice struct {
	ExpectedReceiverRFC string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Missing required values and malformed numbers are reported together.
func FromEnv() (Config, error) {
	r := reader{lookup: os.Getenv}
	return r.load()
}

type reader struct {
	lookup func(string) string
	errs   []error
}

func (r *reader) load() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:         r.str("INVOICE_API_ADDR", ":8080"),
			MaxBodyBytes: int64(r.int("MAX_BODY_BYTES", 32<<20)),
		},
		Database: Database{
			URL:             r.required("DATABASE_URL"),
			MaxOpenConns:    r.int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    r.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     r.bool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Blob: Blob{
			Endpoint:      r.required("BLOB_ENDPOINT"),
			AccessKey:     r.str("BLOB_ACCESS_KEY", ""),
			SecretKey:     r.str("BLOB_SECRET_KEY", ""),
			Bucket:        r.required("BLOB_BUCKET"),
			UseSSL:        r.bool("BLOB_USE_SSL", false),
			PublicBaseURL: r.str("BLOB_PUBLIC_BASE_URL", ""),
		},
		Drive: Drive{
			CredentialsFile: r.str("DRIVE_CREDENTIALS_FILE", ""),
			RootFolderID:    r.str("DRIVE_ROOT_FOLDER_ID", ""),
		},
		Kafka: Kafka{
			Brokers: r.list("KAFKA_BROKERS"),
			Topic:   r.str("KAFKA_TOPIC", "invoices.registered"),
		},
		Outbox: Outbox{
			PollInterval: r.duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    r.int("OUTBOX_BATCH_SIZE", 100),
		},
		Secondary: Secondary{
			RetryAttempts:        r.int("SECONDARY_RETRY_ATTEMPTS", 3),
			RetryInitialInterval: r.duration("SECONDARY_RETRY_INITIAL_INTERVAL", 200*time.Millisecond),
			BreakerFailures:      r.int("SECONDARY_BREAKER_FAILURES", 5),
			BreakerSuccesses:     r.int("SECONDARY_BREAKER_SUCCESSES", 2),
		},
		Auth: Auth{
			SigningKey: r.str("JWT_SIGNING_KEY", ""),
			Issuer:     r.str("JWT_ISSUER", ""),
			Audience:   r.str("JWT_AUDIENCE", ""),
		},
		Invoice: Invoice{
			ExpectedReceiverRFC: r.required("EXPECTED_RECEIVER_RFC"),
		},
		LogLevel: r.str("LOG_LEVEL", "info"),
		LockTTL:  r.duration("SUBMISSION_LOCK_TTL", 60*time.Second),
	}
	if cfg.Blob.PublicBaseURL == "" && cfg.Blob.Endpoint != "" {
		scheme := "http"
		if cfg.Blob.UseSSL {
			scheme = "https"
		}
		cfg.Blob.PublicBaseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Blob.Endpoint, cfg.Blob.Bucket)
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.lookup(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) required(key string) string {
	v := strings.TrimSpace(r.lookup(key))
	if v == "" {
		r.errs = append(r.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must be a non-negative integer", key))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean", key))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration", key))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
