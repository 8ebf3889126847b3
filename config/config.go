package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects where the durable state store keeps its JSON documents.
type Backend string

const (
	BackendRemote Backend = "remote" // the configured object storage bucket
	BackendLocal  Backend = "local"  // a directory on the local filesystem
)

// Blob store drivers.
const (
	DriverMinio = "minio"
	DriverS3    = "s3"
	DriverLocal = "local"
)

// Ledger backends.
const (
	LedgerState = "state"
	LedgerMySQL = "mysql"
)

// Config stores the application configuration.
type Config struct {
	Env string // "production" disables the local-filesystem fallback

	// Object storage
	BlobDriver    string
	BlobEndpoint  string
	BlobRegion    string
	BlobBucket    string
	BlobAccessKey string
	BlobSecretKey string
	BlobUseSSL    bool

	// CDNOrigin is the canonical public origin, e.g. https://cdn.example.com.
	// Every public URL and every metadata URL repair uses it as ground truth.
	CDNOrigin string
	// StaleDomains lists previously issued, incorrect URL domains.
	StaleDomains []string

	StateBackend Backend // resolved once by ResolveBackend
	LocalDataDir string  // root directory for the local backend

	// Catalog
	AudioPrefixes []string // prefixes scanned by the index rebuild
	DefaultPrice  float64
	DefaultLicense string

	// Extraction tool
	YTDLPPath      string
	ExtractTimeout time.Duration
	WorkDir        string // scratch space for downloads

	// Scheduler
	SchedulerInterval time.Duration
	TickSchedule      string // cron spec used by `serve`
	TickTimeout       time.Duration
	CollectionMax     int

	// Ledger
	LedgerBackend string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// HTTP
	ListenAddr        string
	AdminPasswordHash string // bcrypt hash
	JWTSecret         string
	JWTTTL            time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
// The state backend is resolved here, once, and never re-derived per call.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		BlobDriver:     getEnv("BLOB_DRIVER", DriverMinio),
		BlobEndpoint:   getEnv("BLOB_ENDPOINT", ""),
		BlobRegion:     getEnv("BLOB_REGION", "auto"),
		BlobBucket:     getEnv("BLOB_BUCKET", "beats"),
		BlobAccessKey:  os.Getenv("BLOB_ACCESS_KEY"),
		BlobSecretKey:  os.Getenv("BLOB_SECRET_KEY"),
		BlobUseSSL:     getEnvBool("BLOB_USE_SSL", true),
		CDNOrigin:      strings.TrimRight(getEnv("CDN_ORIGIN", ""), "/"),
		StaleDomains:   getEnvList("STALE_CDN_DOMAINS", nil),
		LocalDataDir:   getEnv("LOCAL_DATA_DIR", "data"),
		AudioPrefixes:  getEnvList("AUDIO_PREFIXES", []string{"tracks/"}),
		DefaultPrice:   getEnvFloat("DEFAULT_PRICE", 29.99),
		DefaultLicense: getEnv("DEFAULT_LICENSE", "basic"),

		YTDLPPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		ExtractTimeout: getEnvDuration("EXTRACT_TIMEOUT", 10*time.Minute),
		WorkDir:        getEnv("WORK_DIR", os.TempDir()),

		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", 24*time.Hour),
		TickSchedule:      getEnv("TICK_SCHEDULE", "@every 15m"),
		TickTimeout:       getEnvDuration("TICK_TIMEOUT", 2*time.Hour),
		CollectionMax:     getEnvInt("COLLECTION_MAX", 25),

		LedgerBackend: getEnv("LEDGER_BACKEND", LedgerState),
		DBHost:        getEnv("DB_HOST", "127.0.0.1"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        getEnv("DB_NAME", "beatvault"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),

		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTTTL:            getEnvDuration("JWT_TTL", 12*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
	cfg.StateBackend = cfg.ResolveBackend(Backend(getEnv("STATE_BACKEND", "")))
	return cfg
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasBlobCredentials reports whether a remote bucket can be constructed.
func (c *Config) HasBlobCredentials() bool {
	if c.BlobDriver == DriverLocal {
		return false
	}
	return c.BlobEndpoint != "" && c.BlobAccessKey != "" && c.BlobSecretKey != "" && c.BlobBucket != ""
}

// ResolveBackend picks the durable state backend. An explicit choice wins;
// otherwise credentials decide. Outside production a missing credential set
// falls back to the local filesystem; in production the remote backend is kept
// so that Validate surfaces the problem instead of silently writing locally.
func (c *Config) ResolveBackend(explicit Backend) Backend {
	switch explicit {
	case BackendRemote, BackendLocal:
		return explicit
	}
	if c.HasBlobCredentials() || c.IsProduction() {
		return BackendRemote
	}
	return BackendLocal
}

// Validate reports configuration errors that make blob-dependent operations impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.StateBackend == BackendRemote && !c.HasBlobCredentials() {
		errs = append(errs, errors.New("remote storage selected but BLOB_ENDPOINT/BLOB_ACCESS_KEY/BLOB_SECRET_KEY/BLOB_BUCKET are incomplete"))
	}
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.IsProduction() && c.CDNOrigin == "" {
		errs = append(errs, errors.New("CDN_ORIGIN is required in production"))
	}
	if c.CDNOrigin != "" && !strings.HasPrefix(c.CDNOrigin, "http://") && !strings.HasPrefix(c.CDNOrigin, "https://") {
		errs = append(errs, fmt.Errorf("CDN_ORIGIN must be an absolute URL, got %q", c.CDNOrigin))
	}
	switch c.LedgerBackend {
	case LedgerState, LedgerMySQL:
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}
	return errors.Join(errs...)
}
