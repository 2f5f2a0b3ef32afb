package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration. Values are resolved in order:
// built-in defaults, optional TOML file, environment variables.
type Config struct {
	Server      Server      `toml:"server"`
	Database    Database    `toml:"database"`
	Redis       RedisConfig `toml:"redis"`
	Kafka       Kafka       `toml:"kafka"`
	Geocoder    Geocoder    `toml:"geocoder"`
	Address     Address     `toml:"address"`
	Names       Names       `toml:"names"`
	Cluster     Cluster     `toml:"cluster"`
	Revision    Revision    `toml:"revision"`
	Maintenance Maintenance `toml:"maintenance"`
	RateLimit   RateLimit   `toml:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `toml:"addr"`
	Environment     string        `toml:"environment"`
	JWTSigningKey   string        `toml:"jwt_signing_key"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Database selects the SQL driver and pool sizing.
type Database struct {
	Driver          string        `toml:"driver"` // "pgx" or "sqlite"
	URL             string        `toml:"url"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	TxTimeout       time.Duration `toml:"tx_timeout"`
}

// RedisConfig is optional; an empty URL disables the Redis cache tier.
type RedisConfig struct {
	URL          string        `toml:"url"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// Kafka is optional; no brokers disables outbox publishing.
type Kafka struct {
	Brokers      []string      `toml:"brokers"`
	AuditTopic   string        `toml:"audit_topic"`
	AlertTopic   string        `toml:"alert_topic"`
	PollInterval time.Duration `toml:"poll_interval"`
	BatchSize    int           `toml:"batch_size"`
}

// Geocoder configures the provider fallback chain.
type Geocoder struct {
	PrimaryURL       string        `toml:"primary_url"`
	PrimaryKey       string        `toml:"primary_key"`
	SecondaryURL     string        `toml:"secondary_url"`
	SecondaryKey     string        `toml:"secondary_key"`
	Timeout          time.Duration `toml:"timeout"`
	FailureThreshold int           `toml:"failure_threshold"`
}

// Address tunes the address score cache.
type Address struct {
	CacheTTL time.Duration `toml:"cache_ttl"`
}

// Names tunes the name-frequency lookup.
type Names struct {
	LookupCacheSize int           `toml:"lookup_cache_size"`
	LookupCacheTTL  time.Duration `toml:"lookup_cache_ttl"`
	FuzzyThreshold  float64       `toml:"fuzzy_threshold"`
}

// Cluster holds the risk model and sweep schedule. The numeric cut points are
// operator-tuned rather than derived, so every one of them is configurable.
type Cluster struct {
	LowThreshold    int           `toml:"low_threshold"`
	MediumThreshold int           `toml:"medium_threshold"`
	HighThreshold   int           `toml:"high_threshold"`
	VelocityWindow  time.Duration `toml:"velocity_window"`
	VelocityLimit   int           `toml:"velocity_limit"`
	SweepInterval   time.Duration `toml:"sweep_interval"`
	AlertBufferSize int           `toml:"alert_buffer_size"`
	SweepEnabled    bool          `toml:"sweep_enabled"`
}

// Revision bounds dry-run scans.
type Revision struct {
	ScanCap int `toml:"scan_cap"`
}

// Maintenance schedules pruning of expired cache rows and published outbox
// entries.
type Maintenance struct {
	Interval        time.Duration `toml:"interval"`
	OutboxRetention time.Duration `toml:"outbox_retention"`
}

// RateLimit caps API requests per actor. Zero requests disables the limit.
type RateLimit struct {
	Requests int           `toml:"requests"`
	Window   time.Duration `toml:"window"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			Environment:     "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver:          "pgx",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			TxTimeout:       5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			AuditTopic:   "rollguard.audit",
			AlertTopic:   "rollguard.cluster-alerts",
			PollInterval: time.Second,
			BatchSize:    100,
		},
		Geocoder: Geocoder{
			Timeout:          5 * time.Second,
			FailureThreshold: 5,
		},
		Address: Address{
			CacheTTL: 30 * 24 * time.Hour,
		},
		Names: Names{
			LookupCacheSize: 10000,
			LookupCacheTTL:  time.Hour,
			FuzzyThreshold:  0.85,
		},
		Cluster: Cluster{
			LowThreshold:    6,
			MediumThreshold: 12,
			HighThreshold:   20,
			VelocityWindow:  7 * 24 * time.Hour,
			VelocityLimit:   10,
			SweepInterval:   time.Hour,
			AlertBufferSize: 256,
			SweepEnabled:    true,
		},
		Revision: Revision{
			ScanCap: 5000,
		},
		Maintenance: Maintenance{
			Interval:        15 * time.Minute,
			OutboxRetention: 7 * 24 * time.Hour,
		},
		RateLimit: RateLimit{
			Requests: 600,
			Window:   time.Minute,
		},
	}
}

// Load reads defaults, then the TOML file at path (if any), then environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config: %w", err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads configuration using ROLLGUARD_CONFIG as the optional file path.
func FromEnv() (Config, error) {
	return Load(os.Getenv("ROLLGUARD_CONFIG"))
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	cl := c.Cluster
	if cl.LowThreshold < 2 || cl.MediumThreshold <= cl.LowThreshold || cl.HighThreshold <= cl.MediumThreshold {
		return fmt.Errorf("cluster thresholds must be increasing: low=%d medium=%d high=%d",
			cl.LowThreshold, cl.MediumThreshold, cl.HighThreshold)
	}
	if c.Revision.ScanCap <= 0 {
		return fmt.Errorf("revision scan cap must be positive")
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	envString("ROLLGUARD_ADDR", &cfg.Server.Addr)
	envString("ROLLGUARD_ENV", &cfg.Server.Environment)
	envString("JWT_SIGNING_KEY", &cfg.Server.JWTSigningKey)
	envString("DATABASE_DRIVER", &cfg.Database.Driver)
	envString("DATABASE_URL", &cfg.Database.URL)
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	envDuration("DATABASE_TX_TIMEOUT", &cfg.Database.TxTimeout)
	envString("REDIS_URL", &cfg.Redis.URL)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	envString("GEOCODER_PRIMARY_URL", &cfg.Geocoder.PrimaryURL)
	envString("GEOCODER_PRIMARY_KEY", &cfg.Geocoder.PrimaryKey)
	envString("GEOCODER_SECONDARY_URL", &cfg.Geocoder.SecondaryURL)
	envString("GEOCODER_SECONDARY_KEY", &cfg.Geocoder.SecondaryKey)
	envDuration("GEOCODER_TIMEOUT", &cfg.Geocoder.Timeout)
	envDuration("ADDRESS_CACHE_TTL", &cfg.Address.CacheTTL)
	envInt("CLUSTER_LOW_THRESHOLD", &cfg.Cluster.LowThreshold)
	envInt("CLUSTER_MEDIUM_THRESHOLD", &cfg.Cluster.MediumThreshold)
	envInt("CLUSTER_HIGH_THRESHOLD", &cfg.Cluster.HighThreshold)
	envDuration("CLUSTER_SWEEP_INTERVAL", &cfg.Cluster.SweepInterval)
	if v := os.Getenv("CLUSTER_SWEEP_ENABLED"); v != "" {
		cfg.Cluster.SweepEnabled = v == "true"
	}
	envInt("REVISION_SCAN_CAP", &cfg.Revision.ScanCap)
	envDuration("MAINTENANCE_INTERVAL", &cfg.Maintenance.Interval)
	envInt("RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
