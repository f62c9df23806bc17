// Package config loads the server's configuration from environment
// variables, a YAML file, and defaults, in that order of precedence,
// the way the teacher stack's services configure themselves with
// spf13/viper.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP and stdio transports.
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableStdio   bool          `mapstructure:"enable_stdio"`
}

// DatabaseConfig configures the relational adapter's sqlx/lib/pq pool.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig configures the Redis-backed cache.
type CacheConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`
}

// ObjectStoreConfig configures the S3/MinIO-compatible object adapter.
// Buckets themselves are not configured here: each tenant resolves to
// its own bucket, named "tenant-{tenant_id}".
type ObjectStoreConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseIAMAuth      bool   `mapstructure:"use_iam_auth"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// KeywordIndexConfig configures the OpenSearch-backed keyword adapter.
type KeywordIndexConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// VectorIndexConfig configures the per-tenant flat-file vector adapter.
type VectorIndexConfig struct {
	RootDir   string `mapstructure:"root_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

// AuthConfig configures JWT/API-key authentication.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
}

// RateLimitConfig configures the per-tenant request budget.
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DefaultPerMinute int  `mapstructure:"default_per_minute"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	VectorWeight      float64       `mapstructure:"vector_weight"`
	KeywordWeight     float64       `mapstructure:"keyword_weight"`
	PerArmTimeout     time.Duration `mapstructure:"per_arm_timeout"`
	DefaultResultLimit int          `mapstructure:"default_result_limit"`
}

// AuditConfig configures the fire-and-forget audit queue.
type AuditConfig struct {
	QueueSize   int `mapstructure:"queue_size"`
	WorkerCount int `mapstructure:"worker_count"`
}

// BackupConfig configures where rag_backup_tenant_data writes its
// timestamped backup directories.
type BackupConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// Config is the full composition-root configuration.
type Config struct {
	Environment  string              `mapstructure:"environment"`
	Server       ServerConfig        `mapstructure:"server"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Cache        CacheConfig         `mapstructure:"cache"`
	ObjectStore  ObjectStoreConfig   `mapstructure:"object_store"`
	KeywordIndex KeywordIndexConfig  `mapstructure:"keyword_index"`
	VectorIndex  VectorIndexConfig   `mapstructure:"vector_index"`
	Auth         AuthConfig          `mapstructure:"auth"`
	RateLimit    RateLimitConfig     `mapstructure:"rate_limit"`
	Search       SearchConfig        `mapstructure:"search"`
	Audit        AuditConfig         `mapstructure:"audit"`
	Backup       BackupConfig        `mapstructure:"backup"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.enable_stdio", true)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.enabled", true)

	v.SetDefault("object_store.force_path_style", false)

	v.SetDefault("vector_index.root_dir", "./data/vector-index")
	v.SetDefault("vector_index.cache_size", 64)

	v.SetDefault("auth.jwt_expiration", 24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_per_minute", 60)

	v.SetDefault("search.vector_weight", 0.6)
	v.SetDefault("search.keyword_weight", 0.4)
	v.SetDefault("search.per_arm_timeout", 500*time.Millisecond)
	v.SetDefault("search.default_result_limit", 10)

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.worker_count", 4)

	v.SetDefault("backup.root_dir", "./data/backups")
}

// Load reads configPath (if non-empty and present) as YAML, then layers
// environment variables (RAG_SERVER_LISTEN_ADDRESS style, section and
// field joined by underscore) over it, and finally fills in defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("rag")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
