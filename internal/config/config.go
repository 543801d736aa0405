package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		LogSQL   bool
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	HTTP struct {
		Host           string
		Port           string
		AllowedOrigins []string
		RatePerMinute  int
	}

	GRPC struct {
		Host string
		Port string
	}

	Auth struct {
		SigningSecret string
		CookieName    string
		Issuer        string
		TokenTTL      time.Duration
		SecureCookie  bool
	}

	S3 struct {
		Bucket          string
		Region          string
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		URLTTL          time.Duration
	}

	Photos struct {
		MaxPerUser int
		MaxWidth   int
		MaxBytes   int64
	}
}

// NewViper returns a viper instance with defaults and env bindings applied.
// Keys map to env vars by upper-casing and replacing dots, e.g. db.host -> DB_HOST.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "production")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.component", "tweetheart")
	v.SetDefault("log.source", false)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.user", "root")
	v.SetDefault("db.password", "root")
	v.SetDefault("db.name", "tweetheart")
	v.SetDefault("db.log_sql", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "tweetheart:events")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", "http://localhost:3000")
	v.SetDefault("http.rate_per_minute", 300)

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", "50051")

	v.SetDefault("auth.signing_secret", "")
	v.SetDefault("auth.cookie_name", "tweetheart_session")
	v.SetDefault("auth.issuer", "tweetheart")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.secure_cookie", false)

	v.SetDefault("s3.bucket", "tweetheart-photos")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.url_ttl", "3600s")

	v.SetDefault("photos.max_per_user", 6)
	v.SetDefault("photos.max_width", 1080)
	v.SetDefault("photos.max_bytes", 10<<20)
}

// New loads configuration from defaults and the environment.
func New() *Config {
	return Load(NewViper())
}

// Load builds a Config from an already-populated viper instance.
func Load(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.ENV = v.GetString("app.env")

	// Logger
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.Component = v.GetString("log.component")
	cfg.Log.Source = v.GetBool("log.source")

	// Database
	cfg.DB.DSN = strings.TrimSpace(v.GetString("mysql.dsn"))
	cfg.DB.Host = v.GetString("db.host")
	cfg.DB.Port = v.GetString("db.port")
	cfg.DB.User = v.GetString("db.user")
	cfg.DB.Password = v.GetString("db.password")
	cfg.DB.Name = v.GetString("db.name")
	cfg.DB.LogSQL = v.GetBool("db.log_sql")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Redis.Channel = v.GetString("redis.channel")

	// HTTP
	cfg.HTTP.Host = v.GetString("http.host")
	cfg.HTTP.Port = v.GetString("http.port")
	cfg.HTTP.AllowedOrigins = splitList(v.GetString("http.allowed_origins"))
	cfg.HTTP.RatePerMinute = v.GetInt("http.rate_per_minute")

	// gRPC
	cfg.GRPC.Host = v.GetString("grpc.host")
	cfg.GRPC.Port = v.GetString("grpc.port")

	// Auth
	cfg.Auth.SigningSecret = v.GetString("auth.signing_secret")
	cfg.Auth.CookieName = v.GetString("auth.cookie_name")
	cfg.Auth.Issuer = v.GetString("auth.issuer")
	cfg.Auth.TokenTTL = v.GetDuration("auth.token_ttl")
	cfg.Auth.SecureCookie = v.GetBool("auth.secure_cookie")

	// Object storage
	cfg.S3.Bucket = v.GetString("s3.bucket")
	cfg.S3.Region = v.GetString("s3.region")
	cfg.S3.Endpoint = v.GetString("s3.endpoint")
	cfg.S3.AccessKeyID = v.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = v.GetString("s3.secret_access_key")
	cfg.S3.URLTTL = v.GetDuration("s3.url_ttl")

	// Photos
	cfg.Photos.MaxPerUser = v.GetInt("photos.max_per_user")
	cfg.Photos.MaxWidth = v.GetInt("photos.max_width")
	cfg.Photos.MaxBytes = v.GetInt64("photos.max_bytes")

	return cfg
}

// Validate reports settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.S3.Bucket) == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	return nil
}

// IsDevelopment reports whether demo seeding and verbose defaults apply.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.ENV, "development")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
