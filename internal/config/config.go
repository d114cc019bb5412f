package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Models   ModelsConfig   `mapstructure:"models"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`
}

type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"`
	URL              string        `mapstructure:"url"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	Path             string        `mapstructure:"path"` // directory for SQLite database files
	PoolSize         int           `mapstructure:"pool_size"`
	RecoveryPoolSize int           `mapstructure:"recovery_pool_size"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout"`
}

type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	Persistent bool          `mapstructure:"persistent"`
	CookieName string        `mapstructure:"cookie_name"`
	Table      string        `mapstructure:"table"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Secure     bool          `mapstructure:"secure"`
}

type ModelsConfig struct {
	Dir             string `mapstructure:"dir"`
	Watch           bool   `mapstructure:"watch"`
	UnmountOnRemove bool   `mapstructure:"unmount_on_remove"`
}

type PublishConfig struct {
	SchemaFile string        `mapstructure:"schema_file"`
	Command    string        `mapstructure:"command"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	LoginPasswordHash string        `mapstructure:"login_password_hash"`
	ProtectAdmin      bool          `mapstructure:"protect_admin"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ResolvedDriver returns the driver named by the URL scheme when a URL is
// set, otherwise the configured driver.
func (d DatabaseConfig) ResolvedDriver() string {
	if d.URL == "" {
		return d.Driver
	}
	scheme, _, _ := strings.Cut(d.URL, ":")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3", "file":
		return "sqlite"
	}
	return d.Driver
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() (string, error) {
	switch d.ResolvedDriver() {
	case "sqlite":
		if d.URL != "" {
			return sqlitePath(d.URL), nil
		}
		return filepath.Join(d.Path, d.Name+".db"), nil
	case "mysql":
		if d.URL != "" {
			return mysqlDSNFromURL(d.URL)
		}
		mc := mysqlConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Addr = net.JoinHostPort(d.Host, fmt.Sprint(d.Port))
		mc.DBName = d.Name
		return mc.FormatDSN(), nil
	case "postgres":
		if d.URL != "" {
			return d.URL, nil
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     net.JoinHostPort(d.Host, fmt.Sprint(d.Port)),
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", d.ResolvedDriver())
}

func sqlitePath(raw string) string {
	for _, p := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:", "file://", "file:"} {
		if strings.HasPrefix(raw, p) {
			return strings.TrimPrefix(raw, p)
		}
	}
	return raw
}

func mysqlConfig() *mysql.Config {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc
}

func mysqlDSNFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	mc := mysqlConfig()
	if u.User != nil {
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "3306")
	}
	mc.Addr = host
	mc.DBName = strings.TrimPrefix(u.Path, "/")
	if q := u.Query(); len(q) > 0 {
		mc.Params = map[string]string{}
		for k := range q {
			mc.Params[k] = q.Get(k)
		}
	}
	return mc.FormatDSN(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "lowcode")
	v.SetDefault("database.path", "./data")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.recovery_pool_size", 2)
	v.SetDefault("database.acquire_timeout", "5s")
	v.SetDefault("session.secret", "changeme-session-secret")
	v.SetDefault("session.persistent", true)
	v.SetDefault("session.cookie_name", "sid")
	v.SetDefault("session.table", "sessions")
	v.SetDefault("session.max_age", "24h")
	v.SetDefault("session.secure", false)
	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.watch", true)
	v.SetDefault("models.unmount_on_remove", false)
	v.SetDefault("publish.schema_file", "")
	v.SetDefault("publish.command", "")
	v.SetDefault("publish.timeout", "2m")
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.login_password_hash", "")
	v.SetDefault("auth.protect_admin", true)
	v.SetDefault("log.level", "info")
}

// Load reads app.yaml from the working directory (or two levels up) when
// present, then applies environment overrides such as DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")
	return load(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.RecoveryPoolSize <= 0 {
		cfg.Database.RecoveryPoolSize = 2
	}
	return &cfg, nil
}
