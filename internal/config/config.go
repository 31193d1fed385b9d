package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Logs       LogsConfig       `mapstructure:"logs"`
	Encrypt    EncryptConfig    `mapstructure:"encrypt"`
	SharePoint SharePointConfig `mapstructure:"sharepoint"`
	Google     GoogleConfig     `mapstructure:"google"`
	MQ         MQConfig         `mapstructure:"mq"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // mysql | postgres
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// ConnString returns the explicit dsn when set, otherwise builds one for the driver.
func (d *DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.Charset)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret              string `mapstructure:"secret"`
	AccessExpireMinutes int    `mapstructure:"access_expire_minutes"`
	RefreshExpireDays   int    `mapstructure:"refresh_expire_days"`
}

type LogsConfig struct {
	Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
	Format string `mapstructure:"format"` // text|json
	File   string `mapstructure:"file"`
}

type EncryptConfig struct {
	AESKey string `mapstructure:"aes_key"`
}

type SharePointConfig struct {
	TenantID     string        `mapstructure:"tenant_id"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	SiteID       string        `mapstructure:"site_id"`
	DriveID      string        `mapstructure:"drive_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	CalendarID   string        `mapstructure:"calendar_id"`
	TimeZone     string        `mapstructure:"time_zone"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type MQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

const defaultJWTSecret = "your-secret-key-change-in-production"

var Global *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://frontend:3000"})
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "blink_customers")
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.access_expire_minutes", 30)
	v.SetDefault("jwt.refresh_expire_days", 7)

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")

	v.SetDefault("sharepoint.timeout", 60*time.Second)

	v.SetDefault("google.redirect_uri", "http://localhost:8000/api/v1/integrations/google/callback")
	v.SetDefault("google.calendar_id", "primary")
	v.SetDefault("google.time_zone", "America/Sao_Paulo")
	v.SetDefault("google.timeout", 10*time.Second)

	v.SetDefault("mq.exchange", "portal.events")

	v.SetDefault("tracing.endpoint", "otel-collector:4317")
	v.SetDefault("tracing.service_name", "portal-backend")
}

// Load reads the yaml file at path (when it exists), then applies PORTAL_* env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("portal")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	Global = &cfg
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" || (c.JWT.Secret == defaultJWTSecret && c.Server.Mode == "release") {
		return errors.New("jwt.secret must be set in release mode")
	}
	switch len(c.Encrypt.AESKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("encrypt.aes_key must be 16, 24 or 32 bytes, got %d", len(c.Encrypt.AESKey))
	}
	if c.Google.Enabled && c.Encrypt.AESKey == "" {
		return errors.New("encrypt.aes_key is required when google.enabled is true")
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}
