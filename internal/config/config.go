package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
		TrustedProxies  []string      `yaml:"trustedProxies"` // CIDR atau IP
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres | mysql
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint      string `yaml:"endpoint"`
		AccessKey     string `yaml:"accessKey"`
		SecretKey     string `yaml:"secretKey"`
		BucketName    string `yaml:"bucketName"`
		Region        string `yaml:"region"`
		UseSSL        bool   `yaml:"useSSL"`
		PublicBaseURL string `yaml:"publicBaseURL"`
	} `yaml:"minio"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	AI struct {
		Model             string `yaml:"model"`
		OpenAIKey         string `yaml:"openaiKey"`
		OpenAIBaseURL     string `yaml:"openaiBaseURL"`
		OpenRouterKey     string `yaml:"openrouterKey"`
		OpenRouterBaseURL string `yaml:"openrouterBaseURL"`
	} `yaml:"ai"`

	Scanner struct {
		BrowserURL          string        `yaml:"browserURL"`
		ExecPath            string        `yaml:"execPath"`
		AxeScriptPath       string        `yaml:"axeScriptPath"`
		AxeScriptURL        string        `yaml:"axeScriptURL"`
		Timeout             time.Duration `yaml:"timeout"`
		NavigationTimeout   time.Duration `yaml:"navigationTimeout"`
		AllowPrivateTargets bool          `yaml:"allowPrivateTargets"`
	} `yaml:"scanner"`

	Auth struct {
		JWTSecret    string   `yaml:"jwtSecret"`
		JWTPublicKey string   `yaml:"jwtPublicKey"`
		Issuer       string   `yaml:"issuer"`
		ServiceKeys  []string `yaml:"serviceKeys"`
	} `yaml:"auth"`

	Billing struct {
		AuditCost int `yaml:"auditCost"`
	} `yaml:"billing"`

	Trial struct {
		Limit  int           `yaml:"limit"`
		Window time.Duration `yaml:"window"`
	} `yaml:"trial"`

	RateLimit struct {
		PerMinute int `yaml:"perMinute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Path returns CONFIG_PATH or config.yaml.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load baca file config.yaml, lalu override dari env dan isi default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, os.Getenv)
}

// Parse decodes YAML, applies environment overrides from getenv and fills defaults.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	secrets := []struct {
		key string
		dst *string
	}{
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"OPENAI_API_KEY", &c.AI.OpenAIKey},
		{"OPENROUTER_API_KEY", &c.AI.OpenRouterKey},
		{"REDIS_PASSWORD", &c.Redis.Password},
		{"MINIO_SECRET_KEY", &c.Minio.SecretKey},
		{"AUTH_JWT_SECRET", &c.Auth.JWTSecret},
		{"AUTH_JWT_PUBLIC_KEY", &c.Auth.JWTPublicKey},
		{"APP_ENV", &c.Env},
	}
	for _, s := range secrets {
		if v := getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	if v := getenv("AUTH_SERVICE_KEYS"); v != "" {
		c.Auth.ServiceKeys = strings.Split(v, ",")
	}
	if v := getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("CREDIT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CREDIT_COST: %w", err)
		}
		c.Billing.AuditCost = cost
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// audit bisa sampai 60 detik + AI summary
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
		if c.Database.Driver == "mysql" {
			c.Database.Port = 3306
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Billing.AuditCost == 0 {
		c.Billing.AuditCost = 5
	}
	if c.Trial.Limit == 0 {
		c.Trial.Limit = 3
	}
	if c.Trial.Window == 0 {
		c.Trial.Window = 24 * time.Hour
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 30
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Scanner.Timeout == 0 {
		c.Scanner.Timeout = 60 * time.Second
	}
	if c.Scanner.NavigationTimeout == 0 {
		c.Scanner.NavigationTimeout = 30 * time.Second
	}
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != "postgres" && c.Database.Driver != "mysql" {
		errs = append(errs, fmt.Errorf("database.driver must be postgres or mysql, got %q", c.Database.Driver))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKey == "" {
		errs = append(errs, errors.New("auth: one of jwtSecret or jwtPublicKey is required"))
	}
	if c.Billing.AuditCost < 0 {
		errs = append(errs, errors.New("billing.auditCost must not be negative"))
	}
	if c.Minio.Endpoint != "" && c.Minio.BucketName == "" {
		errs = append(errs, errors.New("minio.bucketName is required when minio.endpoint is set"))
	}
	if c.Server.WriteTimeout <= c.Scanner.Timeout {
		errs = append(errs, errors.New("server.writeTimeout must exceed scanner.timeout"))
	}
	return errors.Join(errs...)
}

// DSN for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "mysql" {
		return c.MySQLDSN()
	}
	return c.PostgresDSN()
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a postgres:// URL for lib/pq.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}
