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

// DefaultPath dipakai kalau CONFIG_PATH kosong
const DefaultPath = "config.yaml"

type Config struct {
	Server struct {
		Port        int               `yaml:"port"`
		APIKeys     map[string]string `yaml:"apiKeys"` // tenant -> key
		CORSOrigins []string          `yaml:"corsOrigins"`
		RateLimit   struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rateLimit"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | none
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Minio struct {
		Endpoint     string `yaml:"endpoint"`
		AccessKey    string `yaml:"accessKey"`
		SecretKey    string `yaml:"secretKey"`
		BucketName   string `yaml:"bucketName"`
		Region       string `yaml:"region"`
		UseSSL       bool   `yaml:"useSSL"`
		ContainerURL string `yaml:"containerUrl"` // URL the analysis service sees for the bucket
	} `yaml:"minio"`

	ContentUnderstanding struct {
		Endpoint          string        `yaml:"endpoint"`
		APIVersion        string        `yaml:"apiVersion"`
		SubscriptionKey   string        `yaml:"subscriptionKey"`
		TenantID          string        `yaml:"tenantId"`
		ClientID          string        `yaml:"clientId"`
		ClientSecret      string        `yaml:"clientSecret"`
		UserAgent         string        `yaml:"userAgent"`
		PollPolicy        string        `yaml:"pollPolicy"` // fixed | exponential
		PollInterval      time.Duration `yaml:"pollInterval"`
		MaxPollInterval   time.Duration `yaml:"maxPollInterval"`
		Timeout           time.Duration `yaml:"timeout"`
		LongTimeout       time.Duration `yaml:"longTimeout"`
		RequestsPerSecond float64       `yaml:"requestsPerSecond"`
		CleanupOnFailure  bool          `yaml:"cleanupOnFailure"`
		ReferenceAnalyzer string        `yaml:"referenceAnalyzer"`
	} `yaml:"contentUnderstanding"`

	Staging struct {
		Concurrency int           `yaml:"concurrency"`
		SASExpiry   time.Duration `yaml:"sasExpiry"`
	} `yaml:"staging"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Telemetry struct {
		ServiceName   string `yaml:"serviceName"`
		TraceExporter string `yaml:"traceExporter"` // stdout | none
	} `yaml:"telemetry"`
}

// Path returns CONFIG_PATH or the default file name.
func Path() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	return DefaultPath
}

// Load baca file config.yaml, isi default, lalu override dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults, env overrides and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = 5
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	cu := &c.ContentUnderstanding
	if cu.PollPolicy == "" {
		cu.PollPolicy = "fixed"
	}
	if cu.PollInterval == 0 {
		cu.PollInterval = 2 * time.Second
	}
	if cu.MaxPollInterval == 0 {
		cu.MaxPollInterval = 30 * time.Second
	}
	if cu.Timeout == 0 {
		cu.Timeout = 5 * time.Minute
	}
	if cu.LongTimeout == 0 {
		cu.LongTimeout = 20 * time.Minute
	}
	if c.Staging.Concurrency == 0 {
		c.Staging.Concurrency = 4
	}
	if c.Staging.SASExpiry == 0 {
		c.Staging.SASExpiry = 2 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cu-orchestrator"
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "none"
	}
}

// applyEnv: secrets biasanya lewat env, bukan file
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("CU_ENDPOINT", &c.ContentUnderstanding.Endpoint)
	str("CU_API_VERSION", &c.ContentUnderstanding.APIVersion)
	str("CU_SUBSCRIPTION_KEY", &c.ContentUnderstanding.SubscriptionKey)
	str("CU_TENANT_ID", &c.ContentUnderstanding.TenantID)
	str("CU_CLIENT_ID", &c.ContentUnderstanding.ClientID)
	str("CU_CLIENT_SECRET", &c.ContentUnderstanding.ClientSecret)
	str("CU_POLL_POLICY", &c.ContentUnderstanding.PollPolicy)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PASSWORD", &c.Database.Password)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_CONTAINER_URL", &c.Minio.ContainerURL)
	str("LOG_LEVEL", &c.Log.Level)

	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}
	if err := dur("CU_POLL_INTERVAL", &c.ContentUnderstanding.PollInterval); err != nil {
		return err
	}
	if err := dur("CU_TIMEOUT", &c.ContentUnderstanding.Timeout); err != nil {
		return err
	}

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks the settings a process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	cu := c.ContentUnderstanding
	if cu.Endpoint == "" {
		errs = append(errs, errors.New("contentUnderstanding.endpoint is required"))
	} else if u, err := url.Parse(cu.Endpoint); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, fmt.Errorf("contentUnderstanding.endpoint %q is not an http(s) URL", cu.Endpoint))
	}
	if cu.SubscriptionKey == "" && !c.HasClientCredentials() {
		errs = append(errs, errors.New("contentUnderstanding needs subscriptionKey or tenantId/clientId/clientSecret"))
	}
	if cu.PollInterval < 0 || cu.Timeout < 0 || cu.LongTimeout < 0 {
		errs = append(errs, errors.New("contentUnderstanding durations must not be negative"))
	}
	switch cu.PollPolicy {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("contentUnderstanding.pollPolicy %q must be fixed or exponential", cu.PollPolicy))
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be mysql, postgres or none", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) HasClientCredentials() bool {
	cu := c.ContentUnderstanding
	return cu.TenantID != "" && cu.ClientID != "" && cu.ClientSecret != ""
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

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
