package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// DUMPOOR_UPLOAD_URL overrides upload.url.
	EnvPrefix = "DUMPOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDumpDir is the default directory scanned for dump files.
	DefaultDumpDir = "./crashes"

	// DefaultConvention is the default collector field naming convention.
	DefaultConvention = ConventionGeneric

	// DefaultFTPClientID is the client identifier used by the FTP transport.
	DefaultFTPClientID = "dumpoor-ftp/1.0"

	// DefaultS3Prefix is the default key prefix for dumps stored in S3.
	DefaultS3Prefix = "dumps"

	// DefaultMaxReportSize is the largest submission the collector accepts.
	DefaultMaxReportSize = "64MB"
)

// Collector field naming conventions for the HTTP multipart transport.
const (
	ConventionGeneric = "generic"
	ConventionSocorro = "socorro"
	ConventionCaliper = "caliper"
)

// DefaultDumpExtensions lists the file extensions treated as dumps.
var DefaultDumpExtensions = []string{".dmp"}

// Config is the root configuration for dumpoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Product   ProductConfig   `yaml:"product" mapstructure:"product"`
	Dumps     DumpsConfig     `yaml:"dumps" mapstructure:"dumps"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ProductConfig identifies the application whose dumps are uploaded.
type ProductConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
}

// DumpsConfig describes where dumps are found locally.
type DumpsConfig struct {
	Dir        string        `yaml:"dir" mapstructure:"dir"`
	Extensions []string      `yaml:"extensions,omitempty" mapstructure:"extensions"`
	Debounce   time.Duration `yaml:"debounce,omitempty" mapstructure:"debounce"`
}

// UploadConfig configures the destination and the transports.
type UploadConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
	// RateLimit caps upload bandwidth, in human readable form ("512KB").
	// Empty means unlimited.
	RateLimit string           `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	HTTP      HTTPUploadConfig `yaml:"http" mapstructure:"http"`
	FTP       FTPUploadConfig  `yaml:"ftp" mapstructure:"ftp"`
	S3        S3UploadConfig   `yaml:"s3" mapstructure:"s3"`
}

// Field is a single ordered key/value metadata field.
type Field struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Value string `yaml:"value" mapstructure:"value"`
}

// HTTPUploadConfig configures the HTTP multipart transport.
type HTTPUploadConfig struct {
	Convention      string        `yaml:"convention" mapstructure:"convention"`
	Timeout         time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	ExtraFields     []Field       `yaml:"extra_fields,omitempty" mapstructure:"extra_fields"`
	IncludeHostInfo bool          `yaml:"include_host_info" mapstructure:"include_host_info"`
}

// FTPUploadConfig configures the FTP transport.
type FTPUploadConfig struct {
	Username string        `yaml:"username,omitempty" mapstructure:"username"`
	Password string        `yaml:"password,omitempty" mapstructure:"password"`
	ClientID string        `yaml:"client_id,omitempty" mapstructure:"client_id"`
	Timeout  time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// S3UploadConfig configures the S3 transport. The bucket and key prefix
// come from the s3:// upload URL.
type S3UploadConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// LedgerConfig configures the upload history database.
type LedgerConfig struct {
	Enabled  bool                 `yaml:"enabled" mapstructure:"enabled"`
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// MetricsConfig configures the prometheus endpoint served by `watch`.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// CollectorConfig configures the stub crash collector served by `serve`.
type CollectorConfig struct {
	Listen      string   `yaml:"listen" mapstructure:"listen"`
	StorageDir  string   `yaml:"storage_dir" mapstructure:"storage_dir"`
	Owner       string   `yaml:"owner,omitempty" mapstructure:"owner"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`

	// MaxReportSize caps a single submission ("64MB").
	MaxReportSize string          `yaml:"max_report_size,omitempty" mapstructure:"max_report_size"`
	RateLimit     RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting of dump submissions.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// Load reads the given configuration files, merging later files over
// earlier ones, then applies DUMPOOR_* environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(f)
		} else {
			err = v.MergeConfig(f)
		}

		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// Env vars only reach AllSettings for keys viper knows about.
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// configKeys returns the dotted viper keys of every leaf field in t.
func configKeys(t reflect.Type, prefix string) []string {
	keys := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(field.Type, key)...)

			continue
		}

		keys = append(keys, key)
	}

	return keys
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Dumps.Dir == "" {
		c.Dumps.Dir = DefaultDumpDir
	}

	if len(c.Dumps.Extensions) == 0 {
		c.Dumps.Extensions = append([]string(nil), DefaultDumpExtensions...)
	}

	if c.Dumps.Debounce == 0 {
		c.Dumps.Debounce = 2 * time.Second
	}

	if c.Upload.HTTP.Convention == "" {
		c.Upload.HTTP.Convention = DefaultConvention
	}

	if c.Upload.FTP.ClientID == "" {
		c.Upload.FTP.ClientID = DefaultFTPClientID
	}

	if c.Upload.S3.Region == "" {
		c.Upload.S3.Region = "us-east-1"
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "sqlite"
	}

	if c.Ledger.Driver == "sqlite" && c.Ledger.SQLite.Path == "" {
		c.Ledger.SQLite.Path = "dumpoor.db"
	}

	if c.Ledger.Postgres.Port == 0 {
		c.Ledger.Postgres.Port = 5432
	}

	if c.Ledger.Postgres.SSLMode == "" {
		c.Ledger.Postgres.SSLMode = "disable"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}

	if c.Collector.Listen == "" {
		c.Collector.Listen = ":8000"
	}

	if c.Collector.StorageDir == "" {
		c.Collector.StorageDir = "./received"
	}

	if c.Collector.MaxReportSize == "" {
		c.Collector.MaxReportSize = DefaultMaxReportSize
	}

	if c.Collector.RateLimit.Enabled && c.Collector.RateLimit.RequestsPerMinute == 0 {
		c.Collector.RateLimit.RequestsPerMinute = 60
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Product.Name == "" {
		return fmt.Errorf("product.name is required")
	}

	if c.Product.Version == "" {
		return fmt.Errorf("product.version is required")
	}

	if c.Upload.URL != "" {
		if _, err := ParseUploadURL(c.Upload.URL); err != nil {
			return fmt.Errorf("upload.url: %w", err)
		}
	}

	if _, err := c.Upload.BytesPerSecond(); err != nil {
		return fmt.Errorf("upload.rate_limit: %w", err)
	}

	if !isValidConvention(c.Upload.HTTP.Convention) {
		return fmt.Errorf("upload.http.convention: unknown convention %q", c.Upload.HTTP.Convention)
	}

	for i, f := range c.Upload.HTTP.ExtraFields {
		if f.Name == "" {
			return fmt.Errorf("upload.http.extra_fields[%d]: name is required", i)
		}
	}

	if (c.Upload.FTP.Username == "") != (c.Upload.FTP.Password == "") {
		return fmt.Errorf("upload.ftp: username and password must be set together")
	}

	if c.Ledger.Enabled {
		switch c.Ledger.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("ledger.driver: unsupported driver %q", c.Ledger.Driver)
		}
	}

	return nil
}

// MaxReportBytes parses MaxReportSize.
func (c *CollectorConfig) MaxReportBytes() (int64, error) {
	n, err := units.FromHumanSize(c.MaxReportSize)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", c.MaxReportSize, err)
	}

	if n <= 0 {
		return 0, fmt.Errorf("invalid size %q: must be positive", c.MaxReportSize)
	}

	return n, nil
}

// BytesPerSecond parses RateLimit. Zero means unlimited.
func (u *UploadConfig) BytesPerSecond() (int64, error) {
	if u.RateLimit == "" {
		return 0, nil
	}

	n, err := units.FromHumanSize(u.RateLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", u.RateLimit, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must not be negative", u.RateLimit)
	}

	return n, nil
}

// supportedSchemes maps URL schemes to the transport that serves them.
var supportedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"ftp":   {},
	"s3":    {},
}

// ParseUploadURL parses an upload destination and checks its scheme.
func ParseUploadURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", raw, err)
	}

	if _, ok := supportedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}

	return u, nil
}

func isValidConvention(convention string) bool {
	switch convention {
	case ConventionGeneric, ConventionSocorro, ConventionCaliper:
		return true
	default:
		return false
	}
}
