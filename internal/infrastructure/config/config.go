package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Metakocka REST endpoints selected by ERP.Env when ERP.BaseURL is empty.
const (
	MetakockaProductionURL  = "https://main.metakocka.si/rest/eshop/v1/json/"
	MetakockaDevelopmentURL = "https://devmainsi.metakocka.si/rest/eshop/v1/json/"
)

// Source kinds
const (
	SourceFile = "file"
	SourceS3   = "s3"
	SourceCMS  = "cms"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Source    SourceConfig
	Mapping   MappingConfig
	ERP       ERPConfig
	AI        AIConfig
	Pipeline  PipelineConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// HTTPConfig holds the read API server settings
type HTTPConfig struct {
	Enabled      bool
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings for the run lock
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string // e.g. "localhost:4317"
	ServiceName       string
	Insecure          bool
	SamplingRatio     float64
	ExportInterval    time.Duration
	DBTraceEnabled    bool
}

// SourceConfig describes where the CMS product export is read from
type SourceConfig struct {
	Kind         string // file, s3, cms
	Path         string // local CSV path for kind=file
	Encoding     string // utf-8 (default) or windows-1250
	SnapshotPath string // optional products.json written after each build

	S3Bucket          string
	S3Key             string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	CMSBaseURL   string
	CMSExportURL string
	CMSUser      string
	CMSPass      string
	CMSGroup     string
	CMSUserID    string
	DataDir      string
}

// MappingConfig points at an optional YAML overlay for the PNV mapping table
type MappingConfig struct {
	OverlayFile string
}

// ERPConfig holds the Metakocka credentials and client behavior
type ERPConfig struct {
	Env               string // production selects the live endpoint
	BaseURL           string
	SecretKey         string
	CompanyID         string
	WarehouseID       string
	ActivePricelists  []string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// AIConfig holds the Gemini settings
type AIConfig struct {
	APIKey     string
	Model      string
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// PipelineConfig controls scheduling and failure policies of a sync run
type PipelineConfig struct {
	Schedule          string // "m h * * *" or a Go duration such as "6h"
	RunOnStart        bool
	OrphanPolicy      string // drop, promote, error
	EnrichmentFailure string // abort, degrade
	LockTTL           time.Duration
	AnalyticsQueue    int
	RunTimeout        time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PNV_ prefix (e.g., PNV_ERP_SECRET_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PNV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Enabled:      !v.IsSet("http.enabled") || v.GetBool("http.enabled"),
			Port:         v.GetString("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Source: SourceConfig{
			Kind:              v.GetString("source.kind"),
			Path:              v.GetString("source.path"),
			Encoding:          v.GetString("source.encoding"),
			SnapshotPath:      v.GetString("source.snapshot_path"),
			S3Bucket:          v.GetString("source.s3_bucket"),
			S3Key:             v.GetString("source.s3_key"),
			S3Region:          v.GetString("source.s3_region"),
			S3Endpoint:        v.GetString("source.s3_endpoint"),
			S3AccessKeyID:     v.GetString("source.s3_access_key_id"),
			S3SecretAccessKey: v.GetString("source.s3_secret_access_key"),
			S3UsePathStyle:    v.GetBool("source.s3_use_path_style"),
			CMSBaseURL:        v.GetString("source.cms_base_url"),
			CMSExportURL:      v.GetString("source.cms_export_url"),
			CMSUser:           v.GetString("source.cms_user"),
			CMSPass:           v.GetString("source.cms_pass"),
			CMSGroup:          v.GetString("source.cms_group"),
			CMSUserID:         v.GetString("source.cms_user_id"),
			DataDir:           v.GetString("source.data_dir"),
		},
		Mapping: MappingConfig{
			OverlayFile: v.GetString("mapping.overlay_file"),
		},
		ERP: ERPConfig{
			Env:               v.GetString("erp.env"),
			BaseURL:           v.GetString("erp.base_url"),
			SecretKey:         v.GetString("erp.secret_key"),
			CompanyID:         v.GetString("erp.company_id"),
			WarehouseID:       v.GetString("erp.warehouse_id"),
			ActivePricelists:  stringList(v, "erp.active_pricelists"),
			Timeout:           v.GetDuration("erp.timeout"),
			MaxRetries:        v.GetInt("erp.max_retries"),
			RequestsPerSecond: v.GetFloat64("erp.requests_per_second"),
		},
		AI: AIConfig{
			APIKey:     v.GetString("ai.api_key"),
			Model:      v.GetString("ai.model"),
			BatchSize:  v.GetInt("ai.batch_size"),
			MaxRetries: v.GetInt("ai.max_retries"),
			Timeout:    v.GetDuration("ai.timeout"),
		},
		Pipeline: PipelineConfig{
			Schedule:          v.GetString("pipeline.schedule"),
			RunOnStart:        v.GetBool("pipeline.run_on_start"),
			OrphanPolicy:      v.GetString("pipeline.orphan_policy"),
			EnrichmentFailure: v.GetString("pipeline.enrichment_failure"),
			LockTTL:           v.GetDuration("pipeline.lock_ttl"),
			AnalyticsQueue:    v.GetInt("pipeline.analytics_queue"),
			RunTimeout:        v.GetDuration("pipeline.run_timeout"),
		},
	}
}

// stringList reads a TOML array or a comma separated env value.
// Pricelist titles contain spaces, so viper's whitespace splitting is not usable.
func stringList(v *viper.Viper, key string) []string {
	var items []string
	switch raw := v.Get(key).(type) {
	case []any:
		for _, item := range raw {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = raw
	case string:
		items = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pnv-catalog-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "pnv"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/pnv.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceFile
	}
	if cfg.Source.DataDir == "" {
		cfg.Source.DataDir = "data"
	}
	if cfg.Source.Path == "" {
		cfg.Source.Path = cfg.Source.DataDir + "/pnv/products.csv"
	}
	if cfg.Source.Encoding == "" {
		cfg.Source.Encoding = "utf-8"
	}
	if cfg.ERP.BaseURL == "" {
		if cfg.ERP.Env == "production" || (cfg.ERP.Env == "" && cfg.App.Env == "production") {
			cfg.ERP.BaseURL = MetakockaProductionURL
		} else {
			cfg.ERP.BaseURL = MetakockaDevelopmentURL
		}
	}
	if cfg.ERP.WarehouseID == "" {
		cfg.ERP.WarehouseID = "626700000004"
	}
	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = 30 * time.Second
	}
	if cfg.ERP.MaxRetries == 0 {
		cfg.ERP.MaxRetries = 3
	}
	if cfg.ERP.RequestsPerSecond == 0 {
		cfg.ERP.RequestsPerSecond = 10
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.5-flash"
	}
	if cfg.AI.BatchSize == 0 {
		cfg.AI.BatchSize = 30
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 2
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 2 * time.Minute
	}
	if cfg.Pipeline.Schedule == "" {
		cfg.Pipeline.Schedule = "0 3 * * *"
	}
	if cfg.Pipeline.OrphanPolicy == "" {
		cfg.Pipeline.OrphanPolicy = "drop"
	}
	if cfg.Pipeline.EnrichmentFailure == "" {
		cfg.Pipeline.EnrichmentFailure = "abort"
	}
	if cfg.Pipeline.LockTTL == 0 {
		cfg.Pipeline.LockTTL = 2 * time.Hour
	}
	if cfg.Pipeline.AnalyticsQueue == 0 {
		cfg.Pipeline.AnalyticsQueue = 256
	}
	if cfg.Pipeline.RunTimeout == 0 {
		cfg.Pipeline.RunTimeout = 90 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	switch c.Pipeline.OrphanPolicy {
	case "drop", "promote", "error":
	default:
		return fmt.Errorf("pipeline.orphan_policy must be drop, promote or error, got %q", c.Pipeline.OrphanPolicy)
	}
	switch c.Pipeline.EnrichmentFailure {
	case "abort", "degrade":
	default:
		return fmt.Errorf("pipeline.enrichment_failure must be abort or degrade, got %q", c.Pipeline.EnrichmentFailure)
	}
	switch strings.ToLower(c.Source.Encoding) {
	case "utf-8", "utf8", "windows-1250", "cp1250":
	default:
		return fmt.Errorf("source.encoding %q is not supported", c.Source.Encoding)
	}
	if c.AI.BatchSize <= 0 {
		return fmt.Errorf("ai.batch_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if err := c.Source.validate(); err != nil {
		return err
	}

	if c.App.Env == "production" {
		if c.ERP.SecretKey == "" || c.ERP.CompanyID == "" {
			return fmt.Errorf("erp.secret_key and erp.company_id are required in production")
		}
		if c.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
	}
	return nil
}

func (s SourceConfig) validate() error {
	switch s.Kind {
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("source.path is required for source.kind=file")
		}
	case SourceS3:
		if s.S3Bucket == "" || s.S3Key == "" {
			return fmt.Errorf("source.s3_bucket and source.s3_key are required for source.kind=s3")
		}
	case SourceCMS:
		if s.CMSBaseURL == "" || s.CMSExportURL == "" {
			return fmt.Errorf("source.cms_base_url and source.cms_export_url are required for source.kind=cms")
		}
		if s.CMSUser == "" || s.CMSPass == "" || s.CMSGroup == "" || s.CMSUserID == "" {
			return fmt.Errorf("source.cms_user, cms_pass, cms_group and cms_user_id are required for source.kind=cms")
		}
	default:
		return fmt.Errorf("source.kind must be file, s3 or cms, got %q", s.Kind)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
