// Package config loads the exporter settings from an optional YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sink types.
const (
	SinkElasticsearch = "elasticsearch"
	SinkPostgres      = "postgres"
	SinkS3            = "s3"
	SinkStdout        = "stdout"
)

// Config is the complete exporter configuration.
type Config struct {
	// LogLevel falls back to the current level when logrus can't parse it.
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format" validate:"omitempty,oneof=text json"`
	ListenAddress string `yaml:"listen_address" validate:"required"`
	MetricsPath   string `yaml:"metrics_path" validate:"required,startswith=/"`

	Billing Billing `yaml:"billing"`
	Poll    Poll    `yaml:"poll"`
	Indices Indices `yaml:"indices"`
	Sink    Sink    `yaml:"sink"`
}

// Billing configures access to the Elastic Cloud billing API.
type Billing struct {
	APIKey string `yaml:"api_key" validate:"required"`
	// OrgID is looked up from the account endpoint when empty.
	OrgID             string        `yaml:"org_id"`
	URL               string        `yaml:"url" validate:"required,url"`
	LookbackFromDays  int           `yaml:"lookback_from_days" validate:"gtefield=LookbackToDays"`
	LookbackToDays    int           `yaml:"lookback_to_days" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Poll holds the loop tick and the interval of every billing pull.
type Poll struct {
	Tick         time.Duration `yaml:"tick" validate:"gt=0"`
	Organization time.Duration `yaml:"organization" validate:"gt=0"`
	Deployments  time.Duration `yaml:"deployments" validate:"gt=0"`
	Itemized     time.Duration `yaml:"itemized" validate:"gt=0"`
	Charts       time.Duration `yaml:"charts" validate:"gt=0"`
}

// Indices names the destination of each kind of document.
type Indices struct {
	Organization string `yaml:"organization" validate:"required"`
	Deployments  string `yaml:"deployments" validate:"required"`
	Itemized     string `yaml:"itemized" validate:"required"`
	Charts       string `yaml:"charts" validate:"required"`
}

// Sink selects and configures where document batches are written.
type Sink struct {
	Type          string        `yaml:"type" validate:"oneof=elasticsearch postgres s3 stdout"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch"`
	Postgres      Postgres      `yaml:"postgres"`
	S3            S3            `yaml:"s3"`
}

type Elasticsearch struct {
	CloudID   string   `yaml:"cloud_id"`
	APIKey    string   `yaml:"api_key"`
	Addresses []string `yaml:"addresses" validate:"dive,url"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

type Postgres struct {
	DatabaseURL string `yaml:"database_url"`
	Table       string `yaml:"table"`
}

type S3 struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		ListenAddress: ":8080",
		MetricsPath:   "/metrics",
		Billing: Billing{
			URL:               "https://api.elastic-cloud.com",
			LookbackFromDays:  2,
			LookbackToDays:    1,
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           30 * time.Second,
		},
		Poll: Poll{
			Tick:         time.Second,
			Organization: 60 * time.Second,
			Deployments:  60 * time.Second,
			Itemized:     60 * time.Second,
			Charts:       60 * time.Second,
		},
		Indices: Indices{
			Organization: "ess.billing",
			Deployments:  "ess.billing.deployment",
			Itemized:     "ess.billing.deployment.itemized",
			Charts:       "ess.billing.deployment.charts",
		},
		Sink: Sink{
			Type:     SinkElasticsearch,
			Postgres: Postgres{Table: "billing_documents"},
			S3:       S3{Prefix: "ess-billing"},
		},
	}
}

// Load reads the YAML file at path when one is given, applies the
// environment and then overrides on top and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables. The lower case
// names are the ones earlier deployments of the ingest script used.
func (c *Config) applyEnv() {
	setString(&c.Billing.APIKey, "BILLING_API_KEY", "billing_api_key")
	setString(&c.Billing.OrgID, "BILLING_ORG_ID")
	setString(&c.Billing.URL, "BILLING_API_URL")
	setString(&c.Sink.Type, "BILLING_SINK")
	setString(&c.Sink.Elasticsearch.CloudID, "BILLING_ES_ID", "billing_es_id")
	setString(&c.Sink.Elasticsearch.APIKey, "BILLING_ES_API", "billing_es_api")
	setString(&c.Sink.Postgres.DatabaseURL, "BILLING_DATABASE_URL")
	setString(&c.Sink.S3.Bucket, "BILLING_S3_BUCKET")
	setString(&c.Sink.S3.Prefix, "BILLING_S3_PREFIX")
	setString(&c.LogLevel, "BILLING_LOG_LEVEL")

	if v := os.Getenv("BILLING_ES_ADDRESSES"); v != "" {
		c.Sink.Elasticsearch.Addresses = splitAndTrim(v)
	}
}

func setString(dst *string, names ...string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
			return
		}
	}
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the struct tags and the sink specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	switch c.Sink.Type {
	case SinkElasticsearch:
		if c.Sink.Elasticsearch.CloudID == "" && len(c.Sink.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch sink requires sink.elasticsearch.cloud_id or sink.elasticsearch.addresses")
		}
	case SinkPostgres:
		if c.Sink.Postgres.DatabaseURL == "" {
			return fmt.Errorf("postgres sink requires sink.postgres.database_url")
		}
		if !tableName.MatchString(c.Sink.Postgres.Table) {
			return fmt.Errorf("postgres sink table %q is not a valid identifier", c.Sink.Postgres.Table)
		}
	case SinkS3:
		if c.Sink.S3.Bucket == "" {
			return fmt.Errorf("s3 sink requires sink.s3.bucket")
		}
	}
	return nil
}

func splitAndTrim(str string) []string {
	parts := strings.Split(str, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
