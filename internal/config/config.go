package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"MedicareCoverageChecker/internal/domain"
)

const (
	configPathEnv       = "MEDICARE_CHECKER_CONFIG"
	timeoutEnv          = "MEDICARE_CHECKER_TIMEOUT_SECONDS"
	lookupTimeoutEnv    = "MEDICARE_CHECKER_LOOKUP_TIMEOUT_SECONDS"
	conversionFactorEnv = "MEDICARE_CHECKER_CONVERSION_FACTOR"
	cmsBaseURLEnv       = "MEDICARE_CHECKER_CMS_BASE_URL"
	dataAPIBaseURLEnv   = "MEDICARE_CHECKER_DATA_API_BASE_URL"
	logLevelEnv         = "MEDICARE_CHECKER_LOG_LEVEL"

	// DefaultConversionFactor is the 2024 Medicare physician fee schedule conversion factor.
	DefaultConversionFactor = 33.29
	defaultCoinsuranceRate  = 0.20
	defaultYear             = 2024
	defaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

const (
	pfsSearchPath         = "/medicare/physician-fee-schedule/search"
	metastoreItemsPath    = "/api/1/metastore/schemas/dataset/items"
	datastoreSQLPath      = "/api/1/datastore/sql"
	datasetDataPathFormat = "/data-api/v1/dataset/%s/data"
)

// Config holds every runtime setting. It is built once and passed by value.
type Config struct {
	Logging   LoggingConfig  `yaml:"logging"`
	HTTP      HTTPConfig     `yaml:"http"`
	Lookup    LookupConfig   `yaml:"lookup"`
	Payment   PaymentConfig  `yaml:"payment"`
	Endpoints EndpointConfig `yaml:"endpoints"`
}

// LoggingConfig selects slog level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig bounds every outbound call.
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	UserAgent      string `yaml:"userAgent"`
	MaxBodyBytes   int64  `yaml:"maxBodyBytes"`
}

// Timeout converts TimeoutSeconds to a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// LookupConfig drives the orchestrator.
type LookupConfig struct {
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
	Concurrent     *bool    `yaml:"concurrent"`
	Sources        []string `yaml:"sources"`
}

// Timeout is the aggregate ceiling for a single lookup.
func (l LookupConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// IsConcurrent defaults to true.
func (l LookupConfig) IsConcurrent() bool {
	return l.Concurrent == nil || *l.Concurrent
}

// PaymentConfig carries the fee schedule constants.
type PaymentConfig struct {
	ConversionFactorOverride *float64 `yaml:"conversionFactorOverride"`
	DefaultConversionFactor  float64  `yaml:"defaultConversionFactor"`
	CoinsuranceRate          float64  `yaml:"coinsuranceRate"`
	Year                     int      `yaml:"year"`
}

// EndpointConfig holds the base URLs of the CMS services.
type EndpointConfig struct {
	CMSBaseURL        string   `yaml:"cmsBaseUrl"`
	DataAPIBaseURL    string   `yaml:"dataApiBaseUrl"`
	SQLTable          string   `yaml:"sqlTable"`
	SQLCodeColumn     string   `yaml:"sqlCodeColumn"`
	DatasetTitleTerms []string `yaml:"datasetTitleTerms"`
	MaxDatasets       int      `yaml:"maxDatasets"`
}

// PFSSearchURL is the physician fee schedule search page.
func (e EndpointConfig) PFSSearchURL() string {
	return strings.TrimSuffix(e.CMSBaseURL, "/") + pfsSearchPath
}

// MetastoreItemsURL lists the dataset catalog.
func (e EndpointConfig) MetastoreItemsURL() string {
	return strings.TrimSuffix(e.DataAPIBaseURL, "/") + metastoreItemsPath
}

// DatastoreSQLURL accepts SQL-over-dataset queries.
func (e EndpointConfig) DatastoreSQLURL() string {
	return strings.TrimSuffix(e.DataAPIBaseURL, "/") + datastoreSQLPath
}

// DatasetDataURL returns the row endpoint of a resolved dataset.
func (e EndpointConfig) DatasetDataURL(datasetID string) string {
	return strings.TrimSuffix(e.DataAPIBaseURL, "/") + fmt.Sprintf(datasetDataPathFormat, datasetID)
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadPath(os.Getenv(configPathEnv))
}

// LoadPath is Load with an explicit config file; an empty path means defaults only.
func LoadPath(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg
}

// FromFile decodes a YAML file without applying defaults.
func FromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(timeoutEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HTTP.TimeoutSeconds = n
		} else {
			log.Printf("config: ignoring %s=%q", timeoutEnv, v)
		}
	}

	if v := os.Getenv(lookupTimeoutEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Lookup.TimeoutSeconds = n
		} else {
			log.Printf("config: ignoring %s=%q", lookupTimeoutEnv, v)
		}
	}

	if v := os.Getenv(conversionFactorEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Payment.ConversionFactorOverride = &f
		} else {
			log.Printf("config: ignoring %s=%q", conversionFactorEnv, v)
		}
	}

	if v := os.Getenv(cmsBaseURLEnv); v != "" {
		c.Endpoints.CMSBaseURL = v
	}

	if v := os.Getenv(dataAPIBaseURLEnv); v != "" {
		c.Endpoints.DataAPIBaseURL = v
	}
}

// normalize repairs values a file or env var may have zeroed out.
func (c *Config) normalize() {
	def := defaultConfig()
	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = def.HTTP.TimeoutSeconds
	}
	if c.Lookup.TimeoutSeconds <= 0 {
		c.Lookup.TimeoutSeconds = def.Lookup.TimeoutSeconds
	}
	if c.Lookup.TimeoutSeconds < c.HTTP.TimeoutSeconds {
		log.Printf("config: lookup timeout %ds is below the per-request timeout %ds", c.Lookup.TimeoutSeconds, c.HTTP.TimeoutSeconds)
	}
	if c.Payment.ConversionFactorOverride != nil && *c.Payment.ConversionFactorOverride <= 0 {
		c.Payment.ConversionFactorOverride = nil
	}
	if c.Payment.CoinsuranceRate <= 0 || c.Payment.CoinsuranceRate >= 1 {
		c.Payment.CoinsuranceRate = def.Payment.CoinsuranceRate
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.TimeoutSeconds > 0 {
		base.HTTP.TimeoutSeconds = override.HTTP.TimeoutSeconds
	}
	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.MaxBodyBytes > 0 {
		base.HTTP.MaxBodyBytes = override.HTTP.MaxBodyBytes
	}

	if override.Lookup.TimeoutSeconds > 0 {
		base.Lookup.TimeoutSeconds = override.Lookup.TimeoutSeconds
	}
	if override.Lookup.Concurrent != nil {
		base.Lookup.Concurrent = override.Lookup.Concurrent
	}
	if len(override.Lookup.Sources) > 0 {
		base.Lookup.Sources = override.Lookup.Sources
	}

	if override.Payment.ConversionFactorOverride != nil {
		base.Payment.ConversionFactorOverride = override.Payment.ConversionFactorOverride
	}
	if override.Payment.DefaultConversionFactor > 0 {
		base.Payment.DefaultConversionFactor = override.Payment.DefaultConversionFactor
	}
	if override.Payment.CoinsuranceRate > 0 {
		base.Payment.CoinsuranceRate = override.Payment.CoinsuranceRate
	}
	if override.Payment.Year > 0 {
		base.Payment.Year = override.Payment.Year
	}

	if override.Endpoints.CMSBaseURL != "" {
		base.Endpoints.CMSBaseURL = override.Endpoints.CMSBaseURL
	}
	if override.Endpoints.DataAPIBaseURL != "" {
		base.Endpoints.DataAPIBaseURL = override.Endpoints.DataAPIBaseURL
	}
	if override.Endpoints.SQLTable != "" {
		base.Endpoints.SQLTable = override.Endpoints.SQLTable
	}
	if override.Endpoints.SQLCodeColumn != "" {
		base.Endpoints.SQLCodeColumn = override.Endpoints.SQLCodeColumn
	}
	if len(override.Endpoints.DatasetTitleTerms) > 0 {
		base.Endpoints.DatasetTitleTerms = override.Endpoints.DatasetTitleTerms
	}
	if override.Endpoints.MaxDatasets > 0 {
		base.Endpoints.MaxDatasets = override.Endpoints.MaxDatasets
	}

	return base
}

// Default returns the built-in configuration without reading files or env.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			TimeoutSeconds: 10,
			UserAgent:      defaultUserAgent,
			MaxBodyBytes:   8 << 20,
		},
		Lookup: LookupConfig{
			TimeoutSeconds: 25,
			Sources:        []string{domain.SourceNameDatastoreSQL, domain.SourceNameMetastore, domain.SourceNamePFSSearch},
		},
		Payment: PaymentConfig{
			DefaultConversionFactor: DefaultConversionFactor,
			CoinsuranceRate:         defaultCoinsuranceRate,
			Year:                    defaultYear,
		},
		Endpoints: EndpointConfig{
			CMSBaseURL:        "https://www.cms.gov",
			DataAPIBaseURL:    "https://data.cms.gov",
			SQLTable:          "physician_fee_schedule",
			SQLCodeColumn:     "hcpcs_cd",
			DatasetTitleTerms: []string{"RVU", "PFS", "Physician Fee Schedule"},
			MaxDatasets:       3,
		},
	}
}
