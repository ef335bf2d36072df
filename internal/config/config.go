package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/altpaynet/regreport/internal/util"

	"gopkg.in/yaml.v3"
)

// defaultEUCountries is the EU-27 membership list used for the
// BIN-country reporting filter when the config does not override it.
var defaultEUCountries = []string{
	"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI",
	"FR", "GR", "HR", "HU", "IE", "IT", "LT", "LU", "LV", "MT",
	"NL", "PL", "PT", "RO", "SE", "SI", "SK",
}

// Config is the full service configuration loaded from YAML.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	CESOP    CESOPConfig    `yaml:"cesop"`
	Decta    DectaConfig    `yaml:"decta"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig holds connection settings.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`           // GORM DSN, postgres or sqlite.
	QueryTimeout time.Duration `yaml:"query-timeout"` // Per-query timeout.
}

// ServerConfig holds the admin API settings.
type ServerConfig struct {
	Listen    string `yaml:"listen"`     // Bind address, e.g. ":8080".
	JWTSecret string `yaml:"jwt-secret"` // HMAC secret for operator tokens.
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`        // logrus level name.
	File       string `yaml:"file"`         // Log file path; empty logs to stderr only.
	MaxSizeMB  int    `yaml:"max-size-mb"`  // Rotation size threshold.
	MaxBackups int    `yaml:"max-backups"`  // Rotated files to keep.
	MaxAgeDays int    `yaml:"max-age-days"` // Rotated file age limit.
}

// PSPDescriptor identifies the reporting payment service provider.
type PSPDescriptor struct {
	BIC     string `yaml:"bic"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
	TaxID   string `yaml:"tax-id"`
}

// CESOPConfig holds the quarterly reporting settings.
type CESOPConfig struct {
	EUCountries      []string      `yaml:"eu-countries"`      // Reportable issuing countries; defaults to EU-27.
	DefaultThreshold int           `yaml:"default-threshold"` // Qualifying transaction count per quarter.
	PSP              PSPDescriptor `yaml:"psp"`               // Reporting PSP identity.
	OutputDir        string        `yaml:"output-dir"`        // Directory report artifacts are written to.
	PlaceholderIBAN  bool          `yaml:"placeholder-iban"`  // Synthesize a placeholder IBAN when no payout account exists.
	Deadline         time.Duration `yaml:"deadline"`          // Overall report-generation deadline.
}

// DectaConfig holds reconciliation settings.
type DectaConfig struct {
	SourceDir       string        `yaml:"source-dir"`        // Directory settlement files are fetched from.
	SourceSuffix    string        `yaml:"source-suffix"`     // File name filter, e.g. ".csv".
	ExportChunkSize int           `yaml:"export-chunk-size"` // Rows per chunk for large exports.
	RetentionDays   int           `yaml:"retention-days"`    // Matched-record retention; 0 disables cleanup.
	MaxAttempts     int           `yaml:"max-attempts"`      // Match attempt cap per record.
	WorkerInterval  time.Duration `yaml:"worker-interval"`   // Pending-record scan interval.
	WorkerBatchSize int           `yaml:"worker-batch-size"` // Records claimed per worker pass.
}

// NotifyConfig holds run-summary notification settings.
type NotifyConfig struct {
	ThrottleWindow time.Duration `yaml:"throttle-window"` // Minimum gap between notifications per key.
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	cfg := &Config{}
	if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.QueryTimeout <= 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8080"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
	if len(c.CESOP.EUCountries) == 0 {
		c.CESOP.EUCountries = append([]string(nil), defaultEUCountries...)
	}
	for i, country := range c.CESOP.EUCountries {
		c.CESOP.EUCountries[i] = strings.ToUpper(strings.TrimSpace(country))
	}
	if c.CESOP.DefaultThreshold <= 0 {
		c.CESOP.DefaultThreshold = 25
	}
	if strings.TrimSpace(c.CESOP.OutputDir) == "" {
		c.CESOP.OutputDir = "reports"
	}
	if c.CESOP.Deadline <= 0 {
		c.CESOP.Deadline = 30 * time.Minute
	}
	if strings.TrimSpace(c.Decta.SourceDir) == "" {
		c.Decta.SourceDir = "decta-files"
	}
	if strings.TrimSpace(c.Decta.SourceSuffix) == "" {
		c.Decta.SourceSuffix = ".csv"
	}
	if c.Decta.ExportChunkSize <= 0 {
		c.Decta.ExportChunkSize = 1000
	}
	if c.Decta.MaxAttempts <= 0 {
		c.Decta.MaxAttempts = 5
	}
	if c.Decta.WorkerInterval <= 0 {
		c.Decta.WorkerInterval = time.Minute
	}
	if c.Decta.WorkerBatchSize <= 0 {
		c.Decta.WorkerBatchSize = 200
	}
	if c.Notify.ThrottleWindow <= 0 {
		c.Notify.ThrottleWindow = 15 * time.Minute
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.CESOP.PSP.BIC) == "" {
		return fmt.Errorf("config: cesop.psp.bic is required")
	}
	if strings.TrimSpace(c.CESOP.PSP.Country) == "" {
		return fmt.Errorf("config: cesop.psp.country is required")
	}
	return nil
}

// ResolveConfigPath expands a config path. When empty it falls back to
// config.yaml under the writable path, or the working directory.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		if writable := util.WritablePath(); writable != "" {
			return filepath.Join(writable, "config.yaml")
		}
		return "config.yaml"
	}
	return filepath.Clean(trimmed)
}
