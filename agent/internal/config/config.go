package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
// They match the long-standing tracker CLI flags.
const (
	DefaultShipInterval     = 60 * time.Second
	DefaultSweepInterval    = 60 * time.Second
	DefaultShutdownGrace    = 15 * time.Second
	DefaultUploadTimeout    = 10 * time.Second
	DefaultMaxRecords       = 100000
	DefaultUploadURL        = "http://127.0.0.1/"
	DefaultSpoolDir         = "./failed/"
	DefaultArchiveDir       = "./"
	DefaultCertFile         = "./certs/client.pem"
	DefaultKeyFile          = "./certs/client.key"
	DefaultGPSDAddress      = "127.0.0.1:2947"
	DefaultSimulateInterval = time.Second
	DefaultBootstrapRetry   = 5 * time.Second
	DefaultTextfileInterval = 15 * time.Second
	DefaultBreakerFailures  = 3
	DefaultBreakerTimeout   = 30 * time.Second
)

// Config is the full agent configuration tree parsed from YAML.
type Config struct {
	// ClientName identifies this tracker to the collector; it is appended
	// to the upload URL.
	ClientName string `yaml:"client_name"`

	Sensor    SensorConfig    `yaml:"sensor"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Shipper   ShipperConfig   `yaml:"shipper"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Spool     SpoolConfig     `yaml:"spool"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Uploader  UploaderConfig  `yaml:"uploader"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`
	Status    StatusConfig    `yaml:"status"`
}

// SensorConfig selects where records come from.
type SensorConfig struct {
	// Type is gpsd | simulate.
	Type string `yaml:"type"`

	// Address is the gpsd host:port.
	Address string `yaml:"address"`

	// Classes keeps only gpsd reports of these classes. Empty keeps all.
	Classes []string `yaml:"classes"`

	// Interval is the emit period of the simulated source.
	Interval time.Duration `yaml:"interval"`
}

// BufferConfig bounds the in-memory ingestion buffer.
type BufferConfig struct {
	// MaxRecords caps the buffer; the oldest record is dropped when full.
	// Zero means unbounded.
	MaxRecords int `yaml:"max_records"`
}

// ShipperConfig controls the batch flush cycle.
type ShipperConfig struct {
	Interval time.Duration `yaml:"interval"`

	// ShutdownGrace bounds the final flush performed on shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// ArchiveConfig enables write-through archiving of delivered payloads.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// SpoolConfig selects the failed-upload holding area.
type SpoolConfig struct {
	// Backend is dir | bolt.
	Backend string `yaml:"backend"`

	// Dir holds one file per entry when Backend == "dir".
	Dir string `yaml:"dir"`

	// Path is the database file when Backend == "bolt".
	Path string `yaml:"path"`

	// MaxEntries caps the spool; the oldest entries are evicted when it
	// overflows. Zero means unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// SweeperConfig controls the replay cycle.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// UploaderConfig describes the collector endpoint and client identity.
type UploaderConfig struct {
	// URL is the collector base URL; APIPath and the client name are appended.
	URL     string        `yaml:"url"`
	APIPath string        `yaml:"api_path"`
	Timeout time.Duration `yaml:"timeout"`

	// mTLS client identity. Used only for https URLs when both files exist.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// RequireClientCert fails uploads closed when no identity is available
	// instead of sending without one.
	RequireClientCert bool `yaml:"require_client_cert"`

	// CompressionLevel is the gzip level used for payloads.
	CompressionLevel int `yaml:"compression_level"`

	Breaker BreakerConfig `yaml:"breaker"`

	// ClientName is copied from the top level by Load.
	ClientName string `yaml:"-"`
}

// Endpoint returns the full upload URL.
func (u UploaderConfig) Endpoint() string {
	return u.URL + u.APIPath + u.ClientName
}

// BreakerConfig configures the optional upload circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// BootstrapConfig holds the one-time identity provisioning settings.
type BootstrapConfig struct {
	URL   string `yaml:"url"`
	Code  string `yaml:"code"`
	Email string `yaml:"email"`

	// RetryInterval is the first wait between failed attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Configured reports whether enough data is present to bootstrap.
func (b BootstrapConfig) Configured() bool {
	return b.URL != "" && b.Code != "" && b.Email != ""
}

// LogConfig configures the log sink.
type LogConfig struct {
	// Level is debug | info | warning | exception | critical.
	Level string `yaml:"level"`
	// Format is json | text.
	Format string `yaml:"format"`
	// Output is stdout | stderr | syslog.
	Output string `yaml:"output"`
}

// StatusConfig configures the local status surfaces.
type StatusConfig struct {
	// Listen is the host:port of the status HTTP server. Empty disables it.
	Listen string `yaml:"listen"`

	// Textfile is a path the Prometheus metrics are written to periodically.
	// Empty disables it.
	Textfile         string        `yaml:"textfile"`
	TextfileInterval time.Duration `yaml:"textfile_interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Type:     "gpsd",
			Address:  DefaultGPSDAddress,
			Interval: DefaultSimulateInterval,
		},
		Buffer: BufferConfig{MaxRecords: DefaultMaxRecords},
		Shipper: ShipperConfig{
			Interval:      DefaultShipInterval,
			ShutdownGrace: DefaultShutdownGrace,
		},
		Archive: ArchiveConfig{Dir: DefaultArchiveDir},
		Spool: SpoolConfig{
			Backend: "dir",
			Dir:     DefaultSpoolDir,
			Path:    "./spool.db",
		},
		Sweeper: SweeperConfig{Interval: DefaultSweepInterval},
		Uploader: UploaderConfig{
			URL:              DefaultUploadURL,
			Timeout:          DefaultUploadTimeout,
			CertFile:         DefaultCertFile,
			KeyFile:          DefaultKeyFile,
			CompressionLevel: -1,
			Breaker: BreakerConfig{
				MaxFailures: DefaultBreakerFailures,
				OpenTimeout: DefaultBreakerTimeout,
			},
		},
		Bootstrap: BootstrapConfig{RetryInterval: DefaultBootstrapRetry},
		Log:       LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Status:    StatusConfig{TextfileInterval: DefaultTextfileInterval},
	}
}

// Validate checks required fields and enums, reporting every problem found.
// It also propagates ClientName into the uploader section.
func (c *Config) Validate() error {
	c.Uploader.ClientName = c.ClientName

	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	switch c.Sensor.Type {
	case "gpsd":
		if c.Sensor.Address == "" {
			fail("sensor.address is required for gpsd")
		}
	case "simulate":
		if c.Sensor.Interval <= 0 {
			fail("sensor.interval must be positive")
		}
	default:
		fail("sensor.type: unknown type %q", c.Sensor.Type)
	}

	if c.Buffer.MaxRecords < 0 {
		fail("buffer.max_records must not be negative")
	}
	if c.Shipper.Interval <= 0 {
		fail("shipper.interval must be positive")
	}
	if c.Shipper.ShutdownGrace < 0 {
		fail("shipper.shutdown_grace must not be negative")
	}
	if c.Sweeper.Interval <= 0 {
		fail("sweeper.interval must be positive")
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		fail("archive.dir is required when archiving is enabled")
	}

	switch c.Spool.Backend {
	case "dir":
		if c.Spool.Dir == "" {
			fail("spool.dir is required for the dir backend")
		} else if c.Archive.Enabled && filepath.Clean(c.Archive.Dir) == filepath.Clean(c.Spool.Dir) {
			// Both use the same file prefix, so the sweeper would replay the archive.
			fail("archive.dir must differ from spool.dir")
		}
	case "bolt":
		if c.Spool.Path == "" {
			fail("spool.path is required for the bolt backend")
		}
	default:
		fail("spool.backend: unknown backend %q", c.Spool.Backend)
	}
	if c.Spool.MaxEntries < 0 {
		fail("spool.max_entries must not be negative")
	}

	if u, err := url.Parse(c.Uploader.URL); err != nil || u.Host == "" {
		fail("uploader.url %q is not a valid URL", c.Uploader.URL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		fail("uploader.url: unsupported scheme %q", u.Scheme)
	} else if u.Scheme == "http" && c.Uploader.RequireClientCert {
		fail("uploader.require_client_cert needs an https url")
	}
	if c.Uploader.Timeout <= 0 {
		fail("uploader.timeout must be positive")
	}
	if c.Uploader.CompressionLevel < -2 || c.Uploader.CompressionLevel > 9 {
		fail("uploader.compression_level must be between -2 and 9")
	}
	if c.Uploader.Breaker.Enabled {
		if c.Uploader.Breaker.MaxFailures == 0 {
			fail("uploader.breaker.max_failures must be positive")
		}
		if c.Uploader.Breaker.OpenTimeout <= 0 {
			fail("uploader.breaker.open_timeout must be positive")
		}
	}

	if c.Bootstrap.URL != "" && c.Bootstrap.RetryInterval <= 0 {
		fail("bootstrap.retry_interval must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warning", "exception", "critical", "":
	default:
		fail("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text", "":
	default:
		fail("log.format: unknown format %q", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "stderr", "syslog", "":
	default:
		fail("log.output: unknown output %q", c.Log.Output)
	}

	if c.Status.Textfile != "" && c.Status.TextfileInterval <= 0 {
		fail("status.textfile_interval must be positive")
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
