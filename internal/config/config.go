package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Config holds all settings for the ingest and dashboard binaries,
// populated from environment variables.
type Config struct {
	// Source and store.
	Indicator        string
	WorldBankBaseURL string
	WorldBankPerPage int
	FetchTimeout     time.Duration
	StoreURL         string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dashboard.
	DefaultYear       string
	DefaultCountry    string
	RankingLimit      int
	GeoBoundariesPath string
	SnapshotRefresh   string
	SnapshotWatch     bool

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional sinks and push metrics.
	KafkaBrokers      []string
	KafkaTopic        string
	ExportParquetPath string
	PushgatewayURL    string

	ConfigFile string
}

// Overrides carries command-line values that take precedence over the
// environment. Empty fields leave the environment value in place.
type Overrides struct {
	Indicator         string
	StoreURL          string
	ConfigFile        string
	ExportParquetPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
// When CONFIG_FILE names a YAML file, its entries fill in variables that are not
// already set in the environment.
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides works like Load, then replaces every setting that has a
// non-empty override. An override config file is read instead of CONFIG_FILE.
func LoadWithOverrides(o Overrides) (*Config, error) {
	configFile := firstNonEmpty(o.ConfigFile, os.Getenv("CONFIG_FILE"))
	if configFile != "" {
		if err := ApplyFile(configFile); err != nil {
			return nil, err
		}
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	perPage, err := parsePositiveInt("WORLDBANK_PER_PAGE", 10000)
	if err != nil {
		return nil, err
	}

	rankingLimit, err := parsePositiveInt("RANKING_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	snapshotWatch, err := parseBool("SNAPSHOT_WATCH", false)
	if err != nil {
		return nil, err
	}

	var kafkaBrokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		kafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		Indicator:        sharedcfg.EnvOrDefault("INDICATOR_CODE", "NE.EXP.GNFS.KD.ZG"),
		WorldBankBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("WORLDBANK_BASE_URL", "https://api.worldbank.org"), "/"),
		WorldBankPerPage: perPage,
		FetchTimeout:     fetchTimeout,
		StoreURL:         sharedcfg.EnvOrDefault("STORE_URL", "sqlite://trade_data.db"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", "0.0.0.0:8050"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,

		DefaultYear:       sharedcfg.EnvOrDefault("DEFAULT_YEAR", "2023"),
		DefaultCountry:    sharedcfg.EnvOrDefault("DEFAULT_COUNTRY", "European Union"),
		RankingLimit:      rankingLimit,
		GeoBoundariesPath: sharedcfg.EnvOrDefault("GEO_BOUNDARIES_PATH", "data/ne_110m_admin_0_countries.geojson"),
		SnapshotRefresh:   os.Getenv("SNAPSHOT_REFRESH"),
		SnapshotWatch:     snapshotWatch,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		KafkaBrokers:      kafkaBrokers,
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "trade-indicators"),
		ExportParquetPath: os.Getenv("EXPORT_PARQUET_PATH"),
		PushgatewayURL:    os.Getenv("PUSHGATEWAY_URL"),

		ConfigFile: configFile,
	}
	cfg.Indicator = firstNonEmpty(o.Indicator, cfg.Indicator)
	cfg.StoreURL = firstNonEmpty(o.StoreURL, cfg.StoreURL)
	cfg.ExportParquetPath = firstNonEmpty(o.ExportParquetPath, cfg.ExportParquetPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KafkaEnabled reports whether the Kafka sink is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) validate() error {
	if c.Indicator == "" {
		return errors.New("INDICATOR_CODE is required")
	}
	if u, err := url.Parse(c.WorldBankBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("invalid WORLDBANK_BASE_URL")
	}
	if c.StoreURL == "" {
		return errors.New("STORE_URL is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	if c.SnapshotRefresh != "" {
		if _, err := cron.ParseStandard(c.SnapshotRefresh); err != nil {
			return fmt.Errorf("invalid SNAPSHOT_REFRESH: %w", err)
		}
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
