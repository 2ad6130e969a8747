package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr    = ":8080"
	defaultDatasetPath   = "nutrition_activity_obesity_usa_subset.csv"
	defaultStoreBackend  = "file"
	defaultResultsDir    = "results"
	defaultDBPath        = "healthstat.db"
	defaultNATSSubject   = "healthstat.jobs"
	defaultSweepInterval = time.Hour

	envConfigFile    = "HEALTHSTAT_CONFIG"
	envListenAddr    = "HEALTHSTAT_LISTEN_ADDR"
	envLogLevel      = "HEALTHSTAT_LOG_LEVEL"
	envLogFile       = "HEALTHSTAT_LOG_FILE"
	envDatasetPath   = "HEALTHSTAT_DATASET"
	envWorkers       = "HEALTHSTAT_WORKERS"
	envLegacyWorkers = "TP_NUM_OF_THREADS"
	envStoreBackend  = "HEALTHSTAT_STORE"
	envResultsDir    = "HEALTHSTAT_RESULTS_DIR"
	envDBPath        = "HEALTHSTAT_DB_PATH"
	envRedisURL      = "HEALTHSTAT_REDIS_URL"
	envNATSURL       = "HEALTHSTAT_NATS_URL"
	envNATSSubject   = "HEALTHSTAT_NATS_SUBJECT"
	envRetentionDays = "HEALTHSTAT_RETENTION_DAYS"
	envSweepInterval = "HEALTHSTAT_SWEEP_INTERVAL"
)

// Config holds application configuration.
type Config struct {
	ListenAddr  string
	LogLevel    slog.Level
	LogFile     string
	DatasetPath string
	Workers     int

	StoreBackend string
	ResultsDir   string
	DBPath       string
	RedisURL     string

	NATSURL     string
	NATSSubject string

	RetentionDays int
	SweepInterval time.Duration
}

// Retention returns the result retention window, or zero when disabled.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// fileConfig mirrors the optional YAML config file. Zero values leave the
// defaults in place.
type fileConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`
	LogFile    string `yaml:"logFile"`
	Dataset    string `yaml:"dataset"`
	Workers    int    `yaml:"workers"`

	Store struct {
		Backend    string `yaml:"backend"`
		ResultsDir string `yaml:"resultsDir"`
		SQLitePath string `yaml:"sqlitePath"`
		RedisURL   string `yaml:"redisURL"`
	} `yaml:"store"`

	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	Retention struct {
		Days          int    `yaml:"days"`
		SweepInterval string `yaml:"sweepInterval"`
	} `yaml:"retention"`
}

// Load builds the configuration from defaults, the YAML file named by
// HEALTHSTAT_CONFIG (if set) and environment variables, in that order.
func Load() (Config, error) {
	cores := runtime.NumCPU()
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		LogLevel:      slog.LevelInfo,
		DatasetPath:   defaultDatasetPath,
		Workers:       cores,
		StoreBackend:  defaultStoreBackend,
		ResultsDir:    defaultResultsDir,
		DBPath:        defaultDBPath,
		NATSSubject:   defaultNATSSubject,
		SweepInterval: defaultSweepInterval,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := applyFile(&cfg, path, cores); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, cores); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case "file", "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.RetentionDays < 0 {
		return Config{}, errors.New("retention days must not be negative")
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string, cores int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.DatasetPath, fc.Dataset)
	if fc.Workers != 0 {
		cfg.Workers = WorkerCount(strconv.Itoa(fc.Workers), cores)
	}
	setString(&cfg.StoreBackend, fc.Store.Backend)
	setString(&cfg.ResultsDir, fc.Store.ResultsDir)
	setString(&cfg.DBPath, fc.Store.SQLitePath)
	setString(&cfg.RedisURL, fc.Store.RedisURL)
	setString(&cfg.NATSURL, fc.NATS.URL)
	setString(&cfg.NATSSubject, fc.NATS.Subject)
	if fc.Retention.Days != 0 {
		cfg.RetentionDays = fc.Retention.Days
	}
	if fc.Retention.SweepInterval != "" {
		d, err := time.ParseDuration(fc.Retention.SweepInterval)
		if err != nil {
			return fmt.Errorf("parse retention.sweepInterval: %w", err)
		}
		cfg.SweepInterval = d
	}
	return nil
}

func applyEnv(cfg *Config, cores int) error {
	setString(&cfg.ListenAddr, os.Getenv(envListenAddr))
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	setString(&cfg.LogFile, os.Getenv(envLogFile))
	setString(&cfg.DatasetPath, os.Getenv(envDatasetPath))

	if v := os.Getenv(envWorkers); v != "" {
		cfg.Workers = WorkerCount(v, cores)
	} else if v := os.Getenv(envLegacyWorkers); v != "" {
		cfg.Workers = WorkerCount(v, cores)
	}

	setString(&cfg.StoreBackend, strings.ToLower(os.Getenv(envStoreBackend)))
	setString(&cfg.ResultsDir, os.Getenv(envResultsDir))
	setString(&cfg.DBPath, os.Getenv(envDBPath))
	setString(&cfg.RedisURL, os.Getenv(envRedisURL))
	setString(&cfg.NATSURL, os.Getenv(envNATSURL))
	setString(&cfg.NATSSubject, os.Getenv(envNATSSubject))

	if v := os.Getenv(envRetentionDays); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envRetentionDays, err)
		}
		cfg.RetentionDays = days
	}
	if v := os.Getenv(envSweepInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envSweepInterval, err)
		}
		cfg.SweepInterval = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// WorkerCount resolves a requested worker count against the available cores:
// the value is clamped to [1, cores], and anything unparsable yields cores.
func WorkerCount(raw string, cores int) int {
	if cores < 1 {
		cores = 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return cores
	}
	return max(1, min(n, cores))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// LogOutput returns stdout, teed to the file at path when path is set. The
// returned close function releases the file.
func LogOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return io.MultiWriter(stdout, f), f.Close, nil
}
