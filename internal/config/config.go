package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

// StorageConfig points at the S3-compatible object store holding job
// inputs, outputs, and the pre-supplied county shapefile area.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
	// PublicBaseURL overrides the URL prefix recorded in job results;
	// when empty, URLs are composed from the endpoint and bucket.
	PublicBaseURL string `yaml:"publicBaseURL"`
}

type WorkerConfig struct {
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds"`
	WorkDir             string `yaml:"workDir"`
	PartialSaveEvery    int    `yaml:"partialSaveEvery"`
	MaxParcels          int    `yaml:"maxParcels"`
}

// BrowserConfig controls the headless Chromium used by the portal
// strategies. When ControlURL is empty a local browser is launched.
type BrowserConfig struct {
	ControlURL           string `yaml:"controlURL"`
	Headless             bool   `yaml:"headless"`
	Stealth              bool   `yaml:"stealth"`
	NavTimeoutSeconds    int    `yaml:"navTimeoutSeconds"`
	SearchTimeoutSeconds int    `yaml:"searchTimeoutSeconds"`
}

type ScrapeConfig struct {
	UserAgent              string `yaml:"userAgent"`
	RespectRobots          bool   `yaml:"respectRobots"`
	MaxConsecutiveFailures int    `yaml:"maxConsecutiveFailures"`
	ScreenshotOnError      bool   `yaml:"screenshotOnError"`
}

// PacingConfig holds the politeness delays, in milliseconds, for the
// two outbound request classes plus the periodic thinking pause.
type PacingConfig struct {
	PageMinMs     int `yaml:"pageMinMs"`
	PageMaxMs     int `yaml:"pageMaxMs"`
	DocumentMinMs int `yaml:"documentMinMs"`
	DocumentMaxMs int `yaml:"documentMaxMs"`
	ThinkEvery    int `yaml:"thinkEvery"`
	ThinkMinMs    int `yaml:"thinkMinMs"`
	ThinkMaxMs    int `yaml:"thinkMaxMs"`
}

type GISConfig struct {
	Region string `yaml:"region"`
}

// RetentionConfig controls TTL-like deletion of old jobs and their
// artifacts so that neither the database nor the blob store grows
// without bound over time.
type RetentionConfig struct {
	Enabled              bool `yaml:"enabled"`
	SweepIntervalMinutes int  `yaml:"sweepIntervalMinutes"`
	JobDays              int  `yaml:"jobDays"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Storage   StorageConfig   `yaml:"storage"`
	Worker    WorkerConfig    `yaml:"worker"`
	Browser   BrowserConfig   `yaml:"browser"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Pacing    PacingConfig    `yaml:"pacing"`
	GIS       GISConfig       `yaml:"gis"`
	Retention RetentionConfig `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	// Secrets may be provided via environment instead of the file.
	if v := os.Getenv("PARCELWORKS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PARCELWORKS_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("PARCELWORKS_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}

	return &cfg
}
