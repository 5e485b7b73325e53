// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"clipsync/internal/retry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLIPSYNC_"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all application configuration.
type Config struct {
	// Paths
	AccountsDir         string `yaml:"accounts_dir"`
	OutputDir           string `yaml:"output_dir"`
	TempDir             string `yaml:"temp_dir"`
	SecondaryContentDir string `yaml:"secondary_content_dir"`
	FontFile            string `yaml:"font_file"`

	// HorizonDays is how many days ahead posts may be scheduled.
	HorizonDays int `yaml:"horizon_days"`

	// External tools
	YtdlpPath    string        `yaml:"ytdlp_path"`
	YtdlpTimeout time.Duration `yaml:"ytdlp_timeout"`
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	FFprobePath  string        `yaml:"ffprobe_path"`
	VideoEncoder string        `yaml:"video_encoder"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Retry     RetryConfig     `yaml:"retry"`
	Store     StoreConfig     `yaml:"store"`
	Lock      LockConfig      `yaml:"lock"`
	Publish   PublishConfig   `yaml:"publish"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`

	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
	ListenAddr  string `yaml:"listen_addr"`
}

// DiscoveryConfig selects and tunes the source video lister.
type DiscoveryConfig struct {
	// Source is "ytdlp" or "api".
	Source              string  `yaml:"source"`
	YouTubeAPIKey       string  `yaml:"youtube_api_key"`
	QuotaReserve        int     `yaml:"quota_reserve"`
	ChannelListingLimit int     `yaml:"channel_listing_limit"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
}

type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// StoreConfig selects the account store: "json" files or "mongo".
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// LockConfig selects the per-account lock: "file" or "redis".
type LockConfig struct {
	Backend  string        `yaml:"backend"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PublishConfig struct {
	UploadURL       string        `yaml:"upload_url"`
	LoginURL        string        `yaml:"login_url"`
	Headless        bool          `yaml:"headless"`
	ChromePath      string        `yaml:"chrome_path"`
	Timeout         time.Duration `yaml:"timeout"`
	CaptionHashtags []string      `yaml:"caption_hashtags"`
	CaptionLanguage string        `yaml:"caption_language"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		AccountsDir:         "accounts",
		OutputDir:           "output",
		TempDir:             "temp",
		SecondaryContentDir: filepath.Join("assets", "content"),
		FontFile:            filepath.Join("assets", "tiktoksans.ttf"),
		HorizonDays:         10,
		YtdlpPath:           "yt-dlp",
		YtdlpTimeout:        5 * time.Minute,
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		VideoEncoder:        "libx264",
		Discovery: DiscoveryConfig{
			Source:              "ytdlp",
			QuotaReserve:        500,
			ChannelListingLimit: 60,
			RequestsPerSecond:   2,
		},
		Retry: RetryConfig{
			MaxRetries:        5,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Store: StoreConfig{Backend: "json", MongoDatabase: "clipsync"},
		Lock:  LockConfig{Backend: "file", TTL: 2 * time.Hour, Timeout: 5 * time.Second},
		Publish: PublishConfig{
			Timeout:         2 * time.Minute,
			CaptionLanguage: "en",
		},
		Log:         LogConfig{Level: "info", Format: "text"},
		Environment: "development",
		ListenAddr:  ":8080",
	}
}

// Load builds the configuration. Priority: env vars > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
// An explicit path must exist; otherwise the search paths are optional.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists where a config file is looked for when none is given.
func SearchPaths() []string {
	paths := []string{"clipsync.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "clipsync", "clipsync.yaml"))
	}
	return paths
}

func (c *Config) loadFromFile(path string) error {
	paths := SearchPaths()
	if path != "" {
		paths = []string{path}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return os.ErrNotExist
}

// loadFromEnv overrides config with CLIPSYNC_ environment variables.
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("ACCOUNTS_DIR", &c.AccountsDir)
	e.str("OUTPUT_DIR", &c.OutputDir)
	e.str("TEMP_DIR", &c.TempDir)
	e.str("SECONDARY_CONTENT_DIR", &c.SecondaryContentDir)
	e.str("FONT_FILE", &c.FontFile)
	e.int("HORIZON_DAYS", &c.HorizonDays)

	e.str("YTDLP_PATH", &c.YtdlpPath)
	e.duration("YTDLP_TIMEOUT", &c.YtdlpTimeout)
	e.str("FFMPEG_PATH", &c.FFmpegPath)
	e.str("FFPROBE_PATH", &c.FFprobePath)
	e.str("VIDEO_ENCODER", &c.VideoEncoder)

	e.str("DISCOVERY_SOURCE", &c.Discovery.Source)
	e.str("YOUTUBE_API_KEY", &c.Discovery.YouTubeAPIKey)
	e.int("CHANNEL_LISTING_LIMIT", &c.Discovery.ChannelListingLimit)
	e.float("REQUESTS_PER_SECOND", &c.Discovery.RequestsPerSecond)

	e.int("MAX_RETRIES", &c.Retry.MaxRetries)
	e.duration("INITIAL_BACKOFF", &c.Retry.InitialBackoff)
	e.duration("MAX_BACKOFF", &c.Retry.MaxBackoff)
	e.float("BACKOFF_MULTIPLIER", &c.Retry.BackoffMultiplier)

	e.str("STORE_BACKEND", &c.Store.Backend)
	e.str("MONGO_URI", &c.Store.MongoURI)
	e.str("MONGO_DATABASE", &c.Store.MongoDatabase)
	e.str("LOCK_BACKEND", &c.Lock.Backend)
	e.str("REDIS_URL", &c.Lock.RedisURL)
	e.duration("LOCK_TTL", &c.Lock.TTL)

	e.str("UPLOAD_URL", &c.Publish.UploadURL)
	e.str("LOGIN_URL", &c.Publish.LoginURL)
	e.bool("HEADLESS", &c.Publish.Headless)
	e.str("CHROME_PATH", &c.Publish.ChromePath)
	e.list("CAPTION_HASHTAGS", &c.Publish.CaptionHashtags)
	e.str("CAPTION_LANGUAGE", &c.Publish.CaptionLanguage)

	e.str("TELEGRAM_TOKEN", &c.Notify.TelegramToken)
	e.int64("TELEGRAM_CHAT_ID", &c.Notify.TelegramChatID)

	e.str("SENTRY_DSN", &c.SentryDSN)
	e.str("ENVIRONMENT", &c.Environment)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.str("LISTEN_ADDR", &c.ListenAddr)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, key, v, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	if c.AccountsDir == "" || c.OutputDir == "" || c.TempDir == "" {
		return invalid("accounts_dir, output_dir and temp_dir are required")
	}
	if c.HorizonDays <= 0 {
		return invalid("horizon_days must be positive")
	}
	if c.YtdlpTimeout <= 0 {
		return invalid("ytdlp_timeout must be positive")
	}

	switch c.Discovery.Source {
	case "ytdlp":
	case "api":
		if c.Discovery.YouTubeAPIKey == "" {
			return invalid("discovery.youtube_api_key is required when discovery.source is api")
		}
	default:
		return invalid("discovery.source must be ytdlp or api, got %q", c.Discovery.Source)
	}
	if c.Discovery.ChannelListingLimit <= 0 {
		return invalid("discovery.channel_listing_limit must be positive")
	}
	if c.Discovery.RequestsPerSecond < 0 {
		return invalid("discovery.requests_per_second must be non-negative")
	}

	if c.Retry.MaxRetries < 0 {
		return invalid("max_retries must be non-negative")
	}
	if c.Retry.InitialBackoff <= 0 {
		return invalid("initial_backoff must be positive")
	}
	if c.Retry.MaxBackoff <= 0 {
		return invalid("max_backoff must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return invalid("max_backoff must be >= initial_backoff")
	}
	if c.Retry.BackoffMultiplier <= 1 {
		return invalid("backoff_multiplier must be > 1")
	}

	switch c.Store.Backend {
	case "json":
	case "mongo":
		if c.Store.MongoURI == "" {
			return invalid("store.mongo_uri is required when store.backend is mongo")
		}
	default:
		return invalid("store.backend must be json or mongo, got %q", c.Store.Backend)
	}

	switch c.Lock.Backend {
	case "file":
	case "redis":
		if c.Lock.RedisURL == "" {
			return invalid("lock.redis_url is required when lock.backend is redis")
		}
		if c.Lock.TTL <= 0 {
			return invalid("lock.ttl must be positive")
		}
	default:
		return invalid("lock.backend must be file or redis, got %q", c.Lock.Backend)
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return invalid("notify.telegram_chat_id is required with a telegram token")
	}

	if _, err := c.LogLevel(); err != nil {
		return invalid("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Horizon returns the scheduling window as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.Retry.MaxRetries
	cfg.InitialBackoff = c.Retry.InitialBackoff
	cfg.MaxBackoff = c.Retry.MaxBackoff
	cfg.Multiplier = c.Retry.BackoffMultiplier
	return cfg
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}
