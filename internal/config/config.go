package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSearchURL = "https://www.googleapis.com/youtube/v3/search"

	ExtractorYTDLP  = "ytdlp"
	ExtractorNative = "native"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	YouTubeAPIKey    string `yaml:"youtube_api_key"`
	YouTubeSearchURL string `yaml:"youtube_search_url"`

	SearchTimeout        time.Duration `yaml:"search_timeout"`
	ResolveTimeout       time.Duration `yaml:"resolve_timeout"`
	StreamConnectTimeout time.Duration `yaml:"stream_connect_timeout"`

	Extractor string `yaml:"extractor"`
	YTDLPPath string `yaml:"ytdlp_path"`

	RedisURL              string        `yaml:"redis_url"`
	SearchCacheTTL        time.Duration `yaml:"search_cache_ttl"`
	SearchCacheMaxEntries int           `yaml:"search_cache_max_entries"`

	AudioRPS   float64 `yaml:"audio_rps"`
	AudioBurst int     `yaml:"audio_burst"`

	CORSAllowedOrigin string `yaml:"cors_allowed_origin"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Host:                  "127.0.0.1",
		Port:                  5000,
		YouTubeSearchURL:      DefaultSearchURL,
		SearchTimeout:         10 * time.Second,
		ResolveTimeout:        60 * time.Second,
		StreamConnectTimeout:  60 * time.Second,
		Extractor:             ExtractorYTDLP,
		YTDLPPath:             "yt-dlp",
		SearchCacheTTL:        10 * time.Minute,
		SearchCacheMaxEntries: 512,
		AudioRPS:              2,
		AudioBurst:            4,
		CORSAllowedOrigin:     "*",
		LogLevel:              "info",
		LogFormat:             LogFormatConsole,
	}
}

// Load builds the configuration from defaults, an optional YAML file, an optional
// .env file and the process environment, in increasing priority.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SONGIFY_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Host = getenv("HOST", cfg.Host)
	if cfg.Port, err = getenvInt("PORT", cfg.Port); err != nil {
		return err
	}

	cfg.YouTubeAPIKey = getenv("YOUTUBE_API_KEY", cfg.YouTubeAPIKey)
	cfg.YouTubeSearchURL = getenv("YOUTUBE_SEARCH_URL", cfg.YouTubeSearchURL)

	if cfg.SearchTimeout, err = getenvDuration("SEARCH_TIMEOUT", cfg.SearchTimeout); err != nil {
		return err
	}
	if cfg.ResolveTimeout, err = getenvDuration("RESOLVE_TIMEOUT", cfg.ResolveTimeout); err != nil {
		return err
	}
	if cfg.StreamConnectTimeout, err = getenvDuration("STREAM_CONNECT_TIMEOUT", cfg.StreamConnectTimeout); err != nil {
		return err
	}

	cfg.Extractor = strings.ToLower(getenv("EXTRACTOR", cfg.Extractor))
	cfg.YTDLPPath = getenv("YTDLP_PATH", cfg.YTDLPPath)

	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	if cfg.SearchCacheTTL, err = getenvDuration("SEARCH_CACHE_TTL", cfg.SearchCacheTTL); err != nil {
		return err
	}
	if cfg.SearchCacheMaxEntries, err = getenvInt("SEARCH_CACHE_MAX_ENTRIES", cfg.SearchCacheMaxEntries); err != nil {
		return err
	}

	if raw := os.Getenv("AUDIO_RPS"); raw != "" {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return fmt.Errorf("invalid AUDIO_RPS %q: %w", raw, perr)
		}
		cfg.AudioRPS = v
	}
	if cfg.AudioBurst, err = getenvInt("AUDIO_BURST", cfg.AudioBurst); err != nil {
		return err
	}

	cfg.CORSAllowedOrigin = getenv("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)
	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getenv("LOG_FORMAT", cfg.LogFormat))
	return nil
}

// Validate rejects settings the server cannot start with. A missing API key is not
// an error: searches fail at call time instead.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Extractor {
	case ExtractorYTDLP, ExtractorNative:
	default:
		return fmt.Errorf("unknown extractor %q (want %s or %s)", c.Extractor, ExtractorYTDLP, ExtractorNative)
	}
	switch c.LogFormat {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.SearchTimeout <= 0 || c.ResolveTimeout <= 0 || c.StreamConnectTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.SearchCacheTTL < 0 {
		return errors.New("search_cache_ttl must not be negative")
	}
	if c.AudioRPS < 0 || c.AudioBurst < 0 {
		return errors.New("audio rate limit must not be negative")
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedactedKey returns the API key with everything but the last four characters masked.
func (c Config) RedactedKey() string {
	if c.YouTubeAPIKey == "" {
		return "(unset)"
	}
	if len(c.YouTubeAPIKey) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.YouTubeAPIKey)-4) + c.YouTubeAPIKey[len(c.YouTubeAPIKey)-4:]
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	raw := os.Getenv(k)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", k, raw, err)
	}
	return v, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(k)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", k, raw, err)
	}
	return v, nil
}
