package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

const defaultPrompt = "応答するには 1 を押してください。応答できない場合は 9 など 1 以外の数字を押してください"

type Config struct {
	Server   ServerConfig
	Voice    VoiceConfig
	Dialing  DialingConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sweeper  SweeperConfig
}

type ServerConfig struct {
	Address  string
	BaseURL  string
	LogLevel slog.Level
}

type VoiceConfig struct {
	APIURL        string
	ApplicationID string
	PrivateKey    string
	FromNumber    string
	Language      string
	Prompt        string
	InputTimeout  time.Duration
	AckDigit      string
}

type DialingConfig struct {
	CountryCode string
	Location    *time.Location
}

type StoreConfig struct {
	Kind              StoreKind
	OptimisticLocking bool
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// LoadAll reads the configuration from the environment and reports every
// problem it finds at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Voice: VoiceConfig{
			APIURL:   getEnv("VONAGE_API_URL", "https://api.nexmo.com"),
			Language: getEnv("VOICE_LANGUAGE", "ja-JP"),
			Prompt:   getEnv("VOICE_PROMPT", defaultPrompt),
			AckDigit: getEnv("ACK_DIGIT", "1"),
		},
		Dialing: DialingConfig{
			CountryCode: getEnv("COUNTRY_CODE", "81"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Address:  os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	var err error
	cfg.Server.BaseURL, err = requireEnv("BASE_URL")
	collect(err)
	cfg.Voice.ApplicationID, err = requireEnv("VONAGE_APPLICATION_ID")
	collect(err)
	cfg.Voice.PrivateKey, err = requireEnv("VONAGE_PRIVATE_KEY")
	collect(err)
	cfg.Voice.FromNumber, err = requireEnv("VONAGE_NUMBER")
	collect(err)

	cfg.Server.LogLevel, err = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	collect(err)

	timeout, err := getEnvInt("INPUT_TIMEOUT_SECONDS", 5)
	collect(err)
	cfg.Voice.InputTimeout = time.Duration(timeout) * time.Second

	cfg.Dialing.Location, err = time.LoadLocation(getEnv("TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		collect(fmt.Errorf("invalid TIMEZONE: %w", err))
	}

	cfg.Store.Kind = StoreKind(strings.ToLower(getEnv("SESSION_STORE", string(StoreMemory))))
	cfg.Store.OptimisticLocking, err = getEnvBool("OPTIMISTIC_LOCKING", false)
	collect(err)

	cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0)
	collect(err)
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	collect(err)
	cfg.Redis.TTL = time.Duration(ttl) * time.Second

	interval, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 3600)
	collect(err)
	cfg.Sweeper.Interval = time.Duration(interval) * time.Second
	retention, err := getEnvInt("SESSION_RETENTION_SECONDS", 86400)
	collect(err)
	cfg.Sweeper.Retention = time.Duration(retention) * time.Second

	collect(validate(cfg))

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Store.Kind {
	case StoreMemory:
	case StoreRedis:
		if cfg.Redis.Address == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	case StorePostgres:
		if cfg.Database.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when SESSION_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be one of memory, redis, postgres: %q", cfg.Store.Kind))
	}

	if cfg.Voice.InputTimeout <= 0 {
		errs = append(errs, errors.New("INPUT_TIMEOUT_SECONDS must be > 0"))
	}
	if len(cfg.Voice.AckDigit) != 1 || !digitsOnly.MatchString(cfg.Voice.AckDigit) {
		errs = append(errs, fmt.Errorf("ACK_DIGIT must be a single digit: %q", cfg.Voice.AckDigit))
	}
	if !digitsOnly.MatchString(cfg.Dialing.CountryCode) {
		errs = append(errs, fmt.Errorf("COUNTRY_CODE must be digits: %q", cfg.Dialing.CountryCode))
	}
	if cfg.Redis.TTL < 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be >= 0"))
	}
	if cfg.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sweeper.Retention <= 0 {
		errs = append(errs, errors.New("SESSION_RETENTION_SECONDS must be > 0"))
	}

	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func getEnvLevel(key string, def slog.Level) (slog.Level, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return def, fmt.Errorf("invalid log level for env %s: %s", key, v)
	}
	return lvl, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
