package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port    int
	AppEnv  string
	LogLvl  zerolog.Level
	Origins []string

	DecisionDuration time.Duration
	AnimationDelay   time.Duration
	DecisionTick     time.Duration

	WatchdogInterval time.Duration
	CleanupInterval  time.Duration
	EventRetention   time.Duration

	DiceMin int
	DiceMax int

	DatabaseURL string
}

// InitConfig loads a .env file when one is present. A missing file is fine,
// the environment may already be populated.
func InitConfig() {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Msg("[InitConfig] no .env file, using process environment")
			return
		}
		log.Warn().Err(err).Msg("[InitConfig] error loading .env file")
		return
	}
	log.Info().Msg("[InitConfig] successfully loaded environment variables")
}

func GetEnvVariable(v string) (string, error) {
	if v == "" {
		return "", fmt.Errorf("input param empty")
	}
	b := os.Getenv(v)
	if b == "" {
		return "", fmt.Errorf("failed to get variable for %s", v)
	}

	return b, nil
}

func getenv(key, def string) string {
	if v, err := GetEnvVariable(key); err == nil {
		return strings.TrimSpace(v)
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Load reads the process environment into a Config.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:      getenv("APP_ENV", "local"),
		DatabaseURL: getenv("DATABASE_URL", ""),
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("PORT: out of range: %d", cfg.Port)
	}

	if cfg.LogLvl, err = zerolog.ParseLevel(strings.ToLower(getenv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Origins = append(cfg.Origins, o)
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"DECISION_DURATION", 30 * time.Second, &cfg.DecisionDuration},
		{"ROLL_ANIMATION_DELAY", 2 * time.Second, &cfg.AnimationDelay},
		{"DECISION_TICK", 500 * time.Millisecond, &cfg.DecisionTick},
		{"WATCHDOG_INTERVAL", 500 * time.Millisecond, &cfg.WatchdogInterval},
		{"WATCHDOG_CLEANUP_INTERVAL", 5 * time.Minute, &cfg.CleanupInterval},
		{"EVENT_RETENTION", time.Hour, &cfg.EventRetention},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.DiceMin, err = intEnv("DICE_MIN", 1); err != nil {
		return Config{}, err
	}
	if cfg.DiceMax, err = intEnv("DICE_MAX", 6); err != nil {
		return Config{}, err
	}
	if cfg.DiceMin < 1 || cfg.DiceMax > 6 || cfg.DiceMin > cfg.DiceMax {
		return Config{}, fmt.Errorf("dice range must be within 1..6, got %d..%d", cfg.DiceMin, cfg.DiceMax)
	}

	return cfg, nil
}

// SetupLogger configures the global zerolog logger. Local runs get the
// console writer, everything else logs JSON.
func SetupLogger(cfg Config) {
	zerolog.SetGlobalLevel(cfg.LogLvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.AppEnv == "local" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
