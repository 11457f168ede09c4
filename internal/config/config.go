package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "STUMPER"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "stumper.db"
	defaultLogLevel     = "info"

	defaultToleranceRatio      = 0.2
	defaultSessionTTLMinutes   = 120
	defaultEpisodeLookbackDays = 30

	defaultMaxSingleQuestions = 10
	defaultMaxBoardGames      = 1
	defaultMaxDailyAttempts   = 1
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	SigningSecret       string
	DatabasePath        string
	LogLevel            string
	ToleranceRatio      float64
	SessionTTLMinutes   int
	MaxSingleQuestions  int
	MaxBoardGames       int
	MaxDailyAttempts    int
	EpisodeLookbackDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("answers.tolerance_ratio", defaultToleranceRatio)
	configViper.SetDefault("guest.session_ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("guest.max_single_questions", defaultMaxSingleQuestions)
	configViper.SetDefault("guest.max_board_games", defaultMaxBoardGames)
	configViper.SetDefault("guest.max_daily_attempts", defaultMaxDailyAttempts)
	configViper.SetDefault("daily.episode_lookback_days", defaultEpisodeLookbackDays)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		ToleranceRatio:      configViper.GetFloat64("answers.tolerance_ratio"),
		SessionTTLMinutes:   configViper.GetInt("guest.session_ttl_minutes"),
		MaxSingleQuestions:  configViper.GetInt("guest.max_single_questions"),
		MaxBoardGames:       configViper.GetInt("guest.max_board_games"),
		MaxDailyAttempts:    configViper.GetInt("guest.max_daily_attempts"),
		EpisodeLookbackDays: configViper.GetInt("daily.episode_lookback_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ToleranceRatio <= 0 || c.ToleranceRatio >= 1 {
		return fmt.Errorf("answers.tolerance_ratio must be in (0, 1)")
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("guest.session_ttl_minutes must be positive")
	}
	if c.MaxSingleQuestions <= 0 || c.MaxBoardGames <= 0 || c.MaxDailyAttempts <= 0 {
		return fmt.Errorf("guest trial quotas must be positive")
	}
	if c.EpisodeLookbackDays < 0 {
		return fmt.Errorf("daily.episode_lookback_days must not be negative")
	}
	return nil
}
