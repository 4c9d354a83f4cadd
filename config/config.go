package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the interview backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Interview InterviewConfig `mapstructure:"interview"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabasesConfig groups the backing stores.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains the relational store settings. URL wins over the
// discrete fields when both are present.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains settings for the conclusion-lock store.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// ProvidersConfig contains external service providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig contains the text-generation provider settings. ChatModel
// drives conversational turns; ExtractModel drives insight extraction at a
// lower temperature so output stays extractive rather than creative.
type OpenAIConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	ChatModel          string        `mapstructure:"chat_model"`
	ExtractModel       string        `mapstructure:"extract_model"`
	Temperature        float64       `mapstructure:"temperature"`
	ExtractTemperature float64       `mapstructure:"extract_temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func (o OpenAIConfig) Validate() error {
	if o.APIKey == "" {
		return fmt.Errorf("providers.openai.api_key is required (or OPENAI_API_KEY)")
	}
	if o.ExtractTemperature > o.Temperature {
		return fmt.Errorf("providers.openai.extract_temperature must not exceed providers.openai.temperature")
	}
	return nil
}

// InterviewConfig tunes the session state machine and turn policy.
type InterviewConfig struct {
	MaxRespondentTurns int           `mapstructure:"max_respondent_turns"`
	HistoryWindow      int           `mapstructure:"history_window"`
	ClosingPhrase      string        `mapstructure:"closing_phrase"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

func (i InterviewConfig) Validate() error {
	if i.MaxRespondentTurns <= 0 {
		return fmt.Errorf("interview.max_respondent_turns must be > 0")
	}
	if i.HistoryWindow <= 0 {
		return fmt.Errorf("interview.history_window must be > 0")
	}
	return nil
}

// LoadConfig loads config from file, layering INSIGHTLOOP_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.listen", ":10030")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("databases.postgres.sslmode", "disable")
	viper.SetDefault("databases.redis.db", 0)
	viper.SetDefault("providers.openai.chat_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.extract_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.temperature", 0.7)
	viper.SetDefault("providers.openai.extract_temperature", 0.2)
	viper.SetDefault("providers.openai.max_tokens", 1024)
	viper.SetDefault("providers.openai.timeout", 60*time.Second)
	viper.SetDefault("interview.max_respondent_turns", 4)
	viper.SetDefault("interview.history_window", 10)
	viper.SetDefault("interview.closing_phrase", "thank you for your time")
	viper.SetDefault("interview.lock_ttl", 2*time.Minute)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("INSIGHTLOOP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// env-only deployments run without a config file
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if config.Providers.OpenAI.APIKey == "" {
		config.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := config.Interview.Validate(); err != nil {
		panic(err)
	}
	return &config
}
