package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the bot and its CLI.
type Config struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token" yaml:"telegram_bot_token"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key" yaml:"openai_api_key"`

	// AllowedUsers is a comma-separated list of Telegram user ids. Empty
	// means the bot answers everyone.
	AllowedUsers string `mapstructure:"allowed_users" yaml:"allowed_users"`

	// RepoDir is the proposals repository (docs/, CLAUDE.md, render script).
	// DataDir holds the cost ledger and the conversation history database.
	RepoDir string `mapstructure:"repo_dir" yaml:"repo_dir"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Agent configuration
	MaxToolRounds    int `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
	RenderTimeoutSec int `mapstructure:"render_timeout_sec" yaml:"render_timeout_sec"`

	// Logging
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// AllowedUserIDs parses the comma-separated allowlist. Blank entries are
// skipped; anything non-numeric is an error so a typo cannot silently open
// the bot to the world.
func (c *Config) AllowedUserIDs() ([]int64, error) {
	if strings.TrimSpace(c.AllowedUsers) == "" {
		return nil, nil
	}
	parts := strings.Split(c.AllowedUsers, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("allowed_users: %q is not a user id", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LedgerPath is the cost ledger file under the data dir.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "costs.json")
}

// HistoryPath is the conversation history database under the data dir.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Save writes the given configuration to the cfgFile path. If cfgFile is
// empty, it writes to ~/.propbot.yaml.
func Save(c *Config, cfgFile string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".propbot.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROPBOT")
	v.AutomaticEnv()

	// Secrets keep their conventional unprefixed names as aliases.
	_ = v.BindEnv("telegram_bot_token", "PROPBOT_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("anthropic_api_key", "PROPBOT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai_api_key", "PROPBOT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("allowed_users", "PROPBOT_ALLOWED_USERS", "ALLOWED_USERS")

	// Defaults
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("allowed_users", "")
	v.SetDefault("repo_dir", "./proposals")
	v.SetDefault("data_dir", "./data")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Agent defaults
	v.SetDefault("max_tool_rounds", 10)
	v.SetDefault("render_timeout_sec", 30)
	// Logging defaults
	v.SetDefault("debug", false)
	v.SetDefault("log_file", "")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(".propbot")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
