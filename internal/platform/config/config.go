package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	AppEnv       string `env:"APP_ENV" default:"development"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`
	DiscordToken string `env:"DISCORD_TOKEN"`
	RulesFile    string `env:"RULES_FILE" default:"config.yaml"`
	HTTPAddr     string `env:"HTTP_ADDR" default:":8080"`

	// Testing disables the mute exemptions for bots and moderators.
	Testing bool `env:"TESTING" default:"false"`

	MuteStore   string `env:"MUTE_STORE" default:"file"`
	MuteFile    string `env:"MUTE_FILE" default:"muted.json"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" default:"muted.db"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Rules is the per-community moderation setup read from RulesFile.
type Rules struct {
	GuildID        string `yaml:"guild_id"`
	OwnerID        string `yaml:"owner_id"`
	RulesChannelID string `yaml:"rules_channel_id"`

	ModRoles   []string `yaml:"mod_roles"`
	SinbinRole string   `yaml:"sinbin_role"`

	// ModConfiguredRoles are feature roles mods toggle with !enable<Key> / !disable<Key>.
	ModConfiguredRoles map[string]ConfiguredRole `yaml:"mod_configured_roles"`

	NameChangeChannelID  string   `yaml:"name_change_channel_id"`
	CopycatAlertRoleID   string   `yaml:"copycat_alert_role_id"`
	CopycatTargetRoleIDs []string `yaml:"copycat_target_role_ids"`
	CopycatWords         []string `yaml:"copycat_words"`

	WelcomeMessage     string `yaml:"welcome_message"`
	WelcomeMessageFile string `yaml:"welcome_message_file"`

	LinkBlacklist bool `yaml:"link_blacklist"`

	PriceChannelID     string        `yaml:"price_channel_id"`
	PriceInterval      time.Duration `yaml:"price_interval"`
	ExchangeAPITimeout time.Duration `yaml:"exchange_api_timeout"`
	PriceSummaryURL    string        `yaml:"price_summary_url"`
}

type ConfiguredRole struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Inverted bool   `yaml:"inverted"`
}

// DisplayName is the configured label, falling back to the command key.
func (r ConfiguredRole) DisplayName(key string) string {
	if r.Name != "" {
		return r.Name
	}
	return key
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadRules reads and validates the YAML rules file. A configured welcome
// message file replaces the inline message.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	rules := Rules{
		PriceInterval:      time.Minute,
		ExchangeAPITimeout: 2500 * time.Millisecond,
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if rules.WelcomeMessageFile != "" {
		msg, err := os.ReadFile(rules.WelcomeMessageFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read welcome message file: %w", err)
		}
		rules.WelcomeMessage = string(msg)
	}

	if err := validateRules(&rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

func validate(cfg *Config) error {
	if cfg.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}

	switch cfg.MuteStore {
	case StoreFile:
		if cfg.MuteFile == "" {
			return errors.New("MUTE_FILE is required when MUTE_STORE=file")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when MUTE_STORE=redis")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when MUTE_STORE=postgres")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when MUTE_STORE=sqlite")
		}
	default:
		return fmt.Errorf("MUTE_STORE must be one of file, redis, postgres, sqlite, got %q", cfg.MuteStore)
	}

	if cfg.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func validateRules(r *Rules) error {
	if r.SinbinRole == "" {
		return errors.New("sinbin_role is required")
	}
	if len(r.ModRoles) == 0 {
		return errors.New("mod_roles must name at least one role")
	}
	for key, role := range r.ModConfiguredRoles {
		if role.ID == "" {
			return fmt.Errorf("mod_configured_roles.%s.id is required", key)
		}
	}
	if len(r.CopycatTargetRoleIDs) > 0 && r.GuildID == "" {
		return errors.New("guild_id is required when copycat_target_role_ids is set")
	}
	if r.PriceChannelID != "" && r.PriceInterval <= 0 {
		return errors.New("price_interval must be positive")
	}
	return nil
}
