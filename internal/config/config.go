// Package config provides YAML (or TOML) configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultLatencyThreshold    = 30 * time.Second
	DefaultTickInterval        = 10 * time.Second
	DefaultMaxBackoff          = 30 * time.Second
	DefaultMaxLoad             = 5
	DefaultPort                = 8080
	DefaultDigestSchedule      = "0 * * * *"
	DefaultBaseURL             = "http://localhost:8080"
)

// scheduleParser accepts standard 5-field cron expressions (minute, hour, dom,
// month, dow) and descriptors such as @hourly.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a digest schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Classifier     ClassifierConfig `yaml:"classifier" toml:"classifier"`
	Scheduler      SchedulerConfig  `yaml:"scheduler" toml:"scheduler"`
	Matcher        MatcherConfig    `yaml:"matcher" toml:"matcher"`
	DefaultMaxLoad int              `yaml:"default_max_load" toml:"default_max_load"`
	Agents         []AgentConfig    `yaml:"agents" toml:"agents"`
	Notify         NotifyConfig     `yaml:"notify" toml:"notify"`
	Digest         DigestConfig     `yaml:"digest" toml:"digest"`
	Journal        JournalConfig    `yaml:"journal" toml:"journal"`
	Server         ServerConfig     `yaml:"server" toml:"server"`
}

// ClassifierConfig holds the escalation thresholds and keyword lists.
// confidence_threshold defaults to 0.7 when absent; 0 disables the confidence
// rule.
type ClassifierConfig struct {
	ConfidenceThreshold float64        `yaml:"confidence_threshold" toml:"confidence_threshold"`
	LatencyThreshold    time.Duration  `yaml:"latency_threshold" toml:"latency_threshold"`
	Keywords            KeywordsConfig `yaml:"keywords" toml:"keywords"`
}

// KeywordsConfig holds one phrase list per keyword rule. A nil list takes the
// built-in default; an explicit empty list disables the rule.
type KeywordsConfig struct {
	Complaint []string `yaml:"complaint" toml:"complaint"`
	Financial []string `yaml:"financial" toml:"financial"`
	Custom    []string `yaml:"custom" toml:"custom"`
	Technical []string `yaml:"technical" toml:"technical"`
	Emergency []string `yaml:"emergency" toml:"emergency"`
}

// SchedulerConfig controls the assignment loop cadence.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" toml:"tick_interval"`
	MaxBackoff   time.Duration `yaml:"max_backoff" toml:"max_backoff"`
	LogLevel     string        `yaml:"log_level" toml:"log_level"` // debug, info, warn, error
}

// MatcherConfig tunes agent scoring. Zero weights take the built-in values.
// When reason_tags is absent, each reason also scores built-in extra tags
// (finance for price_negotiation, service for technical_issue, ...). When set,
// it replaces them; reason_tags: {} scores only the words of the reason
// itself, e.g. "price" and "negotiation".
type MatcherConfig struct {
	ExpertiseWeight float64             `yaml:"expertise_weight" toml:"expertise_weight"`
	LanguageWeight  float64             `yaml:"language_weight" toml:"language_weight"`
	PriorityWeight  float64             `yaml:"priority_weight" toml:"priority_weight"`
	FreeSlotWeight  float64             `yaml:"free_slot_weight" toml:"free_slot_weight"`
	ReasonTags      map[string][]string `yaml:"reason_tags" toml:"reason_tags"`
}

// AgentConfig defines one human agent in the roster.
type AgentConfig struct {
	ID        string   `yaml:"id" toml:"id"`
	Name      string   `yaml:"name" toml:"name"`
	Email     string   `yaml:"email" toml:"email"`
	Phone     string   `yaml:"phone" toml:"phone"`
	Expertise []string `yaml:"expertise" toml:"expertise"`
	Languages []string `yaml:"languages" toml:"languages"`
	MaxLoad   int      `yaml:"max_load" toml:"max_load"`
	Status    string   `yaml:"status" toml:"status"`
}

// NotifyConfig selects the channels used to alert agents about assignments.
type NotifyConfig struct {
	Log     bool          `yaml:"log" toml:"log"`
	Command string        `yaml:"command" toml:"command"`
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Slack   SlackConfig   `yaml:"slack" toml:"slack"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token" toml:"bot_token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token" toml:"bot_token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

// DigestConfig controls the periodic queue digest.
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// JournalConfig selects the lifecycle journal backend.
type JournalConfig struct {
	Driver   string `yaml:"driver" toml:"driver"` // "sqlite" (default), "mysql", "none"
	DSN      string `yaml:"dsn" toml:"dsn"`
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	Database string `yaml:"database" toml:"database"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Load reads a config file from path and returns a validated Config. Files
// ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// LoadOrDefault loads path when it is set, otherwise returns the built-in
// configuration with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return finish(builtin())
	}
	return Load(path)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return finish(cfg)
}

// ParseTOML unmarshals TOML bytes into a validated Config.
func ParseTOML(data []byte) (*Config, error) {
	cfg := newConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse toml: %w", err)
	}
	return finish(cfg)
}

// Default returns the built-in configuration: default thresholds, keyword
// lists and the starter roster of four agents.
func Default() *Config {
	cfg := builtin()
	cfg.applyDefaults()
	return cfg
}

func builtin() *Config {
	cfg := newConfig()
	cfg.Notify.Log = true
	cfg.Agents = defaultAgents()
	return cfg
}

// newConfig returns the decode target with the default confidence threshold
// seeded, so an explicit 0 survives decoding.
func newConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{ConfidenceThreshold: DefaultConfidenceThreshold},
	}
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays SB_* environment variables. Unparseable values are ignored
// here and surface through validate when they leave the config inconsistent.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SB_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Classifier.ConfidenceThreshold = f
		}
	}
	if v := getenv("SB_LATENCY_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Classifier.LatencyThreshold = d
		}
	}
	if v := getenv("SB_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.TickInterval = d
		}
	}
	if v := getenv("SB_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.MaxBackoff = d
		}
	}
	if v := getenv("SB_DEFAULT_MAX_LOAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultMaxLoad = n
		}
	}
	if v := getenv("SB_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := getenv("SB_SLACK_BOT_TOKEN"); v != "" {
		c.Notify.Slack.BotToken = v
	}
	if v := getenv("SB_DISCORD_BOT_TOKEN"); v != "" {
		c.Notify.Discord.BotToken = v
	}
	if v := getenv("SB_JOURNAL_DSN"); v != "" {
		c.Journal.DSN = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Classifier.LatencyThreshold == 0 {
		c.Classifier.LatencyThreshold = DefaultLatencyThreshold
	}
	c.Classifier.Keywords.applyDefaults()
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = DefaultTickInterval
	}
	if c.Scheduler.LogLevel == "" {
		c.Scheduler.LogLevel = "info"
	}
	if c.Scheduler.MaxBackoff == 0 {
		c.Scheduler.MaxBackoff = max(DefaultMaxBackoff, c.Scheduler.TickInterval)
	}
	if c.DefaultMaxLoad == 0 {
		c.DefaultMaxLoad = DefaultMaxLoad
	}
	for i := range c.Agents {
		if c.Agents[i].MaxLoad == 0 {
			c.Agents[i].MaxLoad = c.DefaultMaxLoad
		}
		if c.Agents[i].Status == "" {
			c.Agents[i].Status = string(models.AgentAvailable)
		}
		if len(c.Agents[i].Languages) == 0 {
			c.Agents[i].Languages = []string{models.DefaultLanguage}
		}
	}
	if c.Notify.BaseURL == "" {
		c.Notify.BaseURL = DefaultBaseURL
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = DefaultDigestSchedule
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "sqlite"
	}
	if c.Journal.Driver == "mysql" {
		if c.Journal.Host == "" {
			c.Journal.Host = "127.0.0.1"
		}
		if c.Journal.Port == 0 {
			c.Journal.Port = 3306
		}
		if c.Journal.User == "" {
			c.Journal.User = "root"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		errs = append(errs, "classifier.confidence_threshold must be within [0, 1]")
	}
	if c.Classifier.LatencyThreshold < 0 {
		errs = append(errs, "classifier.latency_threshold must not be negative")
	}
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tick_interval must be positive")
	}
	if c.Scheduler.MaxBackoff < c.Scheduler.TickInterval {
		errs = append(errs, "scheduler.max_backoff must be at least scheduler.tick_interval")
	}
	switch strings.ToLower(c.Scheduler.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("scheduler.log_level %q is not one of debug, info, warn, error", c.Scheduler.LogLevel))
	}
	if c.DefaultMaxLoad < 1 {
		errs = append(errs, "default_max_load must be positive")
	}
	for _, w := range []float64{c.Matcher.ExpertiseWeight, c.Matcher.LanguageWeight, c.Matcher.PriorityWeight, c.Matcher.FreeSlotWeight} {
		if w < 0 {
			errs = append(errs, "matcher weights must not be negative")
			break
		}
	}
	for reason := range c.Matcher.ReasonTags {
		if _, err := models.ParseReason(reason); err != nil {
			errs = append(errs, fmt.Sprintf("matcher.reason_tags: unknown reason %q", reason))
		}
	}
	if len(c.Agents) == 0 {
		errs = append(errs, "at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d].id is required", i))
		} else if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("agents[%d].id %q is duplicated", i, a.ID))
		}
		seen[a.ID] = true
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("agents[%d].name is required", i))
		}
		if a.MaxLoad < 1 {
			errs = append(errs, fmt.Sprintf("agents[%d].max_load must be positive", i))
		}
		if _, err := models.ParseAgentStatus(a.Status); err != nil {
			errs = append(errs, fmt.Sprintf("agents[%d].status %q is not valid", i, a.Status))
		}
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required with a bot token")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required with a bot token")
	}
	if c.Digest.Enabled {
		if _, err := ParseSchedule(c.Digest.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("digest.schedule %q: %v", c.Digest.Schedule, err))
		}
	}
	switch c.Journal.Driver {
	case "sqlite", "none":
	case "mysql":
		if c.Journal.DSN == "" && c.Journal.Database == "" {
			errs = append(errs, "journal.database is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("journal.driver %q is not supported", c.Journal.Driver))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be within 1-65535")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AgentModels converts the roster into registry-ready Agent records.
func (c *Config) AgentModels(now time.Time) []models.Agent {
	out := make([]models.Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		out = append(out, models.Agent{
			ID:           a.ID,
			Name:         a.Name,
			Email:        a.Email,
			Phone:        a.Phone,
			Expertise:    append([]string(nil), a.Expertise...),
			Languages:    append([]string(nil), a.Languages...),
			Status:       models.AgentStatus(a.Status),
			MaxLoad:      a.MaxLoad,
			LastActivity: now,
		})
	}
	return out
}
