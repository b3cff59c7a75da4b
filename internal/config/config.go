package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	DefaultFragmentBudget = 1800
	defaultBudgetHeadroom = 100
	minFragmentBudget     = 200
)

type Config struct {
	BaseURL string `yaml:"base_url"`
	Origin  string `yaml:"origin"`

	FragmentBudget int    `yaml:"fragment_budget"`
	ContentBudget  int    `yaml:"content_budget"`
	Chunker        string `yaml:"chunker"`

	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`
	CategoriesPath  string `yaml:"categories_path"`
	TeamName        string `yaml:"team_name"`

	HTTPAddr string `yaml:"http_addr"`

	SlackBotToken   string   `yaml:"slack_bot_token"`
	SlackAppToken   string   `yaml:"slack_app_token"`
	ReportChannelID string   `yaml:"report_channel_id"`
	DigestSchedule  string   `yaml:"digest_schedule"`
	DigestApps      []string `yaml:"digest_apps"`

	TeamMembers []string `yaml:"team_members"`
	NudgeTime   string   `yaml:"nudge_time"`
	NudgeDays   []string `yaml:"nudge_days"`

	AnthropicAPIKey            string `yaml:"anthropic_api_key"`
	LLMModel                   string `yaml:"llm_model"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	MondayCutoffTime string `yaml:"monday_cutoff_time"`
	Timezone         string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.BaseURL, "STATUSLINK_BASE_URL")
	envOverrideAllowEmpty(&cfg.Origin, "STATUSLINK_ORIGIN")
	envOverrideInt(&cfg.FragmentBudget, "FRAGMENT_BUDGET")
	envOverrideInt(&cfg.ContentBudget, "CONTENT_BUDGET")
	envOverride(&cfg.Chunker, "CHUNKER")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.CategoriesPath, "CATEGORIES_PATH")
	envOverride(&cfg.TeamName, "TEAM_NAME")
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.MondayCutoffTime, "MONDAY_CUTOFF_TIME")
	envOverride(&cfg.Timezone, "TIMEZONE")

	envOverride(&cfg.NudgeTime, "NUDGE_TIME")

	if apps := os.Getenv("DIGEST_APPS"); apps != "" {
		cfg.DigestApps = splitList(apps)
	}
	if members := os.Getenv("TEAM_MEMBERS"); members != "" {
		cfg.TeamMembers = splitList(members)
	}
	if days := os.Getenv("NUDGE_DAYS"); days != "" {
		cfg.NudgeDays = splitList(days)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.FragmentBudget == 0 {
		cfg.FragmentBudget = DefaultFragmentBudget
	}
	if cfg.ContentBudget == 0 {
		cfg.ContentBudget = cfg.FragmentBudget - defaultBudgetHeadroom
	}
	if cfg.Chunker == "" {
		cfg.Chunker = "dom"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "My Team"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-5"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.MondayCutoffTime == "" {
		cfg.MondayCutoffTime = "12:00"
	}
	if cfg.NudgeTime == "" {
		cfg.NudgeTime = "17:00"
	}
	if len(cfg.NudgeDays) == 0 {
		cfg.NudgeDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.FragmentBudget < minFragmentBudget {
		log.Fatalf("invalid fragment_budget '%d': must be >= %d", cfg.FragmentBudget, minFragmentBudget)
	}
	if cfg.ContentBudget <= 0 || cfg.ContentBudget >= cfg.FragmentBudget {
		log.Fatalf("invalid content_budget '%d': must be between 1 and fragment_budget-1 (%d)", cfg.ContentBudget, cfg.FragmentBudget-1)
	}
	switch cfg.Chunker {
	case "dom", "regex":
	default:
		log.Fatalf("chunker must be 'dom' or 'regex', got '%s'", cfg.Chunker)
	}
	if _, _, err := ParseClock(cfg.MondayCutoffTime); err != nil {
		log.Fatalf("invalid monday_cutoff_time '%s': %v", cfg.MondayCutoffTime, err)
	}
	if _, _, err := ParseClock(cfg.NudgeTime); err != nil {
		log.Fatalf("invalid nudge_time '%s': %v", cfg.NudgeTime, err)
	}
	if _, err := ParseWeekdays(cfg.NudgeDays); err != nil {
		log.Fatalf("invalid nudge_days: %v", err)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.CategoriesPath != "" {
		if err := validateCategoriesPath(cfg.CategoriesPath); err != nil {
			log.Fatalf("invalid categories_path '%s': %v", cfg.CategoriesPath, err)
		}
	}

	return cfg
}

func defaultDBPath() string {
	home, err := homedir.Dir()
	if err != nil || home == "" {
		return "./statuslink.db"
	}
	return filepath.Join(home, ".statuslink", "statuslink.db")
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}

// RequireSlack reports which Slack settings are missing for the bot.
func (c Config) RequireSlack() error {
	var missing []string
	if c.SlackBotToken == "" {
		missing = append(missing, "slack_bot_token")
	}
	if c.SlackAppToken == "" {
		missing = append(missing, "slack_app_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required config not set (via config.yaml or env var): %s", strings.Join(missing, ", "))
	}
	return nil
}

func ParseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays maps day names (any case, "mon" style prefixes allowed) to
// weekdays, dropping duplicates.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	var out []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		day, ok := weekdays[name]
		if !ok && len(name) >= 3 {
			for full, d := range weekdays {
				if strings.HasPrefix(full, name) {
					day, ok = d, true
					break
				}
			}
		}
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", raw)
		}
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	return out, nil
}

func validateCategoriesPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}
	var c struct {
		Categories []struct {
			Name string   `yaml:"name"`
			Tags []string `yaml:"tags"`
		} `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse categories yaml: %w", err)
	}
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return errors.New("category " + strconv.Itoa(i+1) + " has no name")
		}
	}
	return nil
}
