package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/taskflow-agent/internal/governor"
	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/pkg/icron"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

// Config holds all application configuration.
// Values are resolved in order: defaults, the YAML file named by CONFIG_FILE,
// environment variables (including a .env file), then Options.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required to run the agent)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1024)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 30)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Agent Configuration:
// - AGENT_MAX_ITERATIONS: Planner calls per run (default: 7)
// - AGENT_PLANNER_TIMEOUT: Deadline for one planner call (default: 30s)
// - AGENT_MAX_CONSECUTIVE_FAILURES: Abort after this many failed steps in a row, 0 disables (default: 0)
// - AGENT_MAX_CONCURRENT_RUNS: Runs executing at once (default: 8)
//
// Governor Configuration:
// - RATE_LIMIT_REQUESTS: Agent requests per window (default: 3)
// - RATE_LIMIT_WINDOW: Sliding window length (default: 1m)
// - TOKEN_BUDGET_PER_DAY: Estimated tokens per user per day (default: 100000)
// - TOKEN_BUDGET_RESET: Cron expression for the budget roll-over (default: midnight)
// - GOVERNOR_PRUNE_SCHEDULE: Cron expression for dropping idle entries (default: @every 10m)
//
// Auth Configuration:
// - JWT_SECRET: HMAC secret for session tokens (required to serve)
// - JWT_EXPIRY: Token lifetime (default: 24h)
// - BCRYPT_COST: Password hashing cost (default: 12)
//
// System Configuration:
// - HTTP_ADDR: Listen address (default: :8080)
// - UI_ENABLED: Serve the web UI (default: false)
// - UI_STATIC_DIR: Web UI directory (default: /app/web)
// - DATA_DIR: Directory holding the SQLite database (default: /app/data)
// - LOG_LEVEL: debug, info, warn or error (default: info)
type Config struct {
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Agent    AgentConfig    `json:"agent" yaml:"agent"`
	Governor GovernorConfig `json:"governor" yaml:"governor"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	System   SystemConfig   `json:"system" yaml:"system"`
}

// LLMConfig holds the configuration for LLM client
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, Groq, etc.)
type LLMConfig struct {
	APIKey      string  `json:"-" yaml:"api_key"`
	APIURL      string  `json:"api_url" yaml:"api_url"`
	Model       string  `json:"model" yaml:"model"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Timeout     int     `json:"timeout" yaml:"timeout"`
	SiteURL     string  `json:"site_url" yaml:"site_url"`
	AppName     string  `json:"app_name" yaml:"app_name"`
}

// AgentConfig holds the configuration for the agent loop
type AgentConfig struct {
	MaxIterations          int           `json:"max_iterations" yaml:"max_iterations"`
	PlannerTimeout         time.Duration `json:"planner_timeout" yaml:"planner_timeout"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	MaxConcurrentRuns      int           `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

type GovernorConfig struct {
	RequestsPerWindow int           `json:"requests_per_window" yaml:"requests_per_window"`
	Window            time.Duration `json:"window" yaml:"window"`
	TokensPerDay      int           `json:"tokens_per_day" yaml:"tokens_per_day"`
	BudgetReset       string        `json:"budget_reset" yaml:"budget_reset"`
	PruneSchedule     string        `json:"prune_schedule" yaml:"prune_schedule"`
}

type AuthConfig struct {
	JWTSecret   string        `json:"-" yaml:"jwt_secret"`
	TokenExpiry time.Duration `json:"token_expiry" yaml:"token_expiry"`
	BcryptCost  int           `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

type HTTPConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	UIEnabled   bool   `json:"ui_enabled" yaml:"ui_enabled"`
	UIStaticDir string `json:"ui_static_dir" yaml:"ui_static_dir"`
}

type SystemConfig struct {
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DBPath is the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "taskflow.db")
}

// LLMClientConfig converts the LLM section for llm.NewClient.
func (c *Config) LLMClientConfig() *llm.Config {
	return &llm.Config{
		APIKey:      c.LLM.APIKey,
		APIURL:      c.LLM.APIURL,
		Model:       c.LLM.Model,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
		SiteURL:     c.LLM.SiteURL,
		AppName:     c.LLM.AppName,
	}
}

func (c *Config) GovernorLimits() governor.Config {
	return governor.Config{
		RequestsPerWindow: c.Governor.RequestsPerWindow,
		Window:            c.Governor.Window,
		TokensPerDay:      c.Governor.TokensPerDay,
		BudgetReset:       c.Governor.BudgetReset,
		PruneSchedule:     c.Governor.PruneSchedule,
	}
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if addr != "" {
			c.HTTP.Addr = addr
		}
	}
}

func WithDataDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.System.DataDir = dir
		}
	}
}

func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			APIURL:      "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     30,
		},
		Agent: AgentConfig{
			MaxIterations:     7,
			PlannerTimeout:    30 * time.Second,
			MaxConcurrentRuns: 8,
		},
		Governor: GovernorConfig{
			RequestsPerWindow: governor.DefaultRequestsPerWindow,
			Window:            governor.DefaultWindow,
			TokensPerDay:      governor.DefaultTokensPerDay,
			BudgetReset:       icron.DailyMidnight,
			PruneSchedule:     governor.DefaultPruneSchedule,
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
			BcryptCost:  12,
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			UIStaticDir: "/app/web",
		},
		System: SystemConfig{
			DataDir:  "/app/data",
			LogLevel: "info",
		},
	}
}

// NewFromEnv creates a new Config instance with values from the config file,
// environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := Defaults()
	if path := getEnvString("CONFIG_FILE", ""); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: model=%s addr=%s data_dir=%s rate=%d/%s budget=%d",
		config.LLM.Model, config.HTTP.Addr, config.System.DataDir,
		config.Governor.RequestsPerWindow, config.Governor.Window, config.Governor.TokensPerDay)
	return config, nil
}

// loadFile overlays YAML values onto c. Keys absent from the file keep
// their current value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKey = getEnvString("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.APIURL = getEnvString("LLM_API_URL", c.LLM.APIURL)
	c.LLM.Model = getEnvString("LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvInt("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.SiteURL = getEnvString("LLM_SITE_URL", c.LLM.SiteURL)
	c.LLM.AppName = getEnvString("LLM_APP_NAME", c.LLM.AppName)

	c.Agent.MaxIterations = getEnvInt("AGENT_MAX_ITERATIONS", c.Agent.MaxIterations)
	c.Agent.PlannerTimeout = getEnvDuration("AGENT_PLANNER_TIMEOUT", c.Agent.PlannerTimeout)
	c.Agent.MaxConsecutiveFailures = getEnvInt("AGENT_MAX_CONSECUTIVE_FAILURES", c.Agent.MaxConsecutiveFailures)
	c.Agent.MaxConcurrentRuns = getEnvInt("AGENT_MAX_CONCURRENT_RUNS", c.Agent.MaxConcurrentRuns)

	c.Governor.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", c.Governor.RequestsPerWindow)
	c.Governor.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.Governor.Window)
	c.Governor.TokensPerDay = getEnvInt("TOKEN_BUDGET_PER_DAY", c.Governor.TokensPerDay)
	c.Governor.BudgetReset = getEnvString("TOKEN_BUDGET_RESET", c.Governor.BudgetReset)
	c.Governor.PruneSchedule = getEnvString("GOVERNOR_PRUNE_SCHEDULE", c.Governor.PruneSchedule)

	c.Auth.JWTSecret = getEnvString("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenExpiry = getEnvDuration("JWT_EXPIRY", c.Auth.TokenExpiry)
	c.Auth.BcryptCost = getEnvInt("BCRYPT_COST", c.Auth.BcryptCost)

	c.HTTP.Addr = getEnvString("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.UIEnabled = getEnvBool("UI_ENABLED", c.HTTP.UIEnabled)
	c.HTTP.UIStaticDir = getEnvString("UI_STATIC_DIR", c.HTTP.UIStaticDir)

	c.System.DataDir = getEnvString("DATA_DIR", c.System.DataDir)
	c.System.LogLevel = getEnvString("LOG_LEVEL", c.System.LogLevel)
}

// validate checks the values every command relies on. Secrets are checked
// by the components that need them.
func (c *Config) validate() error {
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be at least 1")
	}
	if c.Agent.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("AGENT_MAX_CONSECUTIVE_FAILURES must not be negative")
	}
	if c.Agent.MaxConcurrentRuns < 1 {
		return fmt.Errorf("AGENT_MAX_CONCURRENT_RUNS must be at least 1")
	}
	if c.Governor.RequestsPerWindow < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Governor.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Governor.TokensPerDay < 1 {
		return fmt.Errorf("TOKEN_BUDGET_PER_DAY must be at least 1")
	}
	if _, err := icron.NewBoundary(c.Governor.BudgetReset); err != nil {
		return fmt.Errorf("invalid TOKEN_BUDGET_RESET: %w", err)
	}
	if _, err := icron.Parse(c.Governor.PruneSchedule); err != nil {
		return fmt.Errorf("invalid GOVERNOR_PRUNE_SCHEDULE: %w", err)
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
