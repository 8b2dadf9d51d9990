package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `json:"app" yaml:"app"`
	Gateways     map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers    map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory       MemoryConfig              `json:"memory" yaml:"memory"`
	Orchestrator OrchestratorConfig        `json:"orchestrator" yaml:"orchestrator"`
	Mail         MailConfig                `json:"mail" yaml:"mail"`
	Documents    DocumentsConfig           `json:"documents" yaml:"documents"`
	Policy       PolicyConfig              `json:"policy" yaml:"policy"`
	Scheduler    SchedulerConfig           `json:"scheduler" yaml:"scheduler"`
}

type AppConfig struct {
	Name       string `json:"name" yaml:"name"`
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`
	LogDir     string `json:"log_dir" yaml:"log_dir"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type OrchestratorConfig struct {
	// MaxConcurrent bounds running steps within one plan.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
	// Workers sizes the process-wide pool for blocking collaborator calls.
	Workers     int      `json:"workers" yaml:"workers"`
	StepTimeout Duration `json:"step_timeout" yaml:"step_timeout"`
}

type MailConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
}

type DocumentsConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	// Chrome enables PDF rendering through a headless browser.
	Chrome     bool   `json:"chrome" yaml:"chrome"`
	ChromePath string `json:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`
}

type PolicyConfig struct {
	DenyActions  []string `json:"deny_actions" yaml:"deny_actions"`
	DenyPatterns []string `json:"deny_patterns" yaml:"deny_patterns"`
}

type SchedulerConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	OverdueCron string `json:"overdue_cron" yaml:"overdue_cron"`
	DigestChat  string `json:"digest_chat" yaml:"digest_chat"`
}

// Duration reads "30s"-style strings from both YAML and JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns a configuration that runs without any file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "conduit"
	}
	if c.App.PromptsDir == "" {
		c.App.PromptsDir = "./prompts"
	}
	if c.App.LogDir == "" {
		c.App.LogDir = "./logs"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "./conduit.db"
	}
	if c.Orchestrator.MaxConcurrent <= 0 {
		c.Orchestrator.MaxConcurrent = 5
	}
	if c.Orchestrator.Workers <= 0 {
		c.Orchestrator.Workers = 10
	}
	if c.Orchestrator.StepTimeout.Duration <= 0 {
		c.Orchestrator.StepTimeout.Duration = 2 * time.Minute
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Documents.OutputDir == "" {
		c.Documents.OutputDir = "./documents"
	}
	if c.Scheduler.OverdueCron == "" {
		c.Scheduler.OverdueCron = "0 9 * * *"
	}
}

// Load reads a YAML or JSON file (chosen by extension), expands ${VAR}
// references, applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, &cfg)
	default:
		err = json.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults plus
// environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	cfg = &Config{}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv(getenv func(string) string) error {
	if key := getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p, ok := c.Providers["openai"]
		if !ok {
			p = ProviderConfig{Model: "gpt-4o", Enabled: true}
		}
		p.APIKey = key
		c.Providers["openai"] = p
	}

	for name, env := range map[string]string{
		"telegram": "CONDUIT_TELEGRAM_TOKEN",
		"discord":  "CONDUIT_DISCORD_TOKEN",
	} {
		token := getenv(env)
		if token == "" {
			continue
		}
		if c.Gateways == nil {
			c.Gateways = make(map[string]GatewayConfig)
		}
		c.Gateways[name] = GatewayConfig{Token: token, Enabled: true}
	}

	if pw := getenv("CONDUIT_SMTP_PASSWORD"); pw != "" {
		c.Mail.Password = pw
	}
	if raw := getenv("CONDUIT_MAX_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("CONDUIT_MAX_WORKERS must be a positive integer, got %q", raw)
		}
		c.Orchestrator.Workers = n
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// Gateway returns the named gateway config if it is enabled and has a token.
func (c *Config) Gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
