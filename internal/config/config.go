package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models nexus.yml. It is loaded once at startup and passed down
// as a value; components never re-read the file.
type Config struct {
	Project struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"project"`
	Budgets struct {
		HourlyWarning  float64 `yaml:"hourly_warning"`
		HourlyHardCap  float64 `yaml:"hourly_hard_cap"`
		SessionWarning float64 `yaml:"session_warning"`
		SessionHardCap float64 `yaml:"session_hard_cap"`
		MonthlyWarning float64 `yaml:"monthly_warning"`
		MonthlyHardCap float64 `yaml:"monthly_hard_cap"`
	} `yaml:"budgets"`
	Pricing map[string]ModelPrice `yaml:"pricing"`
	Roster  []RosterAgent         `yaml:"roster"`
	Server  struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Webhooks []WebhookTarget `yaml:"webhooks"`
}

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

type RosterAgent struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	Model     string `yaml:"model"`
	ReportsTo string `yaml:"reports_to"`
}

type WebhookTarget struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with nx init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config.project.name is required")
	}
	b := c.Budgets
	for name, v := range map[string]float64{
		"hourly_warning":   b.HourlyWarning,
		"hourly_hard_cap":  b.HourlyHardCap,
		"session_warning":  b.SessionWarning,
		"session_hard_cap": b.SessionHardCap,
		"monthly_warning":  b.MonthlyWarning,
		"monthly_hard_cap": b.MonthlyHardCap,
	} {
		if v < 0 {
			return fmt.Errorf("config.budgets.%s must not be negative", name)
		}
	}
	if b.HourlyWarning > b.HourlyHardCap {
		return fmt.Errorf("config.budgets.hourly_warning exceeds hourly_hard_cap")
	}
	if b.SessionWarning > b.SessionHardCap {
		return fmt.Errorf("config.budgets.session_warning exceeds session_hard_cap")
	}
	if b.MonthlyWarning > b.MonthlyHardCap {
		return fmt.Errorf("config.budgets.monthly_warning exceeds monthly_hard_cap")
	}
	for model, p := range c.Pricing {
		if model == "" {
			return fmt.Errorf("config.pricing contains empty model name")
		}
		if p.InputPerMTok < 0 || p.OutputPerMTok < 0 {
			return fmt.Errorf("config.pricing.%s has negative rate", model)
		}
	}
	seen := map[string]bool{}
	for _, a := range c.Roster {
		if a.ID == "" {
			return fmt.Errorf("config.roster contains agent with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("config.roster has duplicate agent id %s", a.ID)
		}
		seen[a.ID] = true
	}
	for _, a := range c.Roster {
		if a.ReportsTo != "" && !seen[a.ReportsTo] {
			return fmt.Errorf("roster agent %s reports to unknown agent %s", a.ID, a.ReportsTo)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "nexus.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectName string) *Config {
	var cfg Config
	cfg.Project.Name = projectName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  name: %s
  path: .

budgets:
  hourly_warning: 1.00
  hourly_hard_cap: 2.50
  session_warning: 5.00
  session_hard_cap: 15.00
  monthly_warning: 160.00
  monthly_hard_cap: 250.00

pricing:
  opus:
    input_per_mtok: 15.00
    output_per_mtok: 75.00
  sonnet:
    input_per_mtok: 3.00
    output_per_mtok: 15.00
  haiku:
    input_per_mtok: 0.25
    output_per_mtok: 1.25
  gemini-2.0-flash:
    input_per_mtok: 0.10
    output_per_mtok: 0.40
  gemini-2.5-pro:
    input_per_mtok: 1.25
    output_per_mtok: 10.00
  o3:
    input_per_mtok: 10.00
    output_per_mtok: 40.00
  gpt-4o:
    input_per_mtok: 2.50
    output_per_mtok: 10.00
  claude-code:opus:
    input_per_mtok: 0
    output_per_mtok: 0
  claude-code:sonnet:
    input_per_mtok: 0
    output_per_mtok: 0
  claude-code:haiku:
    input_per_mtok: 0
    output_per_mtok: 0

roster:
  - id: overseer
    name: Overseer
    role: manager
    model: opus
  - id: builder-1
    name: Builder One
    role: engineer
    model: sonnet
    reports_to: overseer
  - id: builder-2
    name: Builder Two
    role: engineer
    model: sonnet
    reports_to: overseer

server:
  addr: 127.0.0.1:4400

webhooks: []
`
