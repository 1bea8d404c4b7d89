package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models parley.yml.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`

	Outreach struct {
		EmailSender      string `yaml:"email_sender"`
		MeetingOrganizer string `yaml:"meeting_organizer"`
		SlackChannel     string `yaml:"slack_channel"`
		StarterContacts  bool   `yaml:"starter_contacts"`
	} `yaml:"outreach"`

	Integrations struct {
		EmailRelayURL   string `yaml:"email_relay_url"`
		CalendarAPIBase string `yaml:"calendar_api_base"`
		CalendarToken   string `yaml:"calendar_token"`
		SlackWebhookURL string `yaml:"slack_webhook_url"`
		GeoServiceURL   string `yaml:"geo_service_url"`
	} `yaml:"integrations"`

	LLM struct {
		Model     string `yaml:"model"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"llm"`

	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`

	Agents map[string]AgentConfig `yaml:"agents"`
}

// AgentConfig holds the per-agent system prompt.
type AgentConfig struct {
	Prompt string `yaml:"prompt"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run with defaults or create one from the template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("parley"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Outreach.EmailSender == "" {
		return fmt.Errorf("config.outreach.email_sender is required")
	}
	if c.Outreach.MeetingOrganizer == "" {
		return fmt.Errorf("config.outreach.meeting_organizer is required")
	}
	if !strings.Contains(c.Outreach.EmailSender, "@") {
		return fmt.Errorf("config.outreach.email_sender must be an email address")
	}
	if !strings.Contains(c.Outreach.MeetingOrganizer, "@") {
		return fmt.Errorf("config.outreach.meeting_organizer must be an email address")
	}
	if c.Outreach.SlackChannel != "" && !strings.HasPrefix(c.Outreach.SlackChannel, "#") {
		return fmt.Errorf("config.outreach.slack_channel must start with #")
	}
	for name, agent := range c.Agents {
		if name == "" {
			return fmt.Errorf("config.agents contains empty agent name")
		}
		if strings.TrimSpace(agent.Prompt) == "" {
			return fmt.Errorf("agent %s has empty prompt", name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "parley.yml")
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, projectID)), &cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
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
  id: %s

outreach:
  email_sender: outreach@example.ca
  meeting_organizer: organizer@example.ca
  slack_channel: "#general"
  starter_contacts: true

integrations:
  # Leave blank to run with the in-process mock integrations.
  email_relay_url: ""
  calendar_api_base: ""
  calendar_token: ""
  slack_webhook_url: ""
  geo_service_url: ""

llm:
  model: gemini-1.5-flash
  api_key_env: GEMINI_API_KEY

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true

agents:
  sustainability:
    prompt: "You are an expert in sustainable land design that respects indigenous practices. Prioritize water systems, biodiversity, and cultural significance."
  indigenous:
    prompt: "You provide context on Indigenous land stewardship, consultation protocols, and treaty obligations. Be respectful and precise."
  proposal:
    prompt: "You manage proposal outreach workflows: stakeholders, consultation emails, and meeting scheduling."
`
