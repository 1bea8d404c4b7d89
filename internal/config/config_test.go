package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("parley")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Project.ID != "parley" {
		t.Fatalf("project id: %s", cfg.Project.ID)
	}
	if cfg.Outreach.SlackChannel != "#general" {
		t.Fatalf("slack channel: %s", cfg.Outreach.SlackChannel)
	}
	if !cfg.Outreach.StarterContacts {
		t.Fatal("starter contacts should default on")
	}
	if len(cfg.Agents) != 3 {
		t.Fatalf("expected 3 agent prompts, got %d", len(cfg.Agents))
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("myproject")))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.Project.ID != "myproject" {
		t.Fatalf("project id: %s", cfg.Project.ID)
	}
	if cfg.LLM.APIKeyEnv != "GEMINI_API_KEY" {
		t.Fatalf("api key env: %s", cfg.LLM.APIKeyEnv)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing project id", func(c *Config) { c.Project.ID = "" }, "project.id"},
		{"missing sender", func(c *Config) { c.Outreach.EmailSender = "" }, "email_sender"},
		{"sender not an address", func(c *Config) { c.Outreach.EmailSender = "not-an-email" }, "email address"},
		{"missing organizer", func(c *Config) { c.Outreach.MeetingOrganizer = "" }, "meeting_organizer"},
		{"bad slack channel", func(c *Config) { c.Outreach.SlackChannel = "general" }, "start with #"},
		{"empty agent prompt", func(c *Config) { c.Agents["sustainability"] = AgentConfig{} }, "empty prompt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("parley")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Project.ID != "parley" {
		t.Fatalf("expected default config, got project %q", cfg.Project.ID)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestLoadFromWorkspaceFile(t *testing.T) {
	workspace := t.TempDir()
	body := `project:
  id: demo
outreach:
  email_sender: sender@example.ca
  meeting_organizer: organizer@example.ca
  slack_channel: "#outreach"
integrations:
  geo_service_url: "http://localhost:8000"
`
	if err := os.WriteFile(filepath.Join(workspace, "parley.yml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.ID != "demo" || cfg.Outreach.SlackChannel != "#outreach" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Integrations.GeoServiceURL != "http://localhost:8000" {
		t.Fatalf("geo url: %s", cfg.Integrations.GeoServiceURL)
	}
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	if _, err := FromYAML([]byte("{not yaml")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromFileReadsAnyPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidate.yml")
	body := `project:
  id: demo
outreach:
  email_sender: sender@example.ca
  meeting_organizer: organizer@example.ca
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if cfg.Project.ID != "demo" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected read error for missing file")
	}
}
