package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
sip:
  accounts:
    - server: sip.example.com
      port: 5060
      username: "101"
      password: secret
      from_name: Front Desk
  extensions:
    personal: 102@slowcasting.com
    support: 103@slowcasting.com
stt:
  server_url: http://localhost:8178
  model_path: models/ggml-base.en.bin
  model_url: https://example.com/ggml-base.en.bin
profiles:
  reception:
    api_key: sk-test
    model_id: gpt-4o
    max_tokens: 1024
    temperature: 0.7
    welcome_text: "Hello, how can I help?"
    welcome_audio_path: welcome.wav
    instructions: "You are a phone assistant."
    tool_guidance: "Use transfers wisely. {extensions}"
    extensions:
      - name: personal
        number: "102"
        description: Caleb's line
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SIP.Accounts[0].Username != "101" {
		t.Errorf("unexpected account: %+v", cfg.SIP.Accounts[0])
	}
	if cfg.SIP.Extensions["personal"] != "102@slowcasting.com" {
		t.Errorf("unexpected extension map: %v", cfg.SIP.Extensions)
	}

	p, name, err := cfg.SelectProfile("reception")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "reception" || p.ModelID != "gpt-4o" {
		t.Errorf("unexpected profile: %s %+v", name, p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, ErrConfigurationInvalid) {
		t.Errorf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	yaml := `
sip:
  accounts:
    - server: sip.example.com
      username: "101"
profiles:
  reception:
    model_id: gpt-4o
`
	if _, err := Load(writeConfig(t, yaml)); !errors.Is(err, ErrConfigurationInvalid) {
		t.Errorf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestLoadRejectsNoSIPAccounts(t *testing.T) {
	yaml := `
profiles:
  reception:
    api_key: sk-test
`
	if _, err := Load(writeConfig(t, yaml)); !errors.Is(err, ErrConfigurationInvalid) {
		t.Errorf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestAccountIndexOutOfRange(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cfg.Account(5); !errors.Is(err, ErrConfigurationInvalid) {
		t.Errorf("expected ErrConfigurationInvalid, got %v", err)
	}
	if _, err := cfg.Account(0); err != nil {
		t.Errorf("unexpected error for valid index: %v", err)
	}
}

func TestSelectProfileFromEnv(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("BOT_PROFILE", "reception")
	_, name, err := cfg.SelectProfile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "reception" {
		t.Errorf("expected reception, got %s", name)
	}

	t.Setenv("BOT_PROFILE", "absent")
	if _, _, err := cfg.SelectProfile(""); !errors.Is(err, ErrConfigurationInvalid) {
		t.Errorf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestSelectProfileDefaultsToSoleProfile(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("BOT_PROFILE", "")
	_, name, err := cfg.SelectProfile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "reception" {
		t.Errorf("expected sole profile reception, got %s", name)
	}
}
