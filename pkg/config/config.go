// Package config loads and validates the process configuration: SIP account
// settings, STT model location, and per-profile conversation settings. The
// loaded Config is immutable by convention: it is read once at startup and
// passed by reference into constructors, never through a process-wide slot.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfigurationInvalid reports missing or out-of-range configuration.
// Fatal at startup.
var ErrConfigurationInvalid = errors.New("config: configuration invalid")

// SIPAccount is one registrable SIP extension.
type SIPAccount struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	FromName string `yaml:"from_name"`
}

// SMSConfig configures the optional SMS dispatch used by send_notification.
type SMSConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
}

// SIPConfig covers the telephony side: accounts, optional trunk, optional
// SMS, and the extension-alias to full-address map used by
// transfer_conversation.
type SIPConfig struct {
	Accounts   []SIPAccount      `yaml:"accounts"`
	Trunk      string            `yaml:"trunk,omitempty"`
	SMS        *SMSConfig        `yaml:"sms,omitempty"`
	Extensions map[string]string `yaml:"extensions"`
}

// STTConfig locates the recognizer model and the local inference server.
type STTConfig struct {
	ServerURL string `yaml:"server_url"`
	ModelPath string `yaml:"model_path"`
	ModelURL  string `yaml:"model_url"`
}

// ToolParameter mirrors the OpenAPI-style parameters block the LLM tool
// schema requires, as declared in configuration.
type ToolParameter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default,omitempty"`
}

// ToolSchema declares one tool the profile exposes to the model.
type ToolSchema struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Parameters  []ToolParameter `yaml:"parameters"`
}

// Extension is one transfer target listed in the profile, rendered into the
// "{extensions}" placeholder of the tool-guidance template.
type Extension struct {
	Name        string `yaml:"name"`
	Number      string `yaml:"number"`
	Description string `yaml:"description"`
}

// Profile is one named conversation profile.
type Profile struct {
	LLMEndpoint          string       `yaml:"llm_endpoint"`
	APIKey               string       `yaml:"api_key"`
	ModelID              string       `yaml:"model_id"`
	MaxTokens            int          `yaml:"max_tokens"`
	Temperature          float64      `yaml:"temperature"`
	WelcomeText          string       `yaml:"welcome_text"`
	WelcomeAudioPath     string       `yaml:"welcome_audio_path"`
	Instructions         string       `yaml:"instructions"`
	InstructionsAddendum string       `yaml:"instructions_addendum"`
	ToolGuidance         string       `yaml:"tool_guidance"`
	Tools                []ToolSchema `yaml:"tools"`
	Extensions           []Extension  `yaml:"extensions"`
}

// Config is the whole loaded configuration file.
type Config struct {
	SIP      SIPConfig          `yaml:"sip"`
	STT      STTConfig          `yaml:"stt"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfigurationInvalid, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfigurationInvalid, path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.SIP.Accounts) == 0 {
		return fmt.Errorf("%w: no sip accounts configured", ErrConfigurationInvalid)
	}
	for i, acc := range c.SIP.Accounts {
		if acc.Server == "" || acc.Username == "" {
			return fmt.Errorf("%w: sip account %d missing server or username", ErrConfigurationInvalid, i)
		}
	}
	if c.STT.ModelPath != "" && c.STT.ModelURL == "" {
		return fmt.Errorf("%w: stt model_path set without model_url", ErrConfigurationInvalid)
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles configured", ErrConfigurationInvalid)
	}
	for name, p := range c.Profiles {
		if p.APIKey == "" {
			return fmt.Errorf("%w: profile %q missing api_key", ErrConfigurationInvalid, name)
		}
	}
	return nil
}

// Account returns the SIP account at index, range-checked.
func (c *Config) Account(index int) (SIPAccount, error) {
	if index < 0 || index >= len(c.SIP.Accounts) {
		return SIPAccount{}, fmt.Errorf("%w: account index %d out of range [0,%d)", ErrConfigurationInvalid, index, len(c.SIP.Accounts))
	}
	return c.SIP.Accounts[index], nil
}

// SelectProfile resolves the active profile: name when non-empty, otherwise
// the BOT_PROFILE environment variable, otherwise the sole configured
// profile if there is exactly one.
func (c *Config) SelectProfile(name string) (Profile, string, error) {
	if name == "" {
		name = os.Getenv("BOT_PROFILE")
	}
	if name == "" {
		if len(c.Profiles) == 1 {
			for n, p := range c.Profiles {
				return p, n, nil
			}
		}
		return Profile{}, "", fmt.Errorf("%w: no profile named and BOT_PROFILE unset", ErrConfigurationInvalid)
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, "", fmt.Errorf("%w: unknown profile %q", ErrConfigurationInvalid, name)
	}
	return p, name, nil
}
