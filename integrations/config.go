package integrations

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KindGitHub  = "github"
	KindGitLab  = "gitlab"
	KindSentry  = "sentry"
	KindFigma   = "figma"
	KindSlack   = "slack"
	KindDiscord = "discord"
	KindZoom    = "zoom"
)

// passiveKinds are connected services that never contribute tasks.
var passiveKinds = map[string]bool{
	KindFigma:   true,
	KindSlack:   true,
	KindDiscord: true,
	KindZoom:    true,
}

// Config is the integrations file.
//
//	integrations:
//	  - kind: github
//	    repo: octo/hello
//	    token: ${GITHUB_TOKEN}
type Config struct {
	Integrations []Integration `yaml:"integrations"`
}

// Integration configures one connected service.
type Integration struct {
	Kind    string `yaml:"kind"`
	Token   string `yaml:"token,omitempty"`
	Repo    string `yaml:"repo,omitempty"`
	Project string `yaml:"project,omitempty"`
	Org     string `yaml:"org,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// LoadConfig reads and validates the integrations file at path. Tokens may
// reference environment variables.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read integrations: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates an integrations document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse integrations: %w", err)
	}
	for i := range cfg.Integrations {
		in := &cfg.Integrations[i]
		in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
		in.Token = os.ExpandEnv(in.Token)
		if err := in.validate(); err != nil {
			return Config{}, fmt.Errorf("integration %d: %w", i, err)
		}
	}
	return cfg, nil
}

func (in Integration) validate() error {
	switch in.Kind {
	case KindGitHub:
		if strings.Count(in.Repo, "/") != 1 {
			return fmt.Errorf("github needs repo as owner/name, got %q", in.Repo)
		}
	case KindGitLab:
		if in.Project == "" {
			return errors.New("gitlab needs a project")
		}
	case KindSentry:
		if in.Org == "" || in.Project == "" {
			return errors.New("sentry needs org and project")
		}
	default:
		if !passiveKinds[in.Kind] {
			return fmt.Errorf("unknown integration kind %q", in.Kind)
		}
	}
	return nil
}

// Providers builds a provider for every task-producing integration. Passive
// kinds are returned by name only.
func (c Config) Providers(hc *http.Client) (providers []Provider, passive []string) {
	for _, in := range c.Integrations {
		switch in.Kind {
		case KindGitHub:
			providers = append(providers, NewGitHub(in.Repo, in.Token, in.BaseURL, hc))
		case KindGitLab:
			providers = append(providers, NewGitLab(in.Project, in.Token, in.BaseURL, hc))
		case KindSentry:
			providers = append(providers, NewSentry(in.Org, in.Project, in.Token, in.BaseURL, hc))
		default:
			passive = append(passive, in.Kind)
		}
	}
	return providers, passive
}
