package app

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed settings.schema.json
var settingsSchemaJSON string

// Settings is the optional YAML settings file. Command line flags take
// precedence over every value set here.
type Settings struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Engine struct {
		ShareVisited bool `yaml:"share_visited"`
		MaxDepth     int  `yaml:"max_depth"`
		ExprBudgetMs int  `yaml:"expr_budget_ms"`
	} `yaml:"engine"`
	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`
	Serve struct {
		Port int `yaml:"port"`
	} `yaml:"serve"`
	HTTP struct {
		TimeoutMs          int  `yaml:"timeout_ms"`
		InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	} `yaml:"http"`
	// Integrations holds per-kind credentials and defaults, keyed by node
	// kind, e.g. integrations.text_generator.api_key.
	Integrations map[string]map[string]string `yaml:"integrations"`
}

// Integration returns the settings section for a node kind. It never
// returns nil.
func (s *Settings) Integration(kind string) map[string]string {
	if s == nil || s.Integrations[kind] == nil {
		return map[string]string{}
	}
	return s.Integrations[kind]
}

// LoadSettings reads, validates and decodes a settings file.
func LoadSettings(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return ParseSettings(b)
}

// ParseSettings validates a settings document against the settings schema
// and decodes it.
func ParseSettings(b []byte) (*Settings, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid settings yaml: %w", err)
	}
	if doc == nil {
		return &Settings{}, nil
	}

	// The validator works on JSON-shaped values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("settings cannot be represented as json: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return nil, fmt.Errorf("settings cannot be represented as json: %w", err)
	}
	schema, err := settingsSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

func settingsSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("settings.schema.json", strings.NewReader(settingsSchemaJSON)); err != nil {
		return nil, fmt.Errorf("settings schema: %w", err)
	}
	return c.Compile("settings.schema.json")
}

// apply fills the zero-valued fields of cfg from s.
func (s *Settings) apply(cfg *Config) {
	if s == nil {
		return
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = s.Log.Level
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = s.Log.Format
	}
	cfg.ShareVisited = cfg.ShareVisited || s.Engine.ShareVisited
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = s.Engine.MaxDepth
	}
	if cfg.ExprBudget == 0 && s.Engine.ExprBudgetMs > 0 {
		cfg.ExprBudget = time.Duration(s.Engine.ExprBudgetMs) * time.Millisecond
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = s.History.Path
	}
	if cfg.Port == 0 {
		cfg.Port = s.Serve.Port
	}
}
