package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

type Config struct {
	Style     string   `mapstructure:"style"`
	Checks    string   `mapstructure:"checks"`
	Database  string   `mapstructure:"database"`
	ExtraArgs []string `mapstructure:"extra_args"`
	// Version is the clang tool version hint: a major version, an install
	// directory, or empty for whatever is on PATH.
	Version string `mapstructure:"version"`

	Files       FilesConfig      `mapstructure:"files"`
	LineFilter  LineFilterConfig `mapstructure:"line_filter"`
	Feedback    FeedbackConfig   `mapstructure:"feedback"`
	Concurrency int              `mapstructure:"concurrency"`
	// FailOn is the lowest severity that fails the run: note, warning or
	// error.
	FailOn string `mapstructure:"fail_on"`
	// ToolTimeoutSeconds bounds one tool invocation; 0 disables the bound.
	ToolTimeoutSeconds int `mapstructure:"tool_timeout_seconds"`

	// NoFormat / NoTidy switch a tool off entirely.
	NoFormat bool `mapstructure:"no_format"`
	NoTidy   bool `mapstructure:"no_tidy"`
}

type FilesConfig struct {
	Extensions []string `mapstructure:"extensions"`
	// Ignore holds glob patterns; a leading "!" re-includes matches.
	Ignore []string `mapstructure:"ignore"`
}

type LineFilterConfig struct {
	// Policy is one of all-lines, changed-files, changed-lines.
	Policy        string `mapstructure:"policy"`
	KeepFileLevel bool   `mapstructure:"keep_file_level"`
}

type FeedbackConfig struct {
	Annotations   bool `mapstructure:"annotations"`
	Review        bool `mapstructure:"review"`
	PassiveReview bool `mapstructure:"passive_review"`
	// ThreadComment is one of none, update, recreate.
	ThreadComment string `mapstructure:"thread_comment"`
	StepSummary   bool   `mapstructure:"step_summary"`
	LGTM          bool   `mapstructure:"lgtm"`
}

func Defaults() Config {
	return Config{
		Style:  "llvm",
		FailOn: "warning",
		Files: FilesConfig{
			Extensions: []string{"c", "h", "C", "H", "cpp", "hpp", "cc", "hh", "c++", "h++", "cxx", "hxx"},
		},
		LineFilter:  LineFilterConfig{Policy: "all-lines"},
		Feedback:    FeedbackConfig{Annotations: true, ThreadComment: "none", StepSummary: false},
		Concurrency: runtime.NumCPU(),
	}
}

// Load reads the config file, validates it against the embedded schema and
// merges it over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = ".clint.yaml"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := validateSchema(path, raw); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = runtime.NumCPU()
	}
	return cfg, nil
}

func validateSchema(path string, raw []byte) error {
	schema, err := jsonschema.CompileString("clint-config.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	// round-trip through JSON so the validator sees plain maps
	jsonRaw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", path, err)
	}
	var v any
	if err := json.Unmarshal(jsonRaw, &v); err != nil {
		return fmt.Errorf("normalize %s: %w", path, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%s failed schema validation: %w", path, err)
	}
	return nil
}

func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// CI carries the run context pulled from the environment.
type CI struct {
	Token     string
	Repo      string
	SHA       string
	EventName string
	PR        int
	Actions   bool
}

// FromEnv reads the Actions environment. The pull-request number comes from
// GITHUB_REF (refs/pull/N/merge) or the event payload.
func FromEnv() CI {
	ci := CI{
		Token:     os.Getenv("GITHUB_TOKEN"),
		Repo:      os.Getenv("GITHUB_REPOSITORY"),
		SHA:       os.Getenv("GITHUB_SHA"),
		EventName: os.Getenv("GITHUB_EVENT_NAME"),
		Actions:   os.Getenv("GITHUB_ACTIONS") == "true",
	}
	if ref := os.Getenv("GITHUB_REF"); strings.HasPrefix(ref, "refs/pull/") {
		parts := strings.Split(ref, "/")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[2]); err == nil {
				ci.PR = n
			}
		}
	}
	if ci.PR == 0 {
		ci.PR = prNumberFromEvent(os.Getenv("GITHUB_EVENT_PATH"))
	}
	return ci
}

func prNumberFromEvent(path string) int {
	if path == "" {
		return 0
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var payload struct {
		Number      int `json:"number"`
		PullRequest struct {
			Number int `json:"number"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0
	}
	if payload.PullRequest.Number != 0 {
		return payload.PullRequest.Number
	}
	return payload.Number
}
