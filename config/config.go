// Package config provides YAML configuration for the pollster binary.
//
// Example configuration:
//
//	port: 8080
//	default_delay: 5s
//
//	metrics:
//	  enabled: true
//	  service_name: pollster
//
//	resources:
//	  - name: users
//	    url: https://api.example.com/users
//	    action: query
//	    delay: 10s
//	    params:
//	      page: 1
//	    extract: data.users
//
//	grids:
//	  - name: health
//	    url_template: "https://{{.env}}.example.com/health"
//	    dimensions:
//	      env: [prod, staging]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/internal/httpresource"
)

const (
	defaultPort = 8080

	// minDelay keeps a misconfigured resource from hammering its endpoint.
	minDelay   = 100 * time.Millisecond
	maxDelay   = time.Hour
	minTimeout = time.Second
)

// Config is the root configuration structure.
//
// It maps directly to the YAML file. Use [Load] or [Parse] to create one.
type Config struct {
	// Title names this pollster instance in logs.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// DefaultDelay is the delay for resources that set none. Defaults to 5s.
	DefaultDelay Duration `yaml:"default_delay"`

	// Metrics configures OpenTelemetry export.
	Metrics MetricsConfig `yaml:"metrics"`

	// Resources defines individually polled endpoints.
	Resources []ResourceConfig `yaml:"resources"`

	// Grids defines resource families expanded via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// MetricsConfig controls the /metrics endpoint and OTLP export.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OtlpEndpoint string `yaml:"otlp_endpoint"`
	OtlpInsecure bool   `yaml:"otlp_insecure"`
}

// ResourceConfig defines a single polled resource.
type ResourceConfig struct {
	// Name identifies the resource. Names must be unique; the registry
	// shares one poller per name.
	Name string `yaml:"name"`

	// URL is the endpoint. Supports ${VAR} and ${VAR:-default}.
	URL string `yaml:"url"`

	// Action is the poller action (query, get, save, remove, delete, head).
	// Defaults to query.
	Action string `yaml:"action"`

	// Delay is the wait between the end of one fetch and the next.
	// Defaults to default_delay. Must be between 100ms and 1h.
	Delay Duration `yaml:"delay"`

	// Params are passed to every fetch.
	Params map[string]any `yaml:"params"`

	// Headers are sent with every request. Values support env expansion.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Extract selects part of a JSON response in dot notation
	// ("data.users.0.name").
	Extract string `yaml:"extract"`

	// RescheduleOnError keeps polling after a failed fetch.
	RescheduleOnError bool `yaml:"reschedule_on_error"`
}

// GridConfig defines resources that expand via cartesian product.
//
// With dimensions {env: [prod, staging], svc: [api, web]} the grid expands
// to four resources named "<name> prod api", "<name> prod web" and so on.
type GridConfig struct {
	Name string `yaml:"name"`

	// URLTemplate is a Go template; dimension keys are available as
	// {{.env}}, {{.svc}}. Supports env expansion.
	URLTemplate string `yaml:"url_template"`

	Dimensions map[string][]string `yaml:"dimensions"`

	Action            string            `yaml:"action"`
	Delay             Duration          `yaml:"delay"`
	Params            map[string]any    `yaml:"params"`
	Headers           map[string]string `yaml:"headers"`
	Timeout           Duration          `yaml:"timeout"`
	Extract           string            `yaml:"extract"`
	RescheduleOnError bool              `yaml:"reschedule_on_error"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URLs, URL templates, header values
// and the OTLP endpoint. Defaults are applied for Port (8080) and
// DefaultDelay (5s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DefaultDelay == 0 {
		cfg.DefaultDelay = Duration(pollster.DefaultDelay)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) expandAndValidate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if err := validateDelay(c.DefaultDelay, "default_delay"); err != nil {
		return err
	}

	if c.Metrics.OtlpEndpoint != "" {
		expanded, err := expandEnvVars(c.Metrics.OtlpEndpoint)
		if err != nil {
			return fmt.Errorf("metrics.otlp_endpoint: %w", err)
		}
		c.Metrics.OtlpEndpoint = expanded
	}

	seen := make(map[string]struct{}, len(c.Resources))
	for i := range c.Resources {
		rc := &c.Resources[i]

		if rc.Name == "" {
			return fmt.Errorf("resources[%d]: name is required", i)
		}
		where := fmt.Sprintf("resources[%d] (%s)", i, rc.Name)

		if _, dup := seen[rc.Name]; dup {
			return fmt.Errorf("%s: duplicate resource name", where)
		}
		seen[rc.Name] = struct{}{}

		if rc.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		expanded, err := expandEnvVars(rc.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", where, err)
		}
		rc.URL = expanded
		if err := validateURL(rc.URL, where); err != nil {
			return err
		}

		if err := validateCommon(where, rc.Action, rc.Delay, rc.Timeout, rc.Headers); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", where)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", where, err)
		}
		g.URLTemplate = expanded

		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", where, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			values := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := values[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				values[v] = struct{}{}
			}
		}

		if err := validateCommon(where, g.Action, g.Delay, g.Timeout, g.Headers); err != nil {
			return err
		}
	}

	if len(c.Resources) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one resource or grid must be defined")
	}

	return nil
}

// validateCommon checks the fields shared by resources and grids and
// expands env vars in header values.
func validateCommon(where, action string, delay, timeout Duration, headers map[string]string) error {
	if action != "" && !httpresource.KnownAction(action) {
		return fmt.Errorf("%s: unknown action %q (expected query, get, save, remove, delete or head)", where, action)
	}

	if delay != 0 {
		if err := validateDelay(delay, where+": delay"); err != nil {
			return err
		}
	}

	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", where, timeout.Duration())
		}
		if timeout.Duration() < minTimeout {
			return fmt.Errorf("%s: timeout must be at least %s if specified, got %s", where, minTimeout, timeout.Duration())
		}
	}

	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}

	return nil
}

func validateDelay(d Duration, field string) error {
	if d.Duration() < minDelay {
		return fmt.Errorf("%s must be at least %s, got %s", field, minDelay, d.Duration())
	}
	if d.Duration() > maxDelay {
		return fmt.Errorf("%s must not exceed %s, got %s", field, maxDelay, d.Duration())
	}
	return nil
}

func validateURL(raw, where string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", where, err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (http:// or https://)", where)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", where, parsedURL.Scheme)
	}
	return nil
}
