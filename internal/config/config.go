// Package config contains the loaders and strongly typed model for the environment
// configuration (dev-env-config/configuration.yml) and the per-application
// configuration (apps/<name>/configuration.yml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when the environment configuration does not exist yet.
var ErrNotFound = errors.New("dev-env-config not found")

// NativeHealthcheck is the healthcheck_cmd value that selects the container
// runtime's own health status instead of a custom command.
const NativeHealthcheck = "docker"

// Environment is the top-level environment configuration.
type Environment struct {
	// Applications maps application name to its declaration.
	Applications map[string]Application `yaml:"applications"`
	// PostUpMessage is printed verbatim after a successful start.
	PostUpMessage string `yaml:"post-up-message,omitempty"`

	order []string
}

// Application declares one application of the environment.
type Application struct {
	// Repo is the git URL of the application; "none" marks a local-only app.
	Repo string `yaml:"repo,omitempty"`
	// Ref is the desired branch or tag.
	Ref string `yaml:"ref,omitempty"`
	// Branch is the legacy spelling of Ref.
	Branch string `yaml:"branch,omitempty"`
	// Variant selects apps/<name>/fragments/compose-fragment.<variant>.yml.
	Variant string `yaml:"variant,omitempty"`
	// Options tunes individual composed services of the application.
	Options []Option `yaml:"options,omitempty"`
}

// Option tunes one composed service.
type Option struct {
	// ComposeServiceName is the service the option applies to.
	ComposeServiceName string `yaml:"compose-service-name"`
	// AutoStart disables starting the service when explicitly false.
	AutoStart *bool `yaml:"auto-start,omitempty"`
}

// AutoStarts reports whether the service should be started; the default is true.
func (o Option) AutoStarts() bool {
	return o.AutoStart == nil || *o.AutoStart
}

// LocalOnly reports whether the application has no remote repository.
func (a Application) LocalOnly() bool {
	return strings.TrimSpace(a.Repo) == "none"
}

// RequiredRef returns the configured ref, falling back to branch.
func (a Application) RequiredRef() string {
	if strings.TrimSpace(a.Ref) != "" {
		return strings.TrimSpace(a.Ref)
	}
	return strings.TrimSpace(a.Branch)
}

// UnmarshalYAML decodes the document and remembers the order in which applications
// were declared, since start order and fragment order follow it.
func (e *Environment) UnmarshalYAML(node *yaml.Node) error {
	type plain Environment
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = Environment(raw)
	e.order = nil

	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "applications" {
			continue
		}
		apps := node.Content[i+1]
		if apps.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(apps.Content); j += 2 {
			e.order = append(e.order, apps.Content[j].Value)
		}
	}
	return nil
}

// AppNames returns the application names in declaration order.
func (e *Environment) AppNames() []string {
	if e == nil {
		return nil
	}
	if len(e.order) == len(e.Applications) {
		return append([]string(nil), e.order...)
	}
	// Built in code rather than decoded: fall back to any stable order.
	names := make([]string, 0, len(e.Applications))
	seen := make(map[string]struct{}, len(e.Applications))
	for _, n := range e.order {
		if _, ok := e.Applications[n]; ok {
			names = append(names, n)
			seen[n] = struct{}{}
		}
	}
	rest := make([]string, 0)
	for n := range e.Applications {
		if _, ok := seen[n]; !ok {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// SetOrder overrides the declaration order; used when building configs in code.
func (e *Environment) SetOrder(names ...string) {
	e.order = append([]string(nil), names...)
}

// AppConfig is the optional per-application configuration.
type AppConfig struct {
	// Commodities lists the shared infrastructure the application needs.
	Commodities []string `yaml:"commodities,omitempty"`
	// ExpensiveStartup lists services that need individual health tracking.
	ExpensiveStartup []ExpensiveService `yaml:"expensive_startup,omitempty"`
}

// Requires reports whether the application declares commodity.
func (c *AppConfig) Requires(commodity string) bool {
	if c == nil {
		return false
	}
	for _, name := range c.Commodities {
		if name == commodity {
			return true
		}
	}
	return false
}

// ExpensiveService declares one expensive-to-start composed service.
type ExpensiveService struct {
	// ComposeService is the composed service (and container) name.
	ComposeService string `yaml:"compose_service"`
	// HealthcheckCmd is "docker" or a command run inside the container.
	HealthcheckCmd string `yaml:"healthcheck_cmd"`
	// WaitUntilHealthy lists services that must be healthy before this one starts.
	WaitUntilHealthy []Dependency `yaml:"wait_until_healthy,omitempty"`
}

// Dependency names a service and how to check its health.
type Dependency struct {
	// ComposeService is the dependency's service name.
	ComposeService string `yaml:"compose_service"`
	// HealthcheckCmd is "docker" or a command run inside the container.
	HealthcheckCmd string `yaml:"healthcheck_cmd"`
}

// LoadEnvironment reads the environment configuration of layout.
func LoadEnvironment(layout Layout) (*Environment, error) {
	path := layout.EnvironmentFile()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Environment
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	if cfg.Applications == nil {
		cfg.Applications = map[string]Application{}
	}
	return &cfg, nil
}

// LoadAppConfig reads apps/<app>/configuration.yml. A missing or empty file yields
// (nil, nil): such an application simply contributes nothing.
func LoadAppConfig(layout Layout, app string) (*AppConfig, error) {
	path := layout.AppConfigFile(app)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read app config %q: %w", path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse app config %q: %w", path, err)
	}
	return &cfg, nil
}

// LoadAppConfigs loads the configuration of every declared application. Applications
// without a configuration file are absent from the result.
func LoadAppConfigs(layout Layout, envCfg *Environment) (map[string]*AppConfig, error) {
	out := make(map[string]*AppConfig)
	for _, name := range envCfg.AppNames() {
		cfg, err := LoadAppConfig(layout, name)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			out[name] = cfg
		}
	}
	return out, nil
}
