package config

import "path/filepath"

// Layout resolves every path devenv reads or writes below its root directory.
type Layout struct {
	// Root is the directory holding dev-env-config/, apps/, logfiles/ and the state files.
	Root string
}

// NewLayout returns a Layout rooted at an absolute version of root.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: abs}, nil
}

// ConfigDir is the clone of the environment configuration repository.
func (l Layout) ConfigDir() string { return filepath.Join(l.Root, "dev-env-config") }

// EnvironmentFile is the environment configuration document.
func (l Layout) EnvironmentFile() string { return filepath.Join(l.ConfigDir(), "configuration.yml") }

// ContextFile stores the configuration repository URL.
func (l Layout) ContextFile() string { return filepath.Join(l.Root, ".dev-env-context") }

// AppsDir holds the application checkouts.
func (l Layout) AppsDir() string { return filepath.Join(l.Root, "apps") }

// AppDir is the checkout of app.
func (l Layout) AppDir(app string) string { return filepath.Join(l.AppsDir(), app) }

// AppConfigFile is the per-application configuration document.
func (l Layout) AppConfigFile(app string) string {
	return filepath.Join(l.AppDir(app), "configuration.yml")
}

// FragmentsDir holds an application's compose fragments and provisioning payloads.
func (l Layout) FragmentsDir(app string) string { return filepath.Join(l.AppDir(app), "fragments") }

// RootFragment is always the first compose fragment so relative paths resolve from apps/.
func (l Layout) RootFragment() string { return filepath.Join(l.AppsDir(), "root-compose-fragment.yml") }

// CommodityFragment is the compose fragment of a commodity.
func (l Layout) CommodityFragment(commodity string) string {
	return filepath.Join(l.Root, "scripts", "docker", commodity, "compose-fragment.yml")
}

// FileList is the compose fragment list handed to the compose tool.
func (l Layout) FileList() string { return filepath.Join(l.Root, ".docker-compose-file-list") }

// CommoditiesFile is the persisted commodity provisioning status table.
func (l Layout) CommoditiesFile() string { return filepath.Join(l.Root, ".commodities.yml") }

// CustomProvisionFile records applications whose one-time script has run.
func (l Layout) CustomProvisionFile() string { return filepath.Join(l.Root, ".custom_provision.yml") }

// UpdateCheckFile records the day the operator declined an update.
func (l Layout) UpdateCheckFile() string { return filepath.Join(l.Root, ".update-check-context") }

// EnvFiles lists optional .env files merged into the compose environment.
func (l Layout) EnvFiles() []string {
	return []string{filepath.Join(l.Root, ".env"), filepath.Join(l.ConfigDir(), ".env")}
}

// LogDir holds the operation logs.
func (l Layout) LogDir() string { return filepath.Join(l.Root, "logfiles") }

// LogFile is an operation log such as containerstart.log.
func (l Layout) LogFile(name string) string { return filepath.Join(l.LogDir(), name) }
