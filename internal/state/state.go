// Package state persists the side tables devenv keeps between runs: the commodity
// provisioning status table and the custom provisioning marker.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
)

const (
	// CommoditiesVersion is the schema tag of the commodity status file.
	CommoditiesVersion = "2"
	// CustomProvisionVersion is the schema tag of the custom provision marker file.
	CustomProvisionVersion = "1"
)

// CommodityFile is the persisted provisioning status table.
type CommodityFile struct {
	// Version is the schema tag.
	Version string `yaml:"version"`
	// Commodities is the last resolved global commodity list.
	Commodities []string `yaml:"commodities"`
	// Applications maps app -> commodity -> provisioned.
	Applications map[string]map[string]bool `yaml:"applications"`
}

// NewCommodityFile returns an empty table with the current version tag.
func NewCommodityFile() *CommodityFile {
	return &CommodityFile{
		Version:      CommoditiesVersion,
		Commodities:  []string{},
		Applications: map[string]map[string]bool{},
	}
}

// Provisioned reports the status of (app, commodity); missing entries are false.
func (f *CommodityFile) Provisioned(app, commodity string) bool {
	if f == nil {
		return false
	}
	return f.Applications[app][commodity]
}

// Has reports whether (app, commodity) has an entry.
func (f *CommodityFile) Has(app, commodity string) bool {
	if f == nil {
		return false
	}
	_, ok := f.Applications[app][commodity]
	return ok
}

// Set records the status of (app, commodity), creating the entry when missing.
func (f *CommodityFile) Set(app, commodity string, provisioned bool) {
	if f.Applications == nil {
		f.Applications = map[string]map[string]bool{}
	}
	if f.Applications[app] == nil {
		f.Applications[app] = map[string]bool{}
	}
	f.Applications[app][commodity] = provisioned
}

// CustomProvisionFile records applications whose one-time provision script has run.
type CustomProvisionFile struct {
	// Version is the schema tag.
	Version string `yaml:"version"`
	// Applications lists the applications already provisioned.
	Applications []string `yaml:"applications"`
}

// Store reads and writes the side tables below a layout root. Every access reads or
// writes the whole document; concurrent devenv processes are not supported.
type Store struct {
	layout config.Layout
	logger *slog.Logger
}

// NewStore constructs a Store for layout.
func NewStore(layout config.Layout, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{layout: layout, logger: logger}
}

// LoadCommodities reads the status table. The boolean reports whether the file
// existed; when it did not, an empty table is returned.
func (s *Store) LoadCommodities() (*CommodityFile, bool, error) {
	var f CommodityFile
	ok, err := readYAML(s.layout.CommoditiesFile(), &f)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return NewCommodityFile(), false, nil
	}
	if f.Version == "" {
		f.Version = CommoditiesVersion
	}
	if f.Applications == nil {
		f.Applications = map[string]map[string]bool{}
	}
	if f.Commodities == nil {
		f.Commodities = []string{}
	}
	return &f, true, nil
}

// SaveCommodities writes the status table atomically.
func (s *Store) SaveCommodities(f *CommodityFile) error {
	return writeYAMLAtomic(s.layout.CommoditiesFile(), f)
}

// CommodityProvisioned reports whether commodity was provisioned for app.
func (s *Store) CommodityProvisioned(app, commodity string) (bool, error) {
	f, _, err := s.LoadCommodities()
	if err != nil {
		return false, err
	}
	return f.Provisioned(app, commodity), nil
}

// SetCommodityProvisioned records the provisioning status of (app, commodity).
func (s *Store) SetCommodityProvisioned(app, commodity string, provisioned bool) error {
	f, _, err := s.LoadCommodities()
	if err != nil {
		return err
	}
	f.Set(app, commodity, provisioned)
	if err := s.SaveCommodities(f); err != nil {
		return err
	}
	s.logger.Debug("commodity status updated", "app", app, "commodity", commodity, "provisioned", provisioned)
	return nil
}

// LoadCustomProvision reads the custom provision marker; a missing file yields an
// empty marker and false.
func (s *Store) LoadCustomProvision() (*CustomProvisionFile, bool, error) {
	var f CustomProvisionFile
	ok, err := readYAML(s.layout.CustomProvisionFile(), &f)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &CustomProvisionFile{Version: CustomProvisionVersion, Applications: []string{}}, false, nil
	}
	if f.Applications == nil {
		f.Applications = []string{}
	}
	return &f, true, nil
}

// CustomProvisioned reports whether the one-time script of app has run.
func (s *Store) CustomProvisioned(app string) (bool, error) {
	f, _, err := s.LoadCustomProvision()
	if err != nil {
		return false, err
	}
	for _, name := range f.Applications {
		if name == app {
			return true, nil
		}
	}
	return false, nil
}

// SetCustomProvisioned appends app to the marker, creating the file when needed.
func (s *Store) SetCustomProvisioned(app string) error {
	f, _, err := s.LoadCustomProvision()
	if err != nil {
		return err
	}
	for _, name := range f.Applications {
		if name == app {
			return nil
		}
	}
	f.Applications = append(f.Applications, app)
	return writeYAMLAtomic(s.layout.CustomProvisionFile(), f)
}

// Reset removes every generated state file. Missing files are ignored.
func (s *Store) Reset() error {
	files := []string{
		s.layout.CommoditiesFile(),
		s.layout.CustomProvisionFile(),
		s.layout.FileList(),
		filepath.Join(s.layout.Root, ".db2_init.sql"),
		filepath.Join(s.layout.Root, ".postgres_init.sql"),
	}
	var errs []error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %q: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func readYAML(path string, out any) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("parse %q: %w", path, err)
	}
	return true, nil
}

// writeYAMLAtomic writes v next to path and renames it into place.
func writeYAMLAtomic(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}
