// Package commodity maps applications to the shared infrastructure they need and
// provisions that infrastructure once per (application, commodity) pair.
package commodity

import (
	"fmt"
	"sort"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

// Logging is part of every environment regardless of application declarations.
const Logging = "logging"

// Resolution is the outcome of scanning application declarations.
type Resolution struct {
	// Commodities is the global commodity set, sorted.
	Commodities []string
	// ByApp lists each application's declared commodities in declaration order.
	ByApp map[string][]string
}

// Resolve unions the commodity declarations of every application in envCfg.
// Applications without a configuration contribute nothing.
func Resolve(envCfg *config.Environment, appCfgs map[string]*config.AppConfig) Resolution {
	set := map[string]struct{}{Logging: {}}
	byApp := map[string][]string{}

	if envCfg != nil {
		for _, app := range envCfg.AppNames() {
			cfg := appCfgs[app]
			if cfg == nil {
				continue
			}
			seen := map[string]struct{}{}
			for _, c := range cfg.Commodities {
				if _, dup := seen[c]; dup || c == "" {
					continue
				}
				seen[c] = struct{}{}
				set[c] = struct{}{}
				byApp[app] = append(byApp[app], c)
			}
		}
	}

	all := make([]string, 0, len(set))
	for c := range set {
		all = append(all, c)
	}
	sort.Strings(all)
	return Resolution{Commodities: all, ByApp: byApp}
}

// Merge folds res into the persisted status table: the global list is replaced,
// missing (app, commodity) pairs are added as not provisioned, and existing entries
// are never removed or changed.
func Merge(store *state.Store, res Resolution, printer *console.Printer) (*state.CommodityFile, error) {
	if printer == nil {
		printer = console.Discard()
	}
	table, existed, err := store.LoadCommodities()
	if err != nil {
		return nil, fmt.Errorf("load commodity table: %w", err)
	}
	if !existed {
		printer.Info("Did not find any .commodities file. Creating a new one.")
	}

	table.Commodities = append([]string{}, res.Commodities...)

	apps := make([]string, 0, len(res.ByApp))
	for app := range res.ByApp {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	for _, app := range apps {
		if table.Applications[app] == nil {
			table.Applications[app] = map[string]bool{}
		}
		for _, c := range res.ByApp[app] {
			if table.Has(app, c) {
				continue
			}
			table.Set(app, c, false)
			printer.Notice("Found a new commodity dependency from %s to %s", app, c)
		}
	}

	if err := store.SaveCommodities(table); err != nil {
		return nil, fmt.Errorf("save commodity table: %w", err)
	}
	return table, nil
}

// ContainerToCommodity maps a container name to the commodity it provides.
func ContainerToCommodity(container string) string {
	if container == "openldap" {
		return "auth"
	}
	return container
}
