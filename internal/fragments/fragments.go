// Package fragments selects the compose fragment of every application and writes
// the ordered fragment list that defines the composed topology.
package fragments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
)

// DefaultFragment is the variant-less fragment file name.
const DefaultFragment = "compose-fragment.yml"

// DefaultMissingPause keeps the "no valid fragment" warning visible.
const DefaultMissingPause = 10 * time.Second

var variantPattern = regexp.MustCompile(`^compose-fragment\.(.*?)\.yml$`)

// FragmentName returns the fragment file name for variant; empty means the default.
func FragmentName(variant string) string {
	if variant == "" {
		return DefaultFragment
	}
	return "compose-fragment." + variant + ".yml"
}

// Assembler builds the fragment list for an environment.
type Assembler struct {
	layout  config.Layout
	printer *console.Printer
	clock   clock.Clock

	// MissingPause is waited after warning about an application without fragments.
	MissingPause time.Duration
}

// NewAssembler constructs an Assembler for layout.
func NewAssembler(layout config.Layout, printer *console.Printer, clk clock.Clock) *Assembler {
	if printer == nil {
		printer = console.Discard()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Assembler{layout: layout, printer: printer, clock: clk, MissingPause: DefaultMissingPause}
}

// FindActiveVariants returns the selected variant of every application whose
// fragments directory holds a fragment matching its configured variant.
// Applications with no valid fragment are warned about, followed by a pause.
func (a *Assembler) FindActiveVariants(ctx context.Context, envCfg *config.Environment) (map[string]string, error) {
	variants := map[string]string{}
	for _, app := range envCfg.AppNames() {
		matches, err := filepath.Glob(filepath.Join(a.layout.FragmentsDir(app), "*compose-fragment*.yml"))
		if err != nil {
			return nil, fmt.Errorf("scan fragments of %s: %w", app, err)
		}
		sort.Strings(matches)

		valid := false
		for _, match := range matches {
			base := filepath.Base(match)
			if base == DefaultFragment {
				valid = true
				continue
			}
			if m := variantPattern.FindStringSubmatch(base); m != nil {
				if m[1] == envCfg.Applications[app].Variant {
					variants[app] = m[1]
					a.printer.Info("%s: Selected compose variant %q", app, m[1])
					valid = true
				}
				continue
			}
			a.printer.Warn("Unsupported fragment in %s: %s", app, base)
		}

		if !valid {
			a.printer.Error("Cannot find a valid compose fragment file in %s; no container will be created", app)
			a.printer.Warn("Continuing in %d seconds...", int(a.MissingPause/time.Second))
			if err := a.clock.Sleep(ctx, a.MissingPause); err != nil {
				return nil, err
			}
		}
	}
	return variants, nil
}

// Assemble returns the ordered fragment paths: the root fragment, one fragment per
// application, then one per commodity.
func (a *Assembler) Assemble(ctx context.Context, envCfg *config.Environment, commodities []string) ([]string, error) {
	variants, err := a.FindActiveVariants(ctx, envCfg)
	if err != nil {
		return nil, err
	}

	paths := []string{a.layout.RootFragment()}
	for _, app := range envCfg.AppNames() {
		dir := a.layout.FragmentsDir(app)
		candidates := []string{filepath.Join(dir, DefaultFragment)}
		if v, ok := variants[app]; ok {
			candidates = append([]string{filepath.Join(dir, FragmentName(v))}, candidates...)
		}
		for _, path := range candidates {
			if exists(path) {
				paths = append(paths, path)
				break
			}
		}
	}
	for _, c := range commodities {
		paths = append(paths, a.layout.CommodityFragment(c))
	}
	return paths, nil
}

// WriteList writes paths joined by the platform list separator.
func WriteList(path string, paths []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(paths, compose.Separator())), 0o644); err != nil {
		return fmt.Errorf("write fragment list %q: %w", path, err)
	}
	return nil
}

// ReadList returns the paths of a fragment list file; a missing or empty file
// yields no paths.
func ReadList(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fragment list %q: %w", path, err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, compose.Separator()), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
