// Package configrepo bootstraps the environment configuration repository: it
// records which repository the root is bound to and clones or pulls it.
package configrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/git"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// Local binds the root to a configuration kept only on this machine.
const Local = "local"

// EmptyConfiguration seeds a local configuration repository.
const EmptyConfiguration = "---\napplications: {}\n"

// ErrLocalInitialized reports that a fresh local configuration was created and
// must be filled in before the environment can start.
var ErrLocalInitialized = errors.New("local configuration initialized")

// Asker obtains the repository URL from the operator.
type Asker interface {
	Ask(question string) (string, error)
}

// Source is the parsed content of the context file.
type Source struct {
	URL string
	Ref string
}

// ParseSource splits "url#ref".
func ParseSource(raw string) Source {
	raw = strings.TrimSpace(raw)
	url, ref, _ := strings.Cut(raw, "#")
	return Source{URL: url, Ref: ref}
}

// Preparer clones or refreshes the configuration repository.
type Preparer struct {
	layout  config.Layout
	runner  runner.Runner
	printer *console.Printer
	asker   Asker
}

// NewPreparer constructs a Preparer.
func NewPreparer(layout config.Layout, r runner.Runner, printer *console.Printer, asker Asker) *Preparer {
	if printer == nil {
		printer = console.Discard()
	}
	return &Preparer{layout: layout, runner: r, printer: printer, asker: asker}
}

// Prepare ensures the configuration directory holds the bound repository.
func (p *Preparer) Prepare(ctx context.Context) error {
	raw, err := p.context()
	if err != nil {
		return err
	}
	src := ParseSource(raw)

	dir := p.layout.ConfigDir()
	if isDir(dir) {
		if raw == Local {
			return nil
		}
		if _, err := git.NewRepository(dir, p.runner).Pull(ctx); err != nil {
			p.printer.Error("Failed to clone or update the configuration repository.")
			return fmt.Errorf("update configuration repository: %w", err)
		}
		return nil
	}

	if raw == Local {
		p.printer.Info("Initializing local config repository.")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %q: %w", dir, err)
		}
		if err := os.WriteFile(p.layout.EnvironmentFile(), []byte(EmptyConfiguration), 0o644); err != nil {
			return fmt.Errorf("write %q: %w", p.layout.EnvironmentFile(), err)
		}
		p.printer.Success("You can start adding apps to %s", p.layout.EnvironmentFile())
		return ErrLocalInitialized
	}

	if err := p.clone(ctx, src, dir); err != nil {
		p.printer.Error("Failed to clone or update the configuration repository.")
		_ = os.Remove(p.layout.ContextFile())
		_ = os.RemoveAll(dir)
		return err
	}
	return nil
}

func (p *Preparer) clone(ctx context.Context, src Source, dir string) error {
	repo, _, err := git.Clone(ctx, p.runner, src.URL, dir)
	if err != nil {
		return fmt.Errorf("clone configuration repository: %w", err)
	}
	if src.Ref == "" {
		return nil
	}
	if _, err := repo.Checkout(ctx, src.Ref); err != nil {
		return fmt.Errorf("checkout configuration ref %q: %w", src.Ref, err)
	}
	return nil
}

// context returns the bound repository, asking for and saving it on first use.
func (p *Preparer) context() (string, error) {
	path := p.layout.ContextFile()
	raw, err := os.ReadFile(path)
	if err == nil {
		value := strings.TrimSpace(string(raw))
		p.printer.Blank()
		p.printer.Success("This dev env has been provisioned to run for the repo: %s", value)
		return value, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	if p.asker == nil {
		return "", fmt.Errorf("no configuration repository bound and no way to ask for one")
	}
	answer, err := p.asker.Ask("Please enter the (Git) url of your dev env configuration repository: ")
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("configuration repository url is empty")
	}
	if err := os.WriteFile(path, []byte(answer), 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return answer, nil
}

// Remove unbinds the root: the context file and the configuration directory are deleted.
func Remove(layout config.Layout) error {
	if err := os.Remove(layout.ContextFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.RemoveAll(layout.ConfigDir())
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
