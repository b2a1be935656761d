// Package env builds the environment of the external commands devenv runs: the
// process environment overlaid with the optional .env files of the root and of
// dev-env-config.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// Vars maps variable names to values.
type Vars map[string]string

// FromEnviron parses KEY=VALUE entries; entries without "=" are ignored.
func FromEnviron(environ []string) Vars {
	out := make(Vars, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			out[k] = v
		}
	}
	return out
}

// FromOS returns the process environment.
func FromOS() Vars { return FromEnviron(os.Environ()) }

// Merge overlays sets in order; later sets win.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		maps.Copy(out, s)
	}
	return out
}

// Environ renders v as sorted KEY=VALUE entries for exec.Cmd.Env.
func (v Vars) Environ() []string {
	out := make([]string, 0, len(v))
	for _, k := range slices.Sorted(maps.Keys(v)) {
		out = append(out, k+"="+v[k])
	}
	return out
}

// LoadFiles reads .env files in order, later files overriding earlier ones. Missing
// files are skipped.
func LoadFiles(paths ...string) (Vars, error) {
	out := make(Vars)
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		maps.Copy(out, vars)
	}
	return out, nil
}

// Overlay returns the process environment overlaid with the .env files at paths.
func Overlay(paths ...string) (Vars, error) {
	files, err := LoadFiles(paths...)
	if err != nil {
		return nil, err
	}
	return Merge(FromOS(), files), nil
}
