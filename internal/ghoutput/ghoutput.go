// Package ghoutput publishes step outputs when devenv runs inside GitHub Actions.
package ghoutput

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Path returns the GITHUB_OUTPUT file, or "" outside GitHub Actions.
func Path() string {
	return strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
}

// Write appends values to the output file at path in key order. Multi-line values
// use the delimiter form. An empty path is a no-op.
func Write(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := strings.ReplaceAll(values[key], "\r\n", "\n")
		if !strings.Contains(value, "\n") {
			fmt.Fprintf(&b, "%s=%s\n", key, value)
			continue
		}
		delim := "devenv_" + uuid.NewString()
		fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, delim, value, delim)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open step output file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write step outputs: %w", err)
	}
	return nil
}
