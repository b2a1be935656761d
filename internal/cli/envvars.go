package cli

import (
	"fmt"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"
)

// settings holds the DEVENV_* tuning knobs. Flags override them.
type settings struct {
	// Root is the devenv root directory from DEVENV_ROOT.
	Root string `env:"DEVENV_ROOT" envDefault:"."`
	// LogLevel is the logging level from DEVENV_LOG_LEVEL.
	LogLevel string `env:"DEVENV_LOG_LEVEL" envDefault:"info"`
	// ComposeCmd is the compose entry point from DEVENV_COMPOSE_CMD.
	ComposeCmd string `env:"DEVENV_COMPOSE_CMD" envDefault:"docker compose"`
	// ProbeInterval is the commodity readiness poll from DEVENV_PROBE_INTERVAL.
	ProbeInterval time.Duration `env:"DEVENV_PROBE_INTERVAL" envDefault:"3s"`
	// SweepInterval is the startup sweep pause from DEVENV_SWEEP_INTERVAL.
	SweepInterval time.Duration `env:"DEVENV_SWEEP_INTERVAL" envDefault:"5s"`
	// MaxInProgress caps concurrent expensive starts from DEVENV_MAX_IN_PROGRESS.
	MaxInProgress int `env:"DEVENV_MAX_IN_PROGRESS" envDefault:"3"`
	// RestartThreshold is the tolerated restart count from DEVENV_RESTART_THRESHOLD.
	RestartThreshold int `env:"DEVENV_RESTART_THRESHOLD" envDefault:"9"`
	// CommodityWaitMax bounds commodity readiness waits from DEVENV_COMMODITY_WAIT_MAX; zero waits forever.
	CommodityWaitMax time.Duration `env:"DEVENV_COMMODITY_WAIT_MAX"`
}

// loadSettings parses DEVENV_* vars from environ, or from the process environment
// when environ is nil.
func loadSettings(environ map[string]string) (settings, error) {
	var s settings
	opts := envparse.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := envparse.ParseWithOptions(&s, opts); err != nil {
		return settings{}, fmt.Errorf("parse DEVENV_* environment: %w", err)
	}
	if s.MaxInProgress <= 0 {
		return settings{}, fmt.Errorf("DEVENV_MAX_IN_PROGRESS must be positive, got %d", s.MaxInProgress)
	}
	if s.RestartThreshold < 0 {
		return settings{}, fmt.Errorf("DEVENV_RESTART_THRESHOLD must not be negative, got %d", s.RestartThreshold)
	}
	return s, nil
}

// composeCommand splits the compose entry point into its argument vector.
func (s settings) composeCommand() []string {
	return strings.Fields(s.ComposeCmd)
}
