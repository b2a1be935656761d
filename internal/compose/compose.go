// Package compose drives the compose tool over the assembled fragment list.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/env"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// Error reports a compose invocation that exited with a non-zero status.
type Error struct {
	Op     string
	Result runner.Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("compose %s exited with status %d", e.Op, e.Result.ExitCode)
}

// Separator joins fragment paths in the list file and in COMPOSE_FILE.
func Separator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

// Client wraps compose tool execution for one environment.
type Client struct {
	// Command is the compose entry point, e.g. ["docker", "compose"].
	Command []string
	// FileList is the path of the fragment list file, read on every invocation.
	FileList string
	// Env is the base environment of every invocation.
	Env env.Vars
	// Dir is the working directory of every invocation.
	Dir string
	// Output receives command output when no log file is requested.
	Output io.Writer

	runner runner.Runner
}

// NewClient constructs a compose client. An empty command defaults to "docker compose".
func NewClient(command []string, fileList string, vars env.Vars, r runner.Runner) *Client {
	if len(command) == 0 {
		command = []string{"docker", "compose"}
	}
	return &Client{Command: command, FileList: fileList, Env: vars, runner: r}
}

// UpOptions selects the flags of an "up" invocation.
type UpOptions struct {
	// Services restricts the call to the named services; empty means all.
	Services []string
	// Detach runs containers in the background.
	Detach bool
	// NoDeps does not start linked services.
	NoDeps bool
	// RemoveOrphans removes containers for services not in the fragments.
	RemoveOrphans bool
	// ForceRecreate recreates containers even if unchanged.
	ForceRecreate bool
	// NoStart creates containers without starting them.
	NoStart bool
	// LogFile receives the command output instead of Output.
	LogFile string
	// AppendLog appends to LogFile instead of truncating it.
	AppendLog bool
}

func (o UpOptions) args() []string {
	args := []string{"up"}
	if o.Detach {
		args = append(args, "-d")
	}
	if o.NoDeps {
		args = append(args, "--no-deps")
	}
	if o.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if o.ForceRecreate {
		args = append(args, "--force-recreate")
	}
	if o.NoStart {
		args = append(args, "--no-start")
	}
	return append(args, o.Services...)
}

// Up creates and/or starts services.
func (c *Client) Up(ctx context.Context, opts UpOptions) (runner.Result, error) {
	cmd, err := c.command(opts.args())
	if err != nil {
		return runner.Result{}, err
	}
	cmd.LogFile = opts.LogFile
	cmd.AppendLog = opts.AppendLog
	return c.output(ctx, "up", cmd)
}

// Stop stops the named services.
func (c *Client) Stop(ctx context.Context, services ...string) (runner.Result, error) {
	return c.run(ctx, "stop", "", append([]string{"stop"}, services...)...)
}

// Down removes containers, images, volumes and orphans of the environment.
func (c *Client) Down(ctx context.Context) (runner.Result, error) {
	return c.run(ctx, "down", "", "down", "--rmi", "all", "--volumes", "--remove-orphans")
}

// Build builds images, optionally pulling newer base images.
func (c *Client) Build(ctx context.Context, pull bool, logFile string) (runner.Result, error) {
	args := []string{"build"}
	if pull {
		args = append(args, "--pull")
	}
	return c.run(ctx, "build", logFile, args...)
}

// PSServices lists services that currently have a container, started or not.
func (c *Client) PSServices(ctx context.Context) ([]string, error) {
	return c.services(ctx, "ps", "ps", "--all", "--services")
}

// ConfigServices lists every service defined by the fragments.
func (c *Client) ConfigServices(ctx context.Context) ([]string, error) {
	return c.services(ctx, "config", "config", "--services")
}

func (c *Client) services(ctx context.Context, op string, args ...string) ([]string, error) {
	res, err := c.runQuiet(ctx, op, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Lines))
	for _, line := range res.Lines {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Client) run(ctx context.Context, op, logFile string, args ...string) (runner.Result, error) {
	cmd, err := c.command(args)
	if err != nil {
		return runner.Result{}, err
	}
	cmd.LogFile = logFile
	return c.output(ctx, op, cmd)
}

// output runs cmd, streaming to Output when no log file is set. A partial last
// line left in Output is flushed so it is not joined to the next call.
func (c *Client) output(ctx context.Context, op string, cmd runner.Cmd) (runner.Result, error) {
	if cmd.LogFile == "" && c.Output != nil {
		cmd.Output = c.Output
		if f, ok := c.Output.(interface{ Flush() }); ok {
			defer f.Flush()
		}
	}
	return c.finish(ctx, op, cmd)
}

func (c *Client) runQuiet(ctx context.Context, op string, args ...string) (runner.Result, error) {
	cmd, err := c.command(args)
	if err != nil {
		return runner.Result{}, err
	}
	return c.finish(ctx, op, cmd)
}

func (c *Client) finish(ctx context.Context, op string, cmd runner.Cmd) (runner.Result, error) {
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("compose %s: %w", op, err)
	}
	if !res.OK() {
		return res, &Error{Op: op, Result: res}
	}
	return res, nil
}

func (c *Client) command(args []string) (runner.Cmd, error) {
	files, err := c.fileList()
	if err != nil {
		return runner.Cmd{}, err
	}
	vars := env.Merge(c.Env)
	if files != "" {
		vars["COMPOSE_FILE"] = files
		vars["COMPOSE_PATH_SEPARATOR"] = Separator()
	}
	return runner.Cmd{
		Name: c.Command[0],
		Args: append(append([]string{}, c.Command[1:]...), args...),
		Env:  vars.Environ(),
		Dir:  c.Dir,
	}, nil
}

func (c *Client) fileList() (string, error) {
	if c.FileList == "" {
		return "", nil
	}
	raw, err := os.ReadFile(c.FileList)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read fragment list %q: %w", c.FileList, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
