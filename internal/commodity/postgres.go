package commodity

import (
	"context"
	"fmt"
	"path/filepath"
)

// PostgresPayload is the per-application SQL run against each Postgres instance.
const PostgresPayload = "postgres-init-fragment.sql"

// PostgresVersions are the Postgres major versions the environment can provide.
var PostgresVersions = []string{"13", "17"}

// Postgres returns the Instance for a Postgres major version.
func Postgres(version string) Instance {
	container := "postgres-" + version
	return Instance{
		Commodity: container,
		Container: container,
		Label:     "Postgres " + version,
		Payload:   PostgresPayload,
		Apply:     applySQL,
	}
}

// PostgresInstances returns one Instance per supported version.
func PostgresInstances() []Instance {
	out := make([]Instance, 0, len(PostgresVersions))
	for _, v := range PostgresVersions {
		out = append(out, Postgres(v))
	}
	return out
}

func applySQL(ctx context.Context, rt Runtime, inst Instance, app, path string) error {
	dest := "/" + filepath.Base(path)
	if err := rt.CopyTo(ctx, path, inst.Container, dest); err != nil {
		return err
	}
	res, err := rt.ExecArgs(ctx, inst.Container, "psql", "-q", "-f", dest)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("psql exited with %d: %v", res.ExitCode, res.Tail(3))
	}
	return nil
}
