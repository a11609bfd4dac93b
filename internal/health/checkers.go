package health

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is any dependency that can be probed with a context, such as a
// pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database probes the record database. An unreachable database is fatal
// for readiness: new calls could start, but nothing they produce would
// survive the process.
func Database(p Pinger) Check {
	return Check{
		Name: "database",
		Probe: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// degradable matches the record guard's degraded-mode reporting.
type degradable interface {
	IsDegraded() bool
}

// RecordGuard probes the record store guard. The guard keeps live calls
// running when persistence fails, so a degraded guard lowers readiness to
// "degraded" rather than taking the instance out of rotation.
func RecordGuard(g degradable) Check {
	return Check{
		Name:       "record-store",
		Degradable: true,
		Probe: func(context.Context) error {
			if g.IsDegraded() {
				return errors.New("record store degraded, call records buffered in memory")
			}
			return nil
		},
	}
}
