package servicectl

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// unitProperties reads MainPID and current memory usage for a unit over the
// systemd D-Bus API.
func unitProperties(ctx context.Context, unit string) (int, uint64, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitTypePropertiesContext(ctx, unit, "Service")
	if err != nil {
		return 0, 0, fmt.Errorf("unit properties %s: %w", unit, err)
	}

	var pid int
	var mem uint64
	if v, ok := props["MainPID"].(uint32); ok {
		pid = int(v)
	}
	if v, ok := props["MemoryCurrent"].(uint64); ok {
		mem = v
	}
	return pid, mem, nil
}
