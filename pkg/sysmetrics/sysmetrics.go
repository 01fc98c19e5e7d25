package sysmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/devopin/agent/pkg/record"
)

// Collector takes point-in-time snapshots of host resource usage.
type Collector struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// Snapshot gathers CPU, memory, disk, network, and load figures. Individual
// counter failures degrade to zero values; only a CPU or memory read failure
// fails the snapshot.
func (c *Collector) Snapshot(ctx context.Context) (record.SystemMetrics, error) {
	cpuPct, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return record.SystemMetrics{}, fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpuPct) == 0 {
		return record.SystemMetrics{}, fmt.Errorf("cpu percent: no samples")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return record.SystemMetrics{}, fmt.Errorf("virtual memory: %w", err)
	}

	m := record.SystemMetrics{
		Timestamp:       time.Now().Format(time.RFC3339),
		CPUPercent:      cpuPct[0],
		MemoryPercent:   vm.UsedPercent,
		MemoryAvailable: vm.Available,
		DiskUsage:       make(map[string]float64),
		NetworkIO:       make(map[string]uint64),
	}

	if parts, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, p := range parts {
			usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
			if err != nil {
				continue
			}
			m.DiskUsage[p.Mountpoint] = usage.UsedPercent
		}
	} else {
		c.logger.Warn("disk partitions unavailable", "err", err)
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		m.NetworkIO["bytes_sent"] = counters[0].BytesSent
		m.NetworkIO["bytes_recv"] = counters[0].BytesRecv
		m.NetworkIO["packets_sent"] = counters[0].PacketsSent
		m.NetworkIO["packets_recv"] = counters[0].PacketsRecv
	} else if err != nil {
		c.logger.Warn("network counters unavailable", "err", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		m.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	return m, nil
}
