package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
)

// System metric names produced by the collector.
const (
	MetricCPUPercent  = "system.cpu.percent"
	MetricMemPercent  = "system.memory.used_percent"
	MetricDiskPercent = "system.disk.used_percent"
	MetricLoad1       = "system.load.1m"
)

// SystemCollector is an instrumentation producer: it samples host CPU,
// memory, disk, and load on its own interval and feeds the metric store
// through the same Record path as any external producer.
type SystemCollector struct {
	store    *metrics.Store
	interval time.Duration
	logger   *logrus.Logger
}

// NewSystemCollector creates a collector recording into store.
func NewSystemCollector(store *metrics.Store, interval time.Duration, logger *logrus.Logger) *SystemCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SystemCollector{store: store, interval: interval, logger: logger}
}

// RegisterMetrics registers the collector's gauges. Call once before Run.
func (c *SystemCollector) RegisterMetrics() error {
	defs := []metrics.Definition{
		{Name: MetricCPUPercent, Kind: metrics.KindGauge, Unit: "percent", CollectionInterval: c.interval},
		{Name: MetricMemPercent, Kind: metrics.KindGauge, Unit: "percent", CollectionInterval: c.interval},
		{Name: MetricDiskPercent, Kind: metrics.KindGauge, Unit: "percent", CollectionInterval: c.interval},
		{Name: MetricLoad1, Kind: metrics.KindGauge, Unit: "load", CollectionInterval: c.interval},
	}
	for _, def := range defs {
		if err := c.store.RegisterMetric(def); err != nil {
			return err
		}
	}
	return nil
}

// Run samples until the context is cancelled.
func (c *SystemCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *SystemCollector) collect() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		c.record(MetricCPUPercent, percents[0])
	} else if err != nil {
		c.logger.WithError(err).Debug("CPU sample failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		c.record(MetricMemPercent, vm.UsedPercent)
	} else {
		c.logger.WithError(err).Debug("Memory sample failed")
	}

	if du, err := disk.Usage("/"); err == nil {
		c.record(MetricDiskPercent, du.UsedPercent)
	} else {
		c.logger.WithError(err).Debug("Disk sample failed")
	}

	if avg, err := load.Avg(); err == nil {
		c.record(MetricLoad1, avg.Load1)
	} else {
		c.logger.WithError(err).Debug("Load sample failed")
	}
}

func (c *SystemCollector) record(name string, value float64) {
	if err := c.store.Record(name, value, nil); err != nil {
		c.logger.WithError(err).WithField("metric", name).Warn("Failed to record system sample")
	}
}
