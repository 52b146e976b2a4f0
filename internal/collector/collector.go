// Package collector maintains a metric tree of Go runtime and host metrics.
package collector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/idudko/go-metric-stream/internal/model"
)

// Collector owns a metric tree and refreshes its values.
//
// The shape of the tree is fixed at construction; only values change.
// Refreshes take the write lock, Read holds the read lock for the whole
// callback, so a walk never observes a half-updated tree.
//
// Tree layout:
//
//	PollCount, RandomValue
//	runtime/
//	  NumGoroutine
//	  memory/  Alloc, HeapAlloc, ...
//	  gc/      NumGC, GCCPUFraction, ...
//	system/
//	  memory/  TotalMemory, FreeMemory, UsedMemory, UsedPercent
//	  cpu/     CPUutilization1 ... CPUutilizationN
type Collector struct {
	mu   sync.RWMutex
	tree *model.Tree
	dict *model.Dictionary

	pollCount    *model.Metric
	randomValue  *model.Metric
	numGoroutine *model.Metric
	runtimeMem   map[string]*model.Metric
	gc           map[string]*model.Metric
	systemMem    map[string]*model.Metric
	cpuUtil      []*model.Metric
}

var runtimeMemNames = []string{
	"Alloc", "TotalAlloc", "Sys", "Lookups", "Mallocs", "Frees",
	"HeapAlloc", "HeapSys", "HeapIdle", "HeapInuse", "HeapReleased", "HeapObjects",
	"StackInuse", "StackSys", "MSpanInuse", "MSpanSys", "MCacheInuse", "MCacheSys",
	"BuckHashSys", "OtherSys",
}

var gcNames = []string{"NumGC", "NumForcedGC", "PauseTotalNs", "LastGC", "NextGC", "GCSys"}

var systemMemNames = []string{"TotalMemory", "FreeMemory", "UsedMemory"}

// New builds the tree and registers every name in dict. cpus is the number of
// CPU utilization metrics; pass 0 to ask the host.
func New(dict *model.Dictionary, cpus int) *Collector {
	if cpus <= 0 {
		n, err := cpu.Counts(true)
		if err != nil || n <= 0 {
			n = runtime.NumCPU()
		}
		cpus = n
	}

	c := &Collector{
		tree:       &model.Tree{},
		dict:       dict,
		runtimeMem: make(map[string]*model.Metric, len(runtimeMemNames)),
		gc:         make(map[string]*model.Metric, len(gcNames)+1),
		systemMem:  make(map[string]*model.Metric, len(systemMemNames)+1),
	}

	c.pollCount = c.intMetric(nil, "PollCount")
	c.randomValue = c.floatMetric(nil, "RandomValue")

	rt := c.group(nil, "runtime")
	memGroup := c.group(rt, "memory")
	for _, name := range runtimeMemNames {
		c.runtimeMem[name] = c.intMetric(memGroup, name)
	}
	gcGroup := c.group(rt, "gc")
	for _, name := range gcNames {
		c.gc[name] = c.intMetric(gcGroup, name)
	}
	c.gc["GCCPUFraction"] = c.floatMetric(gcGroup, "GCCPUFraction")
	c.numGoroutine = c.intMetric(rt, "NumGoroutine")

	sys := c.group(nil, "system")
	sysMem := c.group(sys, "memory")
	for _, name := range systemMemNames {
		c.systemMem[name] = c.intMetric(sysMem, name)
	}
	c.systemMem["UsedPercent"] = c.floatMetric(sysMem, "UsedPercent")
	cpuGroup := c.group(sys, "cpu")
	for i := range cpus {
		c.cpuUtil = append(c.cpuUtil, c.floatMetric(cpuGroup, fmt.Sprintf("CPUutilization%d", i+1)))
	}

	return c
}

func (c *Collector) group(parent *model.Group, name string) *model.Group {
	g := model.NewGroup(c.dict.Register(name))
	if parent == nil {
		c.tree.Groups = append(c.tree.Groups, g)
		return g
	}
	return parent.AddGroup(g)
}

func (c *Collector) intMetric(parent *model.Group, name string) *model.Metric {
	return c.addMetric(parent, model.NewInt(c.dict.Register(name), 0))
}

func (c *Collector) floatMetric(parent *model.Group, name string) *model.Metric {
	return c.addMetric(parent, model.NewFloat(c.dict.Register(name), 0))
}

func (c *Collector) addMetric(parent *model.Group, m *model.Metric) *model.Metric {
	if parent == nil {
		c.tree.Metrics = append(c.tree.Metrics, m)
		return m
	}
	return parent.AddMetric(m)
}

// Read calls fn with the tree while holding off refreshes.
func (c *Collector) Read(fn func(t *model.Tree)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.tree)
}

// Collect refreshes the Go runtime metrics and the poll counter.
func (c *Collector) Collect() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.mu.Lock()
	defer c.mu.Unlock()

	setUint(c.runtimeMem["Alloc"], ms.Alloc)
	setUint(c.runtimeMem["TotalAlloc"], ms.TotalAlloc)
	setUint(c.runtimeMem["Sys"], ms.Sys)
	setUint(c.runtimeMem["Lookups"], ms.Lookups)
	setUint(c.runtimeMem["Mallocs"], ms.Mallocs)
	setUint(c.runtimeMem["Frees"], ms.Frees)
	setUint(c.runtimeMem["HeapAlloc"], ms.HeapAlloc)
	setUint(c.runtimeMem["HeapSys"], ms.HeapSys)
	setUint(c.runtimeMem["HeapIdle"], ms.HeapIdle)
	setUint(c.runtimeMem["HeapInuse"], ms.HeapInuse)
	setUint(c.runtimeMem["HeapReleased"], ms.HeapReleased)
	setUint(c.runtimeMem["HeapObjects"], ms.HeapObjects)
	setUint(c.runtimeMem["StackInuse"], ms.StackInuse)
	setUint(c.runtimeMem["StackSys"], ms.StackSys)
	setUint(c.runtimeMem["MSpanInuse"], ms.MSpanInuse)
	setUint(c.runtimeMem["MSpanSys"], ms.MSpanSys)
	setUint(c.runtimeMem["MCacheInuse"], ms.MCacheInuse)
	setUint(c.runtimeMem["MCacheSys"], ms.MCacheSys)
	setUint(c.runtimeMem["BuckHashSys"], ms.BuckHashSys)
	setUint(c.runtimeMem["OtherSys"], ms.OtherSys)

	setUint(c.gc["NumGC"], uint64(ms.NumGC))
	setUint(c.gc["NumForcedGC"], uint64(ms.NumForcedGC))
	setUint(c.gc["PauseTotalNs"], ms.PauseTotalNs)
	setUint(c.gc["LastGC"], ms.LastGC)
	setUint(c.gc["NextGC"], ms.NextGC)
	setUint(c.gc["GCSys"], ms.GCSys)
	c.gc["GCCPUFraction"].Value = model.FloatValue(ms.GCCPUFraction)

	c.numGoroutine.Value = model.IntValue(int64(runtime.NumGoroutine()))
	c.randomValue.Value = model.FloatValue(rand.Float64())
	c.pollCount.Value = model.IntValue(c.pollCount.Value.AsInt() + 1)
}

// CollectSystem refreshes the host memory and CPU metrics.
func (c *Collector) CollectSystem() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to read virtual memory: %w", err)
	}
	percents, err := cpu.Percent(0, true)
	if err != nil {
		return fmt.Errorf("failed to read cpu utilization: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	setUint(c.systemMem["TotalMemory"], vm.Total)
	setUint(c.systemMem["FreeMemory"], vm.Free)
	setUint(c.systemMem["UsedMemory"], vm.Used)
	c.systemMem["UsedPercent"].Value = model.FloatValue(vm.UsedPercent)
	for i, m := range c.cpuUtil {
		if i < len(percents) {
			m.Value = model.FloatValue(percents[i])
		}
	}
	return nil
}

// Run refreshes the tree every interval until ctx is done.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
			if err := c.CollectSystem(); err != nil {
				log.Warn().Err(err).Msg("failed to collect system metrics")
			}
		case <-ctx.Done():
			return
		}
	}
}

// setUint stores v, saturating at the int64 maximum.
func setUint(m *model.Metric, v uint64) {
	if v > 1<<63-1 {
		v = 1<<63 - 1
	}
	m.Value = model.IntValue(int64(v))
}
