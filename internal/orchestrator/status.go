package orchestrator

import (
	"context"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

// UnitStatus is the status row for one unit.
type UnitStatus struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Flavor   string `json:"flavor"`
	Required bool   `json:"required"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// ResourceSnapshot is an advisory view of the orchestrator process itself.
type ResourceSnapshot struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Status is the aggregate answer to a status query.
type Status struct {
	Running   bool                   `json:"running"`
	Units     []UnitStatus           `json:"units"`
	Health    map[string]unit.Health `json:"health"`
	Resources *ResourceSnapshot      `json:"resources,omitempty"`
}

// Status reports every registered unit's state plus aggregated health.
// Health calls run concurrently, each bounded by HealthCheckTimeout.
func (o *Orchestrator) Status(ctx context.Context) Status {
	manifests := o.registry.Manifests()

	status := Status{
		Running: o.Running(),
		Units:   make([]UnitStatus, 0, len(manifests)),
		Health:  make(map[string]unit.Health),
	}

	stateCounts := make(map[string]int)
	var healthMu sync.Mutex
	var wg sync.WaitGroup

	for _, m := range manifests {
		row := UnitStatus{
			ID:       m.ID,
			Version:  m.Version,
			Flavor:   string(m.Flavor),
			Required: m.Required,
			State:    string(unit.StateUnloaded),
		}

		inst, live := o.registry.Instance(m.ID)
		if live {
			row.State = string(inst.GetState())
			if err := inst.GetLastError(); err != nil {
				row.Error = err.Error()
			}
		}
		stateCounts[row.State]++
		status.Units = append(status.Units, row)

		// Health checks only make sense for live service units.
		if live && m.Flavor == "service" {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				health, err := o.engine.Health(ctx, id, HealthCheckTimeout)
				if err != nil {
					logging.Warn("Orchestrator", "Health check for %s failed: %v", id, err)
					health = unit.Health{Status: unit.HealthUnknown}
				}
				healthMu.Lock()
				status.Health[id] = health
				healthMu.Unlock()
			}(m.ID)
		}
	}

	wg.Wait()

	for state, count := range stateCounts {
		metrics.UnitsTotal.WithLabelValues(state).Set(float64(count))
	}

	if snapshot := processSnapshot(); snapshot != nil {
		status.Resources = snapshot
	}

	return status
}

// processSnapshot samples the orchestrator's own CPU and memory usage.
func processSnapshot() *ResourceSnapshot {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}

	snapshot := &ResourceSnapshot{}
	if cpu, err := proc.CPUPercent(); err == nil {
		snapshot.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		snapshot.RSSBytes = mem.RSS
	}
	return snapshot
}
