package monitor

import (
	"context"

	"github.com/yairfalse/pulse/internal/cleanup"
)

// Alert ids of the static catalog. The monitor only ever mutates alerts
// it finds under these ids; installing a different catalog is fine as
// long as the ids line up with the thresholds being enforced.
const (
	AlertMemoryCeiling = "memory_ceiling"
	AlertMemoryGrowth  = "memory_growth"
	AlertLeakCount     = "leak_count"
	AlertFPSFloor      = "fps_floor"
)

// DefaultAlerts builds the standard catalog wired to a cleanup
// coordinator: breaching memory or leak thresholds triggers a cleanup
// batch as the primary remediation.
func DefaultAlerts(coord *cleanup.Coordinator) []Alert {
	runPriority := func(p cleanup.Priority) func(context.Context) error {
		return func(ctx context.Context) error {
			coord.ExecuteByPriority(ctx, p)
			return nil
		}
	}

	return []Alert{
		{
			ID:       AlertMemoryCeiling,
			Severity: SeverityCritical,
			Message:  "heap estimate exceeds configured ceiling",
			Actions: []Action{
				{ID: "cleanup-critical", Label: "Run critical cleanup tasks", Primary: true, Run: runPriority(cleanup.PriorityCritical)},
				{ID: "cleanup-all", Label: "Run full cleanup pass", Run: func(ctx context.Context) error {
					coord.ExecuteAll(ctx)
					return nil
				}},
			},
			AutoResolve: true,
		},
		{
			ID:       AlertMemoryGrowth,
			Severity: SeverityWarning,
			Message:  "heap is growing faster than the configured rate",
			Actions: []Action{
				{ID: "cleanup-high", Label: "Run high-priority cleanup tasks", Primary: true, Run: runPriority(cleanup.PriorityHigh)},
			},
			AutoResolve: true,
		},
		{
			ID:       AlertLeakCount,
			Severity: SeverityWarning,
			Message:  "orphan candidate count exceeds configured ceiling",
			Actions: []Action{
				{ID: "cleanup-medium", Label: "Run medium-priority cleanup tasks", Primary: true, Run: runPriority(cleanup.PriorityMedium)},
			},
			AutoResolve: true,
		},
		{
			ID:       AlertFPSFloor,
			Severity: SeverityWarning,
			Message:  "frame rate fell below the configured floor",
			Actions: []Action{
				// Frame-rate recovery is a rendering concern; surfacing the
				// alert is the remediation here, so no primary action.
				{ID: "inspect-render", Label: "Inspect render scheduler load"},
			},
			AutoResolve: false,
		},
	}
}

// InstallDefaultCatalog creates the default alerts on m.
func InstallDefaultCatalog(m *Monitor, coord *cleanup.Coordinator) {
	for _, a := range DefaultAlerts(coord) {
		m.CreateAlert(a)
	}
}
