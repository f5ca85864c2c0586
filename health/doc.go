// Package health tracks the health of the boundary's moving parts.
//
// A Status carries one of three states (healthy, degraded, unhealthy), a
// human readable message and optional metrics. Statuses nest: Aggregate
// folds a list of sub-statuses into one, taking the worst state.
//
// Monitor holds named statuses. Components either push their state with
// Update, or register a Check that is evaluated whenever the monitor is read:
//
//	monitor := health.NewMonitor()
//	monitor.Register("boundary", b.Health)
//	monitor.UpdateHealthy("metrics", "serving")
//
//	status := monitor.AggregateHealth("boundaryd")
//	if status.IsUnhealthy() {
//	    logger.Warn("boundary unhealthy", "message", status.Message)
//	}
//
// Messages derived from errors should go through Sanitize (or FromError)
// before being exposed over HTTP; it removes URLs, file paths, addresses and
// credentials.
package health
