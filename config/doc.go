// Package config loads the boundary daemon's configuration.
//
// Configuration is layered: built-in defaults, then each file added with
// AddLayer in order (JSON or YAML, chosen by extension), then environment
// variables with the BOUNDARY_ prefix. Later layers only override the keys
// they set.
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Durations may be written as strings ("250ms", "2s", "1d") or as integer
// nanoseconds.
//
// # Environment Overrides
//
//	BOUNDARY_NATS_URLS            comma separated server URLs
//	BOUNDARY_NATS_USERNAME        NATS user
//	BOUNDARY_NATS_PASSWORD        NATS password
//	BOUNDARY_NATS_TOKEN           NATS token
//	BOUNDARY_BIND_ADDRESS         subject prefix
//	BOUNDARY_PORT                 announce instance name
//	BOUNDARY_POLL_TIMEOUT         loop poll timeout
//	BOUNDARY_HEARTBEAT_INTERVAL   keepalive heartbeat interval
//	BOUNDARY_WORKER_COUNT         status consumer workers
//	BOUNDARY_METRICS_PORT         metrics HTTP port
//
// SafeConfig wraps a loaded Config for concurrent readers; Get returns a deep
// copy so callers cannot mutate shared state.
package config
