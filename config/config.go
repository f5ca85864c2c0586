package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Config represents the complete daemon configuration
type Config struct {
	NATS     NATSConfig     `json:"nats" yaml:"nats"`
	Boundary BoundaryConfig `json:"boundary" yaml:"boundary"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	ClientName    string        `json:"client_name,omitempty" yaml:"client_name,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// BoundaryConfig defines the boundary's subjects, timing and consumers
type BoundaryConfig struct {
	BindAddress       string        `json:"bind_address" yaml:"bind_address"`
	Port              string        `json:"port,omitempty" yaml:"port,omitempty"`
	PollTimeout       time.Duration `json:"poll_timeout" yaml:"poll_timeout"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	WorkerCount       int           `json:"worker_count" yaml:"worker_count"`
	// QueueSize is the per-subscription frame buffer on the transport
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// MetricsConfig controls the /metrics and /health HTTP server
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required")
	}
	for i, u := range c.NATS.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("nats.urls[%d] is empty", i)
		}
	}
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("nats.tls: %w", err)
	}

	b := c.Boundary
	if !isValidNATSSubjectPrefix(b.BindAddress) {
		return fmt.Errorf(
			"boundary.bind_address '%s' is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
			b.BindAddress,
		)
	}
	if b.Port != "" && !isValidNATSSubjectPart(b.Port) {
		return fmt.Errorf("boundary.port '%s' is not a valid subject token", b.Port)
	}
	if b.PollTimeout <= 0 {
		return errors.New("boundary.poll_timeout must be positive")
	}
	if b.HeartbeatInterval < 0 {
		return errors.New("boundary.heartbeat_interval cannot be negative")
	}
	if b.WorkerCount < 1 {
		return errors.New("boundary.worker_count must be at least 1")
	}
	if b.QueueSize < 0 {
		return errors.New("boundary.queue_size cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path '%s' must start with /", c.Metrics.Path)
		}
	}

	return nil
}

// isValidNATSSubjectPart checks if a string is a single NATS subject token:
// letters, digits, dashes and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// isValidNATSSubjectPrefix checks a dotted prefix of subject tokens
func isValidNATSSubjectPrefix(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(strings.TrimSuffix(s, "."), ".") {
		if !isValidNATSSubjectPart(part) {
			return false
		}
	}
	return true
}

func (c *Config) validateTLS() error {
	tls := c.NATS.TLS
	if !tls.Enabled {
		return nil
	}
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	for name, path := range map[string]string{"cert_file": tls.CertFile, "key_file": tls.KeyFile, "ca_file": tls.CAFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "BOUNDARY",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if cfg, err = l.mergeFromMap(cfg, raw); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			ClientName:    "boundaryd",
		},
		Boundary: BoundaryConfig{
			BindAddress:       "boundary",
			PollTimeout:       time.Second,
			HeartbeatInterval: time.Second,
			WorkerCount:       1,
			QueueSize:         256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// loadRaw reads a JSON or YAML layer and normalizes it for merging
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	raw, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	if err := l.parseDurations(raw); err != nil {
		return nil, err
	}
	normalizePort(raw)
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(l.deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

var durationKeys = map[string][]string{
	"nats":     {"reconnect_wait"},
	"boundary": {"poll_timeout", "heartbeat_interval"},
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling
func (l *Loader) parseDurations(data map[string]any) error {
	for section, keys := range durationKeys {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := parseDurationWithDays(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// normalizePort keeps an unquoted numeric port as the string it names
func normalizePort(data map[string]any) {
	b, ok := data["boundary"].(map[string]any)
	if !ok {
		return
	}
	switch v := b["port"].(type) {
	case int:
		b["port"] = strconv.Itoa(v)
	case float64:
		b["port"] = strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		return val, checkEnvValue(key, val)
	}

	strOverrides := []struct {
		name string
		dst  *string
	}{
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"BIND_ADDRESS", &cfg.Boundary.BindAddress},
		{"PORT", &cfg.Boundary.Port},
	}
	for _, o := range strOverrides {
		val, err := env(o.name)
		if err != nil {
			return err
		}
		if val != "" {
			*o.dst = val
		}
	}

	val, err := env("NATS_URLS")
	if err != nil {
		return err
	}
	if val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	durOverrides := []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_TIMEOUT", &cfg.Boundary.PollTimeout},
		{"HEARTBEAT_INTERVAL", &cfg.Boundary.HeartbeatInterval},
	}
	for _, o := range durOverrides {
		val, err := env(o.name)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		d, err := parseDurationWithDays(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, o.name, err)
		}
		*o.dst = d
	}

	intOverrides := []struct {
		name string
		dst  *int
	}{
		{"WORKER_COUNT", &cfg.Boundary.WorkerCount},
		{"METRICS_PORT", &cfg.Metrics.Port},
	}
	for _, o := range intOverrides {
		val, err := env(o.name)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, o.name, err)
		}
		*o.dst = n
	}

	return nil
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
