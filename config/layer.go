package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	maxLayerSize  = 1 << 20 // 1MB per config layer
	maxLayerDepth = 32      // nesting allowed in a decoded layer
	maxEnvValue   = 4096
	maxPathLen    = 4096
)

// layerFormat selects the decoder for a config layer.
type layerFormat int

const (
	formatJSON layerFormat = iota
	formatYAML
)

func (f layerFormat) String() string {
	if f == formatYAML {
		return "YAML"
	}
	return "JSON"
}

// formatOf maps a layer's extension to its decoder.
func formatOf(path string) (layerFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported config format %q: want .json, .yaml or .yml", filepath.Ext(path))
	}
}

// checkLayerPath rejects empty and overlong paths, and relative paths that
// climb out of the working directory.
func checkLayerPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("config path too long: %d > %d", len(path), maxPathLen)
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		return fmt.Errorf("config path %s leaves the working directory", path)
	}
	return nil
}

// readLayer reads one config layer from a regular file and decodes it into a
// generic map ready for merging.
func readLayer(path string) (map[string]any, error) {
	if err := checkLayerPath(path); err != nil {
		return nil, err
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config layer %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config layer %s is not a regular file", path)
	}
	if info.Size() > maxLayerSize {
		return nil, fmt.Errorf("config layer %s too large: %d bytes > %d", path, info.Size(), maxLayerSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config layer %s: %w", path, err)
	}

	var raw map[string]any
	switch format {
	case formatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s in %s: %w", format, path, err)
	}
	if err := checkDepth(raw, 1); err != nil {
		return nil, fmt.Errorf("config layer %s: %w", path, err)
	}
	return raw, nil
}

// checkDepth walks a decoded layer and fails once nesting passes
// maxLayerDepth.
func checkDepth(v any, depth int) error {
	if depth > maxLayerDepth {
		return fmt.Errorf("nesting too deep: more than %d levels", maxLayerDepth)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkEnvValue bounds an override taken from the environment.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvValue {
		return fmt.Errorf("%s too long: %d > %d", key, len(value), maxEnvValue)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s contains a null byte", key)
	}
	return nil
}
