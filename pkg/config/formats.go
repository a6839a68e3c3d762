package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadYAML loads configuration from a YAML file
func LoadYAML(path string, target interface{}) error {
	// #nosec G304 -- path comes from the -config flag of the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return nil
}

// LoadJSON loads configuration from a JSON file
func LoadJSON(path string, target interface{}) error {
	// #nosec G304 -- path comes from the -config flag of the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// LoadTOML loads configuration from a TOML file
// Keys that do not map to a field are an error, matching strict YAML/JSON typos early.
func LoadTOML(path string, target interface{}) error {
	md, err := toml.DecodeFile(path, target)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown TOML keys in %s: %v", path, undecoded)
	}
	return nil
}
