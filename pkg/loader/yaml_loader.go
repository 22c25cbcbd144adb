// Package loader parses YAML flow definitions into flow models. YAML is
// the authoring format for flows kept in files and version control; the
// API itself speaks JSON.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// Parse converts a YAML document into a validated flow. The YAML is
// normalized through JSON so node configs go through the same tagged-union
// decoding as API payloads.
func Parse(yamlContent []byte) (models.Flow, error) {
	var raw interface{}
	if err := yaml.Unmarshal(yamlContent, &raw); err != nil {
		return models.Flow{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	normalized, err := json.Marshal(normalizeKeys(raw))
	if err != nil {
		return models.Flow{}, fmt.Errorf("failed to normalize YAML document: %w", err)
	}

	var flow models.Flow
	if err := json.Unmarshal(normalized, &flow); err != nil {
		return models.Flow{}, fmt.Errorf("invalid flow definition: %w", err)
	}
	if err := flow.Validate(); err != nil {
		return models.Flow{}, err
	}
	return flow, nil
}

// ParseFile reads and parses a YAML flow file
func ParseFile(path string) (models.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Flow{}, fmt.Errorf("failed to read flow file: %w", err)
	}
	return Parse(data)
}

// normalizeKeys converts the map[interface{}]interface{} shapes that YAML
// produces for some documents into the map[string]interface{} shapes JSON
// requires
func normalizeKeys(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, item := range v {
			normalized[key] = normalizeKeys(item)
		}
		return normalized
	case map[interface{}]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, item := range v {
			normalized[fmt.Sprintf("%v", key)] = normalizeKeys(item)
		}
		return normalized
	case []interface{}:
		normalized := make([]interface{}, len(v))
		for i, item := range v {
			normalized[i] = normalizeKeys(item)
		}
		return normalized
	default:
		return value
	}
}
