package resources

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func parseYAML(data []byte, kind Kind) ([]record, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	return fromTree(doc, kind)
}
