package resources

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// parseTOML reads either `accounts = ["a", "b"]` or [[accounts]] tables.
func parseTOML(data []byte, kind Kind) ([]record, error) {
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}
	return fromTree(doc, kind)
}
