package resources

import "fmt"

// fromTree extracts records from a decoded YAML or TOML document.
func fromTree(doc interface{}, kind Kind) ([]record, error) {
	if m, ok := doc.(map[string]interface{}); ok {
		doc = m[string(kind)]
	}
	items, ok := doc.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of %s", kind)
	}

	records := make([]record, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			records = append(records, fromString(v, kind))
		case map[string]interface{}:
			records = append(records, fromFields(v, kind))
		default:
			return nil, fmt.Errorf("entry %d: unsupported type %T", i, item)
		}
	}
	return records, nil
}
