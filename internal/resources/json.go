package resources

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// parseJSON accepts a top-level array or an object holding the array under
// the kind's name, e.g. {"accounts": [{"username": "a", "status": "active"}]}.
func parseJSON(data []byte, kind Kind) ([]record, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	list := gjson.ParseBytes(data)
	if list.IsObject() {
		list = list.Get(string(kind))
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("expected an array of %s", kind)
	}

	var (
		records []record
		err     error
		idx     int
	)
	list.ForEach(func(_, item gjson.Result) bool {
		defer func() { idx++ }()
		switch {
		case item.Type == gjson.String:
			records = append(records, fromString(item.String(), kind))
		case item.IsObject():
			fields, ok := item.Value().(map[string]interface{})
			if !ok {
				err = fmt.Errorf("entry %d: expected object", idx)
				return false
			}
			records = append(records, fromFields(fields, kind))
		default:
			err = fmt.Errorf("entry %d: unsupported JSON type %s", idx, item.Type)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
