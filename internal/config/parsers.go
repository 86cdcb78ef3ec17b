// Package config provides configuration loading and parsing for batchpace.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config file values arrive as whatever the YAML, TOML or JSON decoder
// produced. The helpers below coerce them into Config field types; blank
// strings read as the zero value so an empty key leaves a default unset.

// lookupSetting returns the first of the candidate keys present in settings.
// Keys are matched as given and in lowercase.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// blank reports whether value is nil or an all-space string, and returns
// strings trimmed.
func blank(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case string:
		v = strings.TrimSpace(v)
		return v, v == ""
	}
	return value, false
}

func asString(value interface{}) (string, error) {
	return cast.ToStringE(value)
}

// asInt reads decimal strings in base 10, so "010" is ten.
func asInt(value interface{}) (int, error) {
	value, empty := blank(value)
	if empty {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		return strconv.Atoi(s)
	}
	return cast.ToIntE(value)
}

func asFloat64(value interface{}) (float64, error) {
	value, empty := blank(value)
	if empty {
		return 0, nil
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	value, empty := blank(value)
	if empty {
		return false, nil
	}
	return cast.ToBoolE(value)
}

// asDuration parses strings with time.ParseDuration. Bare numbers are
// seconds, fractions included.
func asDuration(value interface{}) (time.Duration, error) {
	value, empty := blank(value)
	if empty {
		return 0, nil
	}
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(v)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// asStringSlice accepts a list or a single string. A single string is one
// element, not split on whitespace.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	}
	return cast.ToStringSliceE(value)
}

// toStringKeyMap converts a nested table into a map with trimmed lowercase
// keys. YAML decoders may hand back map[interface{}]interface{}.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	if value == nil {
		return map[string]interface{}{}, nil
	}
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	raw, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
