// Package resources loads account and proxy identifiers from files.
//
// Only identifiers and their active flag survive parsing. Passwords, tokens
// and proxy credentials found in the source files are dropped before any
// entry is returned.
package resources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/batchpace/internal/rotation"
)

// Kind selects which identifiers a file holds.
type Kind string

const (
	KindAccounts Kind = "accounts"
	KindProxies  Kind = "proxies"
)

// Format is a resource file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
)

// ErrEmpty is returned when a file parses but yields no identifiers.
var ErrEmpty = errors.New("resource file has no entries")

const lockRetry = 50 * time.Millisecond

// record is one parsed identifier before it becomes a pool entry.
type record struct {
	id     string
	active bool
}

// Load reads the identifiers in path. The file is held under a shared lock
// while it is read so that a concurrent writer holding an exclusive lock is
// never observed half-written. Duplicate identifiers keep their first
// occurrence.
func Load(ctx context.Context, path string, kind Kind) ([]rotation.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s file: %w", kind, err)
	}

	lock := flock.New(path)
	locked, err := lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", path)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	records, err := Parse(data, DetectFormat(path), kind)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// LoadPool loads path into a rotation pool.
func LoadPool(ctx context.Context, path string, kind Kind) (*rotation.Pool, error) {
	entries, err := Load(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	return rotation.NewFromEntries(entries)
}

// DetectFormat maps a file extension to a Format. Unknown extensions are
// read as plain text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format, kind Kind) ([]rotation.Entry, error) {
	var (
		records []record
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = parseJSON(data, kind)
	case FormatYAML:
		records, err = parseYAML(data, kind)
	case FormatTOML:
		records, err = parseTOML(data, kind)
	case FormatCSV:
		records, err = parseCSV(data, kind)
	case FormatText:
		records, err = parseText(data, kind)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return toEntries(records)
}

func toEntries(records []record) ([]rotation.Entry, error) {
	seen := make(map[string]struct{}, len(records))
	entries := make([]rotation.Entry, 0, len(records))
	for _, r := range records {
		if r.id == "" {
			continue
		}
		if _, dup := seen[r.id]; dup {
			continue
		}
		seen[r.id] = struct{}{}
		entries = append(entries, rotation.Entry{ID: r.id, Active: r.active})
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	return entries, nil
}

// idKeys lists the field names that may carry the identifier, by preference.
func idKeys(kind Kind) []string {
	if kind == KindProxies {
		return []string{"proxy", "address", "url", "id", "host"}
	}
	return []string{"username", "id", "account", "user", "name", "email"}
}

// fromString turns a bare line or list item into a record.
func fromString(raw string, kind Kind) record {
	raw = strings.TrimSpace(raw)
	if kind == KindProxies {
		return record{id: sanitizeProxy(raw), active: true}
	}
	// user:secret keeps only the user.
	if i := strings.Index(raw, ":"); i >= 0 {
		raw = raw[:i]
	}
	return record{id: strings.TrimSpace(raw), active: true}
}

// fromFields turns a decoded object into a record. Field names are matched
// case-insensitively.
func fromFields(fields map[string]interface{}, kind Kind) record {
	lower := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}

	var r record
	for _, key := range idKeys(kind) {
		if v, ok := lower[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				r = fromString(s, kind)
				break
			}
		}
	}
	r.active = activeFromFields(lower)
	return r
}

func activeFromFields(fields map[string]interface{}) bool {
	if v, ok := fields["status"]; ok && v != nil {
		return isActiveStatus(fmt.Sprint(v))
	}
	for _, key := range []string{"is_active", "active", "enabled"} {
		if v, ok := fields[key]; ok {
			switch b := v.(type) {
			case bool:
				return b
			case string:
				return isActiveStatus(b)
			}
		}
	}
	return true
}

func isActiveStatus(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active", "true", "yes", "1":
		return true
	default:
		return false
	}
}

// sanitizeProxy strips credentials from a proxy address, keeping the scheme
// and host:port.
func sanitizeProxy(raw string) string {
	scheme := ""
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme, rest = raw[:i+3], raw[i+3:]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	} else if parts := strings.Split(rest, ":"); len(parts) == 4 {
		// host:port:user:pass
		rest = parts[0] + ":" + parts[1]
	}
	if rest == "" {
		return ""
	}
	return scheme + rest
}
