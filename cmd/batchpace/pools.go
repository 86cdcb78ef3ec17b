package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/torosent/batchpace/internal/resources"
	"github.com/torosent/batchpace/internal/rotation"
)

const (
	kindAccounts = resources.KindAccounts
	kindProxies  = resources.KindProxies
)

// buildPool merges identifiers loaded from path with the inline ids. File
// entries come first and keep their activity flags; an inline id already
// present in the file is ignored. With neither source the pool is empty.
func buildPool(ctx context.Context, ids []string, path string, kind resources.Kind) (*rotation.Pool, error) {
	if strings.TrimSpace(path) == "" {
		return rotation.New(ids...), nil
	}
	if len(ids) == 0 {
		return resources.LoadPool(ctx, path, kind)
	}
	entries, err := resources.Load(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(entries)+len(ids))
	for _, e := range entries {
		seen[e.ID] = struct{}{}
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, rotation.Entry{ID: id, Active: true})
	}
	pool, err := rotation.NewFromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pool, nil
}
