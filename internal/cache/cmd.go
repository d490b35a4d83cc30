package cache

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// InvalidateCacheCmd represents the cache invalidate subcommand
type InvalidateCacheCmd struct {
	Source string `arg:"" help:"Cache source to invalidate: covers" required:""`
}

func (i *InvalidateCacheCmd) Run(ctx context.Context) error {
	table, ok := CacheSources[i.Source]
	if !ok {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: %s", i.Source, validSourceList())
	}

	db, err := GetGlobalCache()
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	slog.Info("Invalidating cache", "source", i.Source, "database", db.Path())
	removed, err := db.Clear(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	slog.Info("Cache invalidated", "source", i.Source, "rows_deleted", removed)
	return nil
}

// PruneCacheCmd removes entries older than the configured cache TTL
type PruneCacheCmd struct{}

func (p *PruneCacheCmd) Run(ctx context.Context) error {
	db, err := GetGlobalCache()
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	ttl := ConfiguredTTL()
	for _, source := range slices.Sorted(maps.Keys(CacheSources)) {
		removed, err := db.Prune(ctx, CacheSources[source], ttl)
		if err != nil {
			return fmt.Errorf("failed to prune %s cache: %w", source, err)
		}
		slog.Info("Pruned cache", "source", source, "ttl", ttl, "rows_deleted", removed)
	}
	return nil
}

func validSourceList() string {
	return strings.Join(slices.Sorted(maps.Keys(CacheSources)), ", ")
}
