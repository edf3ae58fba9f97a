package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// enricher attaches a low-resolution blur preview to each record of a
// batch. Previews come from the media library's blurred delivery transform,
// wrapped as a data URL; the sqlite cache short-circuits repeat fetches.
type enricher struct {
	media MediaLibrary
	cache PlaceholderCache
}

func newEnricher(media MediaLibrary, cache PlaceholderCache) *enricher {
	return &enricher{media: media, cache: cache}
}

// Enrich fans out one preview fetch per record and joins them all before
// returning. Output order matches input order regardless of completion
// order: each goroutine writes only its own slot. Any single failure fails
// the whole batch; no page ships with a missing placeholder.
func (e *enricher) Enrich(ctx context.Context, records []imageRecord) ([]imageRecord, error) {
	out := make([]imageRecord, len(records))
	copy(out, records)
	if len(out) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range out {
		i := i
		g.Go(func() error {
			url, err := e.placeholderFor(ctx, out[i])
			if err != nil {
				return fmt.Errorf("placeholder for %s: %w", out[i].ID, err)
			}
			out[i].BlurPlaceholder = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// placeholderFor resolves one record's preview, cache first. Cache write
// failures are logged and ignored; the fetched preview is still returned.
func (e *enricher) placeholderFor(ctx context.Context, rec imageRecord) (string, error) {
	if cached, ok, err := e.cache.GetPlaceholder(rec.ID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		logger.Warn("placeholder cache read failed", "id", rec.ID, "error", err)
	}

	raw, err := e.media.FetchPreview(ctx, rec.ID, rec.Format)
	if err != nil {
		return "", err
	}
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)

	if err := e.cache.SetPlaceholder(rec.ID, url); err != nil {
		logger.Warn("placeholder cache write failed", "id", rec.ID, "error", err)
	}
	return url, nil
}
