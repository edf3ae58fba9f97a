package main

import (
	"context"
	"fmt"
)

// queryComposer is the single entry point turning a listing request into a
// page of enriched records plus a next-page cursor. Deterministic modes
// delegate to the library's own sorted pagination; random mode runs against
// the in-process sampling sessions.
type queryComposer struct {
	media    MediaLibrary
	sessions *sessionStore
	enricher *enricher
	folder   string
}

func newQueryComposer(media MediaLibrary, sessions *sessionStore, enricher *enricher, folder string) *queryComposer {
	return &queryComposer{media: media, sessions: sessions, enricher: enricher, folder: folder}
}

// List returns one page of records for the given cursor, sort mode and tag
// filter. nextCursor is nil when there are no further pages. Callers that
// switch sort mode or tag mid-browse must drop their cursor: the cursor
// format differs by mode and is not decodable across modes.
func (qc *queryComposer) List(ctx context.Context, cursor, sortMode, tag string) ([]imageRecord, *string, error) {
	switch sortMode {
	case "asc", "desc":
		return qc.listSorted(ctx, cursor, sortMode, tag)
	case "random":
		return qc.listRandom(ctx, cursor, tag)
	default:
		return nil, nil, fmt.Errorf("unknown sort mode %q", sortMode)
	}
}

func (qc *queryComposer) listSorted(ctx context.Context, cursor, direction, tag string) ([]imageRecord, *string, error) {
	expr := searchExpression(qc.folder, tag)
	page, err := qc.media.SearchSorted(ctx, expr, direction, pageSize, cursor)
	if err != nil {
		return nil, nil, fmt.Errorf("sorted search: %w", err)
	}

	records, err := qc.enricher.Enrich(ctx, page.records)
	if err != nil {
		return nil, nil, err
	}

	var next *string
	if page.nextCursor != "" {
		c := page.nextCursor
		next = &c
	}
	return records, next, nil
}

func (qc *queryComposer) listRandom(ctx context.Context, cursor, tag string) ([]imageRecord, *string, error) {
	if cursor == "" {
		return qc.startRandom(ctx, tag)
	}

	parsed, err := parseRandomCursor(cursor)
	if err != nil {
		// A cursor this endpoint cannot decode is indistinguishable
		// from one naming a swept session: restart from page one.
		return nil, nil, errSessionExpired
	}
	res, err := qc.sessions.Draw(parsed.sessionKey, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return qc.finishRandom(ctx, parsed.sessionKey, res)
}

func (qc *queryComposer) startRandom(ctx context.Context, tag string) ([]imageRecord, *string, error) {
	candidates, err := qc.media.ListByPrefix(ctx, randomPoolMax)
	if err != nil {
		return nil, nil, fmt.Errorf("random candidate listing: %w", err)
	}
	if tag != "" {
		filtered := make([]imageRecord, 0, len(candidates))
		for _, rec := range candidates {
			if hasTag(rec, tag) {
				filtered = append(filtered, rec)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return []imageRecord{}, nil, nil
	}

	key := qc.sessions.Create(candidates)
	res, err := qc.sessions.Draw(key, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return qc.finishRandom(ctx, key, res)
}

func (qc *queryComposer) finishRandom(ctx context.Context, key string, res drawResult) ([]imageRecord, *string, error) {
	records, err := qc.enricher.Enrich(ctx, res.records)
	if err != nil {
		return nil, nil, err
	}

	var next *string
	if !res.exhausted() {
		c := randomCursor{sessionKey: key, drawn: res.drawn}.String()
		next = &c
	}
	return records, next, nil
}

// searchExpression builds the library search expression scoping results to
// the gallery folder and, when set, one tag.
func searchExpression(folder, tag string) string {
	expr := fmt.Sprintf("folder:%s/*", folder)
	if tag != "" {
		expr += fmt.Sprintf(" AND tags=%s", tag)
	}
	return expr
}
