package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeMedia is an in-memory MediaLibrary. Sorted searches page through the
// record list with numeric cursors; previews are synthesized per id.
type fakeMedia struct {
	mu      sync.Mutex
	records []imageRecord

	searchErr  error
	previewErr map[string]error
	fetches    map[string]int
	fetchDelay time.Duration
}

func newFakeMedia(records ...imageRecord) *fakeMedia {
	return &fakeMedia{
		records:    records,
		previewErr: make(map[string]error),
		fetches:    make(map[string]int),
	}
}

func (f *fakeMedia) SearchSorted(_ context.Context, _, _ string, max int, cursor string) (searchPage, error) {
	if f.searchErr != nil {
		return searchPage{}, f.searchErr
	}
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "lib-cursor-%d", &start)
	}
	end := start + max
	if end > len(f.records) {
		end = len(f.records)
	}
	page := searchPage{records: append([]imageRecord(nil), f.records[start:end]...)}
	if end < len(f.records) {
		page.nextCursor = fmt.Sprintf("lib-cursor-%d", end)
	}
	return page, nil
}

func (f *fakeMedia) ListByPrefix(_ context.Context, max int) ([]imageRecord, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.records) > max {
		return append([]imageRecord(nil), f.records[:max]...), nil
	}
	return append([]imageRecord(nil), f.records...), nil
}

func (f *fakeMedia) Resource(_ context.Context, id string) (imageRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return imageRecord{}, fmt.Errorf("not found: %s", id)
}

func (f *fakeMedia) FetchPreview(_ context.Context, id, _ string) ([]byte, error) {
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	f.mu.Lock()
	f.fetches[id]++
	f.mu.Unlock()
	if err := f.previewErr[id]; err != nil {
		return nil, err
	}
	return []byte("preview-" + id), nil
}

func (f *fakeMedia) Upload(_ context.Context, _ io.Reader, filename string, tags []string) (imageRecord, error) {
	rec := imageRecord{ID: "up/" + filename, Format: "jpg", Tags: tags}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeMedia) Destroy(_ context.Context, id string) error {
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("not found: %s", id)
}

func (f *fakeMedia) AddTag(_ context.Context, id, tag string) ([]string, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Tags = append(f.records[i].Tags, tag)
			return f.records[i].Tags, nil
		}
	}
	return nil, fmt.Errorf("not found: %s", id)
}

func (f *fakeMedia) RemoveTag(_ context.Context, id, tag string) ([]string, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			tags := f.records[i].Tags[:0]
			for _, t := range f.records[i].Tags {
				if t != tag {
					tags = append(tags, t)
				}
			}
			f.records[i].Tags = tags
			return tags, nil
		}
	}
	return nil, fmt.Errorf("not found: %s", id)
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Close() error { return nil }

func (f *fakeCache) GetPlaceholder(id string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[id]
	return v, ok, nil
}

func (f *fakeCache) GetPlaceholders(ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, id := range ids {
		if v, ok := f.data[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeCache) SetPlaceholder(id, dataURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[id] = dataURL
	return nil
}

func (f *fakeCache) DeletePlaceholder(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	return nil
}

func (f *fakeCache) CountPlaceholders() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data), nil
}

var _ MediaLibrary = (*fakeMedia)(nil)
var _ PlaceholderCache = (*fakeCache)(nil)

func newTestComposer(media *fakeMedia) (*queryComposer, *sessionStore) {
	sessions := newSessionStore(time.Hour)
	enr := newEnricher(media, newFakeCache())
	return newQueryComposer(media, sessions, enr, "charliegram"), sessions
}

func TestListSortedPassesLibraryCursorThrough(t *testing.T) {
	media := newFakeMedia(testPool(pageSize + 5)...)
	qc, _ := newTestComposer(media)

	records, next, err := qc.List(context.Background(), "", "desc", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != pageSize {
		t.Fatalf("first page has %d records, want %d", len(records), pageSize)
	}
	if next == nil || *next != fmt.Sprintf("lib-cursor-%d", pageSize) {
		t.Fatalf("next cursor = %v, want library token verbatim", next)
	}

	records, next, err = qc.List(context.Background(), *next, "desc", "")
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("final page has %d records, want 5", len(records))
	}
	if next != nil {
		t.Fatalf("final page cursor = %q, want nil", *next)
	}
}

func TestListSortedEnrichesEveryRecord(t *testing.T) {
	media := newFakeMedia(testPool(3)...)
	qc, _ := newTestComposer(media)

	records, _, err := qc.List(context.Background(), "", "asc", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, rec := range records {
		if !strings.HasPrefix(rec.BlurPlaceholder, "data:image/jpeg;base64,") {
			t.Fatalf("record %s missing placeholder: %q", rec.ID, rec.BlurPlaceholder)
		}
	}
}

func TestListRandomExhaustsPoolWithoutRepeats(t *testing.T) {
	media := newFakeMedia(testPool(30)...)
	qc, _ := newTestComposer(media)

	seen := make(map[string]struct{})
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("random pagination did not terminate")
		}
		records, next, err := qc.List(context.Background(), cursor, "random", "")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, rec := range records {
			if _, dup := seen[rec.ID]; dup {
				t.Fatalf("record %s served twice", rec.ID)
			}
			seen[rec.ID] = struct{}{}
		}
		if next == nil {
			break
		}
		cursor = *next
	}
	if len(seen) != 30 {
		t.Fatalf("served %d of 30 records", len(seen))
	}
}

func TestListRandomTagFilterBoundsPool(t *testing.T) {
	records := testPool(20)
	for i := 0; i < 20; i += 4 {
		records[i].Tags = []string{"charlie"}
	}
	media := newFakeMedia(records...)
	qc, _ := newTestComposer(media)

	got, next, err := qc.List(context.Background(), "", "random", "charlie")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want the 5 tagged ones", len(got))
	}
	for _, rec := range got {
		if !hasTag(rec, "charlie") {
			t.Fatalf("record %s lacks filter tag", rec.ID)
		}
	}
	if next != nil {
		t.Fatalf("pool smaller than a page should exhaust immediately, got cursor %q", *next)
	}
}

func TestListRandomEmptyPool(t *testing.T) {
	media := newFakeMedia()
	qc, _ := newTestComposer(media)

	records, next, err := qc.List(context.Background(), "", "random", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("got %v, want empty non-nil slice", records)
	}
	if next != nil {
		t.Fatalf("empty pool produced cursor %q", *next)
	}
}

func TestListRandomUnknownSessionCursor(t *testing.T) {
	media := newFakeMedia(testPool(5)...)
	qc, _ := newTestComposer(media)

	for _, cursor := range []string{"deadbeef_12", "not a cursor"} {
		_, _, err := qc.List(context.Background(), cursor, "random", "")
		if !errors.Is(err, errSessionExpired) {
			t.Errorf("cursor %q: got %v, want errSessionExpired", cursor, err)
		}
	}
}

func TestListRandomSweptSessionCursor(t *testing.T) {
	media := newFakeMedia(testPool(30)...)
	qc, sessions := newTestComposer(media)

	_, next, err := qc.List(context.Background(), "", "random", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if next == nil {
		t.Fatal("expected a continuation cursor")
	}

	sessions.SweepExpired(time.Now().Add(2 * time.Hour))

	_, _, err = qc.List(context.Background(), *next, "random", "")
	if !errors.Is(err, errSessionExpired) {
		t.Fatalf("got %v, want errSessionExpired after sweep", err)
	}
}

func TestListUnknownSortMode(t *testing.T) {
	media := newFakeMedia(testPool(3)...)
	qc, _ := newTestComposer(media)

	if _, _, err := qc.List(context.Background(), "", "newest", ""); err == nil {
		t.Fatal("unknown sort mode accepted")
	}
}

func TestSearchExpression(t *testing.T) {
	tests := []struct {
		folder, tag, want string
	}{
		{"charliegram", "", "folder:charliegram/*"},
		{"charliegram", "beach", "folder:charliegram/* AND tags=beach"},
	}
	for _, tc := range tests {
		if got := searchExpression(tc.folder, tc.tag); got != tc.want {
			t.Errorf("searchExpression(%q, %q) = %q, want %q", tc.folder, tc.tag, got, tc.want)
		}
	}
}
