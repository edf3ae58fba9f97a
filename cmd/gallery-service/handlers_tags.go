package main

import (
	"net/http"
	"sort"
	"strings"
)

// handleTagsGet enumerates the distinct tags in use across the gallery. The
// catalog has no tag index, so this walks a bounded prefix listing the same
// way the random candidate snapshot does.
func (st *appState) handleTagsGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	records, err := st.media.ListByPrefix(r.Context(), randomPoolMax)
	if err != nil {
		logger.Error("tag enumeration failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error fetching tags"})
		return
	}

	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, tag := range rec.Tags {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (st *appState) handleTagAdd(w http.ResponseWriter, r *http.Request) {
	st.mutateTag(w, r, "add")
}

func (st *appState) handleTagRemove(w http.ResponseWriter, r *http.Request) {
	st.mutateTag(w, r, "remove")
}

func (st *appState) mutateTag(w http.ResponseWriter, r *http.Request, command string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ID  string `json:"id"`
		Tag string `json:"tag"`
	}
	if !decodeJSONOrBadRequest(w, r, &body, "Missing required fields") {
		return
	}
	id := strings.TrimSpace(body.ID)
	tag := normalizeTag(body.Tag)
	if id == "" || tag == "" {
		badRequest(w, "Missing required fields")
		return
	}

	var tags []string
	var err error
	switch command {
	case "add":
		tags, err = st.media.AddTag(r.Context(), id, tag)
	default:
		tags, err = st.media.RemoveTag(r.Context(), id, tag)
	}
	if err != nil {
		logger.Error("tag mutation failed", "command", command, "id", id, "tag", tag, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error updating tags"})
		return
	}

	logger.Info("tag mutated", "command", command, "id", id, "tag", tag)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tags":    tags,
	})
}
