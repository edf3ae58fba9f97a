package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func (st *appState) handleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st.handleImagesGet(w, r)
	case http.MethodDelete:
		st.requireSession(st.handleImagesDelete)(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (st *appState) handleImagesGet(w http.ResponseWriter, r *http.Request) {
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	sortMode := strings.TrimSpace(r.URL.Query().Get("sort"))
	if sortMode == "" {
		sortMode = "desc"
	}
	switch sortMode {
	case "asc", "desc", "random":
	default:
		badRequest(w, fmt.Sprintf("unknown sort %q", sortMode))
		return
	}
	tag := normalizeTag(r.URL.Query().Get("tag"))

	images, next, err := st.composer.List(r.Context(), cursor, sortMode, tag)
	if err != nil {
		if errors.Is(err, errSessionExpired) {
			badRequest(w, "Random session expired")
			return
		}
		logger.Error("image listing failed", "sort", sortMode, "tag", tag, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error loading images"})
		return
	}

	resp := map[string]any{"images": images, "next_cursor": nil}
	if next != nil {
		resp["next_cursor"] = *next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (st *appState) handleImagesDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		badRequest(w, "Image ID is required")
		return
	}
	if err := st.media.Destroy(r.Context(), id); err != nil {
		logger.Error("image delete failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to delete image"})
		return
	}
	if err := st.cache.DeletePlaceholder(id); err != nil {
		logger.Warn("failed to drop cached placeholder", "id", id, "error", err)
	}
	logger.Info("image deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Image deleted successfully"})
}

func (st *appState) handleImagesBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSONOrBadRequest(w, r, &body, "ids is required") {
		return
	}

	uniq := make(map[string]struct{}, len(body.IDs))
	ids := make([]string, 0, len(body.IDs))
	for _, raw := range body.IDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, exists := uniq[id]; exists {
			continue
		}
		uniq[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		badRequest(w, "ids is required")
		return
	}

	taskID := uuid.NewString()
	payload := bulkDeleteTaskPayload{TaskID: taskID, IDs: ids}
	err := st.enqueueTask(taskTypeBulkDelete, taskID, payload, 30*time.Minute)
	if err != nil {
		logger.Error("failed to enqueue bulk delete task",
			"task_type", taskTypeBulkDelete,
			"task_id", taskID,
			"count", len(ids),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to queue task"})
		return
	}
	setTaskState(r.Context(), st.redis, taskID, "PENDING", map[string]any{
		"message": fmt.Sprintf("Bulk delete task queued (%d images)", len(ids)),
		"total":   len(ids),
	})
	logger.Info("bulk delete task queued", "task_id", taskID, "count", len(ids))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":      true,
		"queued":       true,
		"task_id":      taskID,
		"queued_count": len(ids),
		"message":      "Bulk delete task queued",
	})
}

func (st *appState) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "No file uploaded")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "No file uploaded")
		return
	}
	defer file.Close()

	tags := make([]string, 0)
	for _, raw := range splitCSV(r.FormValue("tags")) {
		if t := normalizeTag(raw); t != "" {
			tags = append(tags, t)
		}
	}

	record, err := st.media.Upload(r.Context(), file, header.Filename, tags)
	if err != nil {
		logger.Error("upload failed", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error uploading file"})
		return
	}
	logger.Info("image uploaded", "id", record.ID, "tags", tags)
	writeJSON(w, http.StatusOK, record)
}

func (st *appState) enqueueTask(taskType, taskID string, payload interface{}, timeout time.Duration) error {
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(taskType, b)
	_, err := st.asynqCli.Enqueue(task,
		asynq.Queue(st.cfg.interactiveQueue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	)
	return err
}
