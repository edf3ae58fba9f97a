package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (st *appState) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("id"))
	if taskID == "" {
		badRequest(w, "id is required")
		return
	}

	queueDepth := 0
	if q, err := st.inspector.GetQueueInfo(st.cfg.interactiveQueue); err == nil {
		queueDepth = q.Pending + q.Active + q.Scheduled + q.Retry
	}

	rec, ok := getTaskState(r.Context(), st.redis, taskID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id":     taskID,
			"state":       "PENDING",
			"message":     "Queued or running",
			"queue_depth": queueDepth,
		})
		return
	}
	resultMap, _ := rec.Result.(map[string]any)
	message := "Running"
	if s, ok := stringFromAny(resultMap["message"]); ok && s != "" {
		message = s
	} else if s, ok := stringFromAny(resultMap["status"]); ok && s != "" {
		message = s
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":     taskID,
		"state":       rec.Status,
		"message":     message,
		"result":      resultMap,
		"queue_depth": queueDepth,
	})
}

// handlePlaceholderPrewarm kicks off a background walk of the catalog that
// fills the placeholder cache ahead of browsing traffic. Only one prewarm
// runs at a time.
func (st *appState) handlePlaceholderPrewarm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if st.isTrackedTaskBusy(ctx, prewarmLastTask) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "Another prewarm task is already running.",
		})
		return
	}

	taskID := uuid.NewString()
	payload := prewarmTaskPayload{TaskID: taskID}
	err := st.enqueueTask(taskTypePrewarm, taskID, payload, time.Hour)
	if err != nil {
		logger.Error("failed to enqueue prewarm task",
			"task_type", taskTypePrewarm,
			"task_id", taskID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to queue task"})
		return
	}

	st.redis.Set(ctx, prewarmLastTask, taskID, 7*24*time.Hour)
	setTaskState(ctx, st.redis, taskID, "PENDING", map[string]any{"message": "Prewarm task queued"})
	logger.Info("prewarm task queued", "task_id", taskID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"queued":  true,
		"task_id": taskID,
		"message": "Prewarm task queued",
	})
}
