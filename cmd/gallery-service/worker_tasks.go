package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func (st *appState) processBulkDeleteTask(ctx context.Context, t *asynq.Task) error {
	var payload bulkDeleteTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	taskID := payload.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	if len(payload.IDs) == 0 {
		err := errors.New("ids is required")
		setTaskState(ctx, st.redis, taskID, "FAILURE", map[string]any{"message": err.Error()})
		return err
	}

	deleted := 0
	failed := 0
	total := len(payload.IDs)
	setTaskState(ctx, st.redis, taskID, "PROGRESS", map[string]any{
		"current": 0,
		"total":   total,
		"message": "Deleting images...",
	})

	for i, id := range payload.IDs {
		if err := st.media.Destroy(ctx, id); err != nil {
			logger.Warn("bulk delete: destroy failed", "task_id", taskID, "id", id, "error", err)
			failed++
		} else {
			deleted++
			if err := st.cache.DeletePlaceholder(id); err != nil {
				logger.Warn("bulk delete: placeholder cleanup failed", "id", id, "error", err)
			}
		}

		if i%20 == 0 || i == total-1 {
			setTaskState(ctx, st.redis, taskID, "PROGRESS", map[string]any{
				"current": i + 1,
				"total":   total,
				"status":  fmt.Sprintf("deleted:%d failed:%d", deleted, failed),
			})
		}
	}

	result := map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Bulk delete completed. deleted:%d failed:%d", deleted, failed),
		"deleted_count": deleted,
		"failed_count":  failed,
		"total":         total,
	}
	if deleted == 0 && failed > 0 {
		setTaskState(ctx, st.redis, taskID, "FAILURE", result)
		return errors.New("bulk delete failed")
	}
	setTaskState(ctx, st.redis, taskID, "SUCCESS", result)
	return nil
}

// processPrewarmTask walks the catalog and derives a placeholder for every
// asset that has none cached yet. Individual preview failures are counted
// and skipped; one bad asset must not stall the whole warm-up.
func (st *appState) processPrewarmTask(ctx context.Context, t *asynq.Task) error {
	var payload prewarmTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	taskID := payload.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	setTaskState(ctx, st.redis, taskID, "PROGRESS", map[string]any{"current": 0, "total": 1, "status": "Listing catalog..."})

	records, err := st.media.ListByPrefix(ctx, randomPoolMax)
	if err != nil {
		setTaskState(ctx, st.redis, taskID, "FAILURE", map[string]any{"message": err.Error()})
		return err
	}
	if len(records) == 0 {
		setTaskState(ctx, st.redis, taskID, "SUCCESS", map[string]any{"message": "No images to prewarm.", "total": 0})
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	cached, err := st.cache.GetPlaceholders(ids)
	if err != nil {
		setTaskState(ctx, st.redis, taskID, "FAILURE", map[string]any{"message": err.Error()})
		return err
	}

	warmed := 0
	skipped := 0
	failed := 0
	total := len(records)
	for i, rec := range records {
		if _, ok := cached[rec.ID]; ok {
			skipped++
		} else if _, err := st.enricher.placeholderFor(ctx, rec); err != nil {
			logger.Warn("prewarm: preview fetch failed", "task_id", taskID, "id", rec.ID, "error", err)
			failed++
		} else {
			warmed++
		}

		if i%20 == 0 || i == total-1 {
			setTaskState(ctx, st.redis, taskID, "PROGRESS", map[string]any{
				"current": i + 1,
				"total":   total,
				"status":  fmt.Sprintf("warmed:%d cached:%d failed:%d", warmed, skipped, failed),
			})
		}
	}

	cacheSize, _ := st.cache.CountPlaceholders()
	setTaskState(ctx, st.redis, taskID, "SUCCESS", map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Prewarm completed. warmed:%d cached:%d failed:%d", warmed, skipped, failed),
		"warmed_count":  warmed,
		"skipped_count": skipped,
		"failed_count":  failed,
		"total":         total,
		"cache_size":    cacheSize,
	})
	return nil
}
