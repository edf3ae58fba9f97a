package main

import "time"

const (
	taskTypeBulkDelete = "cg:bulk_delete_images"
	taskTypePrewarm    = "cg:prewarm_placeholders"

	taskMetaPrefix      = "cg:task-meta-"
	prewarmLastTask     = "cg:prewarm:last_task_id"
	loginAttemptsPrefix = "cg:login-attempts-"
	adminSessionPrefix  = "cg:admin-session-"

	// pageSize is the same in every sort mode so the gallery grid and
	// infinite scroll behave identically regardless of ordering.
	pageSize      = 12
	randomPoolMax = 500

	sessionTTL    = time.Hour
	sweepInterval = 5 * time.Minute

	enrichConcurrency = 6

	loginMaxAttempts = 5
	loginWindow      = 15 * time.Minute

	sessionCookieName = "charliegram_session"
	adminSessionTTL   = 30 * 24 * time.Hour
)
