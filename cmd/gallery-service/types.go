package main

type config struct {
	redisAddr        string
	redisPassword    string
	redisDB          int
	interactiveQueue string
	concurrency      int
	apiAddr          string
	cachePath        string

	cloudName string
	apiKey    string
	apiSecret string
	folder    string

	adminUsername string
	adminPassword string
	secureCookies bool
}

type appState struct {
	cfg       config
	redis     RedisClient
	asynqCli  AsynqClient
	inspector QueueInspector
	media     MediaLibrary
	cache     PlaceholderCache
	sessions  *sessionStore
	enricher  *enricher
	composer  *queryComposer
}

// imageRecord is the normalized view of one hosted asset. BlurPlaceholder
// stays empty until the enricher has run over the batch.
type imageRecord struct {
	ID              string   `json:"id"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	Format          string   `json:"format"`
	Tags            []string `json:"tags"`
	BlurPlaceholder string   `json:"blur_placeholder,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

type searchPage struct {
	records    []imageRecord
	nextCursor string
}

type queueTaskStatus struct {
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	UpdatedAt string      `json:"updated_at"`
}

type bulkDeleteTaskPayload struct {
	TaskID string   `json:"task_id"`
	IDs    []string `json:"ids"`
}

type prewarmTaskPayload struct {
	TaskID string `json:"task_id"`
}
