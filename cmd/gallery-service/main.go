package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	mode := flag.String("mode", "all", "run mode: all|api|worker")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	st, err := newAppState(cfg)
	if err != nil {
		logger.Error("failed to initialize app state", "error", err)
		os.Exit(1)
	}
	defer st.redis.Close()
	defer st.asynqCli.Close()
	defer st.cache.Close()
	defer st.inspector.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	st.sessions.StartSweeper(ctx, sweepInterval)

	switch *mode {
	case "api":
		runAPI(st)
	case "worker":
		runWorker(st)
	case "all":
		go runWorker(st)
		runAPI(st)
	default:
		logger.Error("unknown run mode", "mode", *mode)
		os.Exit(1)
	}
}

func loadConfig() (config, error) {
	cfg := config{
		redisAddr:        envOrDefault("REDIS_ADDR", "redis:6379"),
		redisPassword:    os.Getenv("REDIS_PASSWORD"),
		redisDB:          envInt("REDIS_DB", 0),
		interactiveQueue: envOrDefault("ASYNQ_INTERACTIVE_QUEUE", "interactive"),
		concurrency:      envInt("ASYNQ_CONCURRENCY", 10),
		apiAddr:          envOrDefault("GALLERY_API_ADDR", ":8001"),
		cachePath:        envOrDefault("PLACEHOLDER_DB_PATH", "/app/placeholders.db"),
		cloudName:        os.Getenv("CLOUDINARY_CLOUD_NAME"),
		apiKey:           os.Getenv("CLOUDINARY_API_KEY"),
		apiSecret:        os.Getenv("CLOUDINARY_API_SECRET"),
		folder:           os.Getenv("CLOUDINARY_FOLDER"),
		adminUsername:    os.Getenv("ADMIN_USERNAME"),
		adminPassword:    os.Getenv("ADMIN_PASSWORD"),
		secureCookies:    envBool("SECURE_COOKIES", true),
	}

	missing := []string{}
	required := []struct {
		name  string
		value string
	}{
		{"CLOUDINARY_CLOUD_NAME", cfg.cloudName},
		{"CLOUDINARY_API_KEY", cfg.apiKey},
		{"CLOUDINARY_API_SECRET", cfg.apiSecret},
		{"CLOUDINARY_FOLDER", cfg.folder},
		{"ADMIN_USERNAME", cfg.adminUsername},
		{"ADMIN_PASSWORD", cfg.adminPassword},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func newAppState(cfg config) (*appState, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	cache, err := openCacheStore(cfg.cachePath)
	if err != nil {
		return nil, err
	}

	media := newCloudinaryClient(cfg)
	sessions := newSessionStore(sessionTTL)
	enr := newEnricher(media, cache)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.redisAddr, Password: cfg.redisPassword, DB: cfg.redisDB}
	return &appState{
		cfg:       cfg,
		redis:     rdb,
		asynqCli:  asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		media:     media,
		cache:     cache,
		sessions:  sessions,
		enricher:  enr,
		composer:  newQueryComposer(media, sessions, enr, cfg.folder),
	}, nil
}

func runAPI(st *appState) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/api/images", st.handleImages)
	mux.HandleFunc("/api/tags", st.handleTagsGet)
	mux.HandleFunc("/api/auth/login", st.handleLogin)
	mux.HandleFunc("/api/auth/logout", st.handleLogout)
	mux.HandleFunc("/api/tasks/status", st.handleTaskStatus)

	mux.HandleFunc("/api/upload", st.requireSession(st.handleUpload))
	mux.HandleFunc("/api/images/bulk-delete", st.requireSession(st.handleImagesBulkDelete))
	mux.HandleFunc("/api/tags/add", st.requireSession(st.handleTagAdd))
	mux.HandleFunc("/api/tags/remove", st.requireSession(st.handleTagRemove))
	mux.HandleFunc("/api/placeholders/prewarm", st.requireSession(st.handlePlaceholderPrewarm))

	logger.Info("gallery api listening", "addr", st.cfg.apiAddr)
	if err := http.ListenAndServe(st.cfg.apiAddr, loggingMiddleware(mux)); err != nil {
		logger.Error("api server stopped", "error", err)
		os.Exit(1)
	}
}

func runWorker(st *appState) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: st.cfg.redisAddr, Password: st.cfg.redisPassword, DB: st.cfg.redisDB},
		asynq.Config{
			Concurrency: st.cfg.concurrency,
			Queues: map[string]int{
				st.cfg.interactiveQueue: 4,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeBulkDelete, st.processBulkDeleteTask)
	mux.HandleFunc(taskTypePrewarm, st.processPrewarmTask)

	logger.Info("gallery worker started",
		"interactive_queue", st.cfg.interactiveQueue,
		"concurrency", st.cfg.concurrency,
	)
	if err := srv.Run(mux); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
