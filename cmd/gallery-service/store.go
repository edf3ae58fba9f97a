package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// cacheStore persists derived blur placeholders so repeat pages skip the
// preview round-trips. Single connection with a mutex; sqlite busy errors
// are retried with backoff.
type cacheStore struct {
	db *sql.DB
	mu sync.Mutex
}

func openCacheStore(path string) (*cacheStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s for read/write: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open failed for %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if _, err := db.Exec(`PRAGMA journal_mode=DELETE;`); err != nil {
		return nil, fmt.Errorf("set journal mode failed for %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("set busy timeout failed for %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS placeholders (
			public_id TEXT PRIMARY KEY,
			data_url TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		return nil, err
	}
	return &cacheStore{db: db}, nil
}

func isRetryableSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is busy") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "unable to open database file")
}

func withSQLiteRetry(op func() error) error {
	var err error
	backoff := 50 * time.Millisecond
	for i := 0; i < 4; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isRetryableSQLiteError(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (s *cacheStore) Close() error {
	return s.db.Close()
}

func (s *cacheStore) GetPlaceholder(id string) (string, bool, error) {
	var dataURL string
	var found bool
	err := withSQLiteRetry(func() error {
		err := s.db.QueryRow(`SELECT data_url FROM placeholders WHERE public_id = ?`, id).Scan(&dataURL)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return dataURL, found, err
}

func (s *cacheStore) GetPlaceholders(ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		placeholderMarks := strings.TrimRight(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf(
			"SELECT public_id, data_url FROM placeholders WHERE public_id IN (%s)",
			placeholderMarks,
		)
		args := make([]any, 0, len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}

		err := withSQLiteRetry(func() error {
			rows, err := s.db.Query(query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id, dataURL string
				if err := rows.Scan(&id, &dataURL); err != nil {
					return err
				}
				result[id] = dataURL
			}
			return rows.Err()
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *cacheStore) SetPlaceholder(id, dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(func() error {
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO placeholders (public_id, data_url, updated_at) VALUES (?, ?, ?)`,
			id, dataURL, time.Now().Unix(),
		)
		return err
	})
}

func (s *cacheStore) DeletePlaceholder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM placeholders WHERE public_id = ?`, id)
		return err
	})
}

func (s *cacheStore) CountPlaceholders() (int, error) {
	var count int
	err := withSQLiteRetry(func() error {
		return s.db.QueryRow(`SELECT COUNT(*) FROM placeholders`).Scan(&count)
	})
	return count, err
}
