package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (st *appState) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSONOrBadRequest(w, r, &body, "username and password are required") {
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		badRequest(w, "username and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r)
	allowed, remaining, resetIn := st.checkLoginRate(ctx, ip)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", loginMaxAttempts))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(resetIn).Unix()))
	if !allowed {
		minutes := int(resetIn.Minutes()) + 1
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": fmt.Sprintf("Too many login attempts. Please try again in %d minutes.", minutes),
		})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(st.cfg.adminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(body.Password), []byte(st.cfg.adminPassword)) == 1
	if !userOK || !passOK {
		logger.Warn("login rejected", "ip", ip)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
		return
	}

	token := uuid.NewString()
	if err := st.redis.Set(ctx, adminSessionPrefix+token, body.Username, adminSessionTTL).Err(); err != nil {
		logger.Error("failed to persist admin session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Login failed"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(adminSessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   st.cfg.secureCookies,
	})
	logger.Info("admin logged in", "ip", ip)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (st *appState) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if token := sessionToken(r); token != "" {
		st.redis.Del(r.Context(), adminSessionPrefix+token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   st.cfg.secureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// checkLoginRate counts login attempts per client IP inside a fixed window.
// The counter lives in Redis so the limit holds across restarts.
func (st *appState) checkLoginRate(ctx context.Context, ip string) (allowed bool, remaining int, resetIn time.Duration) {
	key := loginAttemptsPrefix + ip
	count, err := st.redis.Incr(ctx, key).Result()
	if err != nil {
		logger.Error("login rate counter failed", "ip", ip, "error", err)
		return true, loginMaxAttempts, loginWindow
	}
	if count == 1 {
		st.redis.Expire(ctx, key, loginWindow)
	}

	resetIn = loginWindow
	if ttl, err := st.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		resetIn = ttl
	}

	remaining = loginMaxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= loginMaxAttempts, remaining, resetIn
}
