// Package ratelimit implements per-client fixed-window request throttling.
//
// Counters live in process memory: a map of client key → {count, resetAt}
// guarded by a single mutex, so increment-and-compare is atomic per key and
// two racing requests can never both slip under the threshold on a stale
// read. Windows reset lazily when a key is next seen after its window
// elapsed; a periodic sweep inside Allow evicts keys nobody touches so the
// map doesn't grow without bound.
//
// This is correct for a single server instance only. A clustered deployment
// needs the counters in a shared store keyed identically — that swap stays
// behind the Limiter type.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config defines one throttling window.
type Config struct {
	// Limit is the max requests counted per window per key.
	Limit int
	// Window is the fixed window duration.
	Window time.Duration
	// Message is sent in the 429 envelope when the limit is exceeded.
	Message string
	// SkipSuccessful refunds requests that complete with a 2xx/3xx status,
	// so only failed attempts accrue toward the limit. Used on login:
	// legitimate rapid successful logins pass freely while credential
	// guessing (which fails) burns through the 5-attempt budget.
	SkipSuccessful bool
}

// General returns the window applied to all inbound traffic:
// 100 requests per 15 minutes per IP.
func General() Config {
	return Config{
		Limit:   100,
		Window:  15 * time.Minute,
		Message: "Too many requests from this IP, please try again later.",
	}
}

// Auth returns the strict window applied to login and registration:
// 5 failed attempts per 15 minutes per IP.
func Auth() Config {
	return Config{
		Limit:          5,
		Window:         15 * time.Minute,
		Message:        "Too many login attempts, please try again after 15 minutes.",
		SkipSuccessful: true,
	}
}

// API returns the window applied to authenticated resource routes:
// 100 requests per 15 minutes per IP.
func API() Config {
	return Config{
		Limit:   100,
		Window:  15 * time.Minute,
		Message: "Too many API requests, please try again later.",
	}
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed-window counters per key. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time

	// now is the clock; tests replace it to step through windows without
	// sleeping.
	now func() time.Time
}

// New creates a Limiter for the given window config.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one request for key and reports whether it is within the
// limit. The count and the comparison happen under one lock acquisition.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w := l.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
	}

	if w.count >= l.cfg.Limit {
		return false
	}
	w.count++
	return true
}

// forgive undoes one counted request for key, leaving the window in place.
// Called by the middleware after a successful response when SkipSuccessful
// is set.
func (l *Limiter) forgive(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.windows[key]; w != nil && w.count > 0 {
		w.count--
	}
}

// sweep drops expired windows. Runs at most once per window duration so the
// common path stays a map lookup. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	l.lastSweep = now
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Handler wraps next with this limiter, keyed by client IP.
//
// The chi RealIP middleware runs earlier in the chain and rewrites
// RemoteAddr from X-Forwarded-For / X-Real-IP, so behind a proxy the key is
// the real client, not the proxy.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		if !l.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   l.cfg.Message,
			})
			return
		}

		if !l.cfg.SkipSuccessful {
			next.ServeHTTP(w, r)
			return
		}

		// Track the response status so successful requests can be refunded.
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if sw.status < http.StatusBadRequest {
			l.forgive(key)
		}
	})
}

// clientIP strips the port from RemoteAddr. RemoteAddr without a port
// (already rewritten by RealIP) is used as-is.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
