// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware attaches a request ID to every request.
//
// Description:
//
//	Honors an incoming X-Request-ID header so clients can correlate
//	retries; generates a UUID otherwise. The ID is stored in the gin
//	context and echoed in the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// getOrCreateRequestID returns the request ID set by the middleware,
// generating one when the middleware is not installed.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Set(requestIDKey, id)
	return id
}

// clientLimiters tracks one token bucket per client address.
//
// Thread Safety: safe for concurrent use.
type clientLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     rate.Limit
	burst   int
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterIdleExpiry is how long an idle client keeps its bucket.
const limiterIdleExpiry = 10 * time.Minute

func newClientLimiters(rps float64, burst int) *clientLimiters {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiters{
		clients: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// allow reports whether the client may proceed, creating its bucket on
// first sight and pruning idle ones opportunistically.
func (cl *clientLimiters) allow(client string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	entry, ok := cl.clients[client]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[client] = entry
		cl.prune(now)
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// prune drops buckets idle past the expiry. Caller holds the mutex.
func (cl *clientLimiters) prune(now time.Time) {
	for client, entry := range cl.clients {
		if now.Sub(entry.lastSeen) > limiterIdleExpiry {
			delete(cl.clients, client)
		}
	}
}

// RateLimitMiddleware rejects clients that exceed the per-client request
// budget.
//
// Description:
//
//	Each client IP gets an independent token bucket refilled at rps with
//	the given burst. Exhausted buckets answer 429 with a Retry-After
//	hint. A non-positive rps disables limiting entirely.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newClientLimiters(rps, burst)
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "request rate limit exceeded",
				Code:  CodeRateLimited,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
