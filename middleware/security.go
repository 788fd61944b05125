package middleware

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 10 * 1024 * 1024

// RateLimiter stores rate limiters per route and client IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mutex    sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

// GetLimiterWithConfig returns a limiter for a composite key with dynamic limits
func (rl *RateLimiter) GetLimiterWithConfig(key string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(limit, burst)
		rl.limiters[key] = limiter
	}
	rl.lastSeen[key] = time.Now()
	return limiter
}

// Cleanup removes limiters idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	removed := 0
	now := time.Now()
	for key, t := range rl.lastSeen {
		if now.Sub(t) > maxIdle {
			delete(rl.limiters, key)
			delete(rl.lastSeen, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.limiters)
}

// limitsFor picks the budget for a route. Money-moving endpoints get the tightest one.
func limitsFor(method, path string) (rate.Limit, int, bool) {
	switch {
	case strings.HasPrefix(path, "/api/webhooks/"), path == "/health":
		return 0, 0, false
	case strings.HasSuffix(path, "/ws"):
		return rate.Every(time.Second), 5, true
	case strings.HasSuffix(path, "/capture-and-transfer"),
		strings.HasSuffix(path, "/booking-payment"),
		strings.HasPrefix(path, "/api/admin/approve-payment"),
		strings.HasPrefix(path, "/api/admin/reject-payment"):
		return rate.Every(6 * time.Second), 5, true
	case method == http.MethodGet:
		return rate.Every(time.Second), 10, true
	default:
		return rate.Every(time.Minute / 30), 20, true
	}
}

// RateLimitMiddleware implements rate limiting per route and client IP
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		lim, burst, limited := limitsFor(c.Request.Method, path)
		if !limited {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limiter := rl.GetLimiterWithConfig(path+"|"+clientIP, lim, burst)
		if !limiter.Allow() {
			log.Printf("🚫 Rate limit exceeded for %s %s from %s", c.Request.Method, path, clientIP)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// InputValidationMiddleware caps body size and content types on writes
func InputValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBodyBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body exceeds maximum size limit"})
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}

		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			contentType := c.GetHeader("Content-Type")
			if c.Request.ContentLength != 0 &&
				!strings.Contains(contentType, "application/json") &&
				!strings.Contains(contentType, "multipart/form-data") &&
				!strings.Contains(contentType, "application/x-www-form-urlencoded") {
				c.JSON(http.StatusUnsupportedMediaType, gin.H{
					"error": "Content-Type must be application/json, multipart/form-data, or application/x-www-form-urlencoded",
				})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// AuditLogMiddleware logs every request with its status and latency
func AuditLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		caller := c.GetString(ContextUserID)
		if c.GetBool(ContextServiceRole) {
			caller = serviceRole
		}

		if status >= 400 {
			log.Printf("⚠️ AUDIT: %s %s returned %d in %v (caller=%s ip=%s)", c.Request.Method, c.Request.URL.Path, status, duration, caller, c.ClientIP())
		} else {
			log.Printf("✅ AUDIT: %s %s returned %d in %v (caller=%s)", c.Request.Method, c.Request.URL.Path, status, duration, caller)
		}
	}
}
