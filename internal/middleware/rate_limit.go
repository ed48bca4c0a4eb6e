package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

const rateLimitWindow = time.Minute

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	log              logger.Logger
}

// NewRateLimitMiddleware: requestsPerMinute <= 0 отключает ограничение
func NewRateLimitMiddleware(rateLimitService service.RateLimitService, requestsPerMinute int, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            requestsPerMinute,
		log:              log,
	}
}

// Limit считает запросы аутентифицированного пользователя, иначе IP
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.limit <= 0 {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if userID, ok := c.Get(ContextUserID); ok {
			key = fmt.Sprintf("user:%v", userID)
		}

		allowed, retryAfter, err := m.rateLimitService.Allow(c.Request.Context(), key, m.limit, rateLimitWindow)
		if err != nil {
			// Redis недоступен: не блокируем запросы
			m.log.Error("Rate limit check failed", "error", err, "key", key)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
