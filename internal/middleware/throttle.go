package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	throttleMaxClients = 10000
	throttleIdleTTL    = 10 * time.Minute
)

// ClientThrottle limits requests per client IP with a token bucket.
type ClientThrottle struct {
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
	logger   *logrus.Logger
}

// NewClientThrottle allows rps sustained requests per client with bursts up to burst.
// Buckets of idle clients are dropped after ten minutes.
func NewClientThrottle(rps float64, burst int, logger *logrus.Logger) *ClientThrottle {
	if burst <= 0 {
		burst = 1
	}
	return &ClientThrottle{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](throttleMaxClients, nil, throttleIdleTTL),
		logger:   logger,
	}
}

func (t *ClientThrottle) limiter(ip string) *rate.Limiter {
	if l, ok := t.limiters.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(t.limit, t.burst)
	t.limiters.Add(ip, l)
	return l
}

// Limit rejects requests over the client's budget with 429 and a Retry-After hint.
func (t *ClientThrottle) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		r := t.limiter(ip).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			retry := int(math.Ceil(delay.Seconds()))
			if retry < 1 || delay == rate.InfDuration {
				retry = 1
			}
			t.logger.WithFields(logrus.Fields{
				"client_ip": ip,
				"path":      c.Request.URL.Path,
			}).Debug("Client throttled")

			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
