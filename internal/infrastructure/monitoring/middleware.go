package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures an extraction run
type Timer struct {
	start    time.Time
	metrics  *Metrics
	siteType string
}

// NewTimer starts a timer for one extraction. A nil metrics is allowed.
func NewTimer(metrics *Metrics, siteType string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		siteType: siteType,
	}
}

// Stop records the extraction and returns the elapsed time
func (t *Timer) Stop(success bool, fields FieldCounts) time.Duration {
	duration := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordExtraction(t.siteType, success, duration, fields)
	}
	return duration
}
