package api_gateway

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a backing store the gateway cannot serve without
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthHandler pings every dependency concurrently. Any failure turns the response
// into 503 so orchestrators stop routing traffic to this instance.
func healthHandler(deps map[string]Pinger, timeout time.Duration) gin.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		results := make([]dependencyStatus, len(names))
		var wg sync.WaitGroup
		for i, name := range names {
			wg.Add(1)
			go func(i int, p Pinger) {
				defer wg.Done()
				if err := p.Ping(ctx); err != nil {
					results[i] = dependencyStatus{Status: "down", Error: err.Error()}
					return
				}
				results[i] = dependencyStatus{Status: "up"}
			}(i, deps[name])
		}
		wg.Wait()

		status, code := "ok", http.StatusOK
		checks := make(map[string]dependencyStatus, len(names))
		for i, name := range names {
			checks[name] = results[i]
			if results[i].Status != "up" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		})
	}
}
