package handler

import (
	"net/http"
	"runtime"
	"time"

	"keysaccounting-api/internal/service"
	"keysaccounting-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	lending     *service.LendingService
	store       Pinger
	backendType string // sqlite, postgres, mysql or memory
	broadcast   bool
	startTime   time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(lending *service.LendingService, store Pinger, backendType string, broadcast bool) *AdminHandler {
	return &AdminHandler{
		lending:     lending,
		store:       store,
		backendType: backendType,
		broadcast:   broadcast,
		startTime:   time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["backend_type"] = h.backendType
	stats["cache_broadcast"] = h.broadcast

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	// Store and lending stats
	if err := h.store.Ping(ctx); err != nil {
		stats["store"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	} else {
		lending := map[string]interface{}{
			"status":           "connected",
			"pending_requests": len(h.lending.PendingRequests()),
		}
		if outstanding, err := h.lending.OutstandingLoans(ctx); err == nil {
			lending["outstanding_loans"] = len(outstanding)
		}
		stats["store"] = lending
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
