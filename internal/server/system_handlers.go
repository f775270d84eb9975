package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristomenis/vigil/internal/modules/analytics"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	coordinator *analytics.Coordinator
	startedAt   time.Time
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, coordinator *analytics.Coordinator) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		coordinator: coordinator,
		startedAt:   time.Now(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.getSystemStats()

	status := map[string]interface{}{
		"status":   "ok",
		"uptime_s": time.Since(h.startedAt).Seconds(),
		"resources": map[string]interface{}{
			"cpu_percent": cpuPct,
			"ram_percent": ramPct,
		},
	}

	// Analytics staleness. A zero LastSuccess means no cycle has completed yet.
	lastSuccess := h.coordinator.LastSuccess()
	if lastSuccess.IsZero() {
		status["analytics"] = map[string]interface{}{
			"ran": false,
		}
	} else {
		staleness := time.Since(lastSuccess)
		status["analytics"] = map[string]interface{}{
			"ran":          true,
			"last_success": lastSuccess.Format(time.RFC3339),
			"staleness_s":  staleness.Seconds(),
			"stale":        staleness > 5*time.Minute,
		}
	}

	h.writeJSON(w, status)
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"data_dir":     h.dataDir,
		"data_size_mb": h.getDirSize(h.dataDir),
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
