package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"tradesim/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is the database dependency checked by readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db        Pinger
	pool      *pgxpool.Pool
	startedAt time.Time
	httpAddr  string
	appMode   string
	hostMem   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewHandler builds the health handler. pool may be nil, in which case pool
// statistics are omitted from the full report.
func NewHandler(db Pinger, pool *pgxpool.Pool, startedAt time.Time, httpAddr, appMode string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		db:        db,
		pool:      pool,
		startedAt: start,
		httpAddr:  strings.TrimSpace(httpAddr),
		appMode:   strings.TrimSpace(appMode),
		hostMem:   mem.VirtualMemoryWithContext,
	}
}

type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	UptimeSec   int64             `json:"uptime_sec"`
	Uptime      string            `json:"uptime"`
	App         appStats          `json:"app"`
	Process     processStats      `json:"process"`
	Runtime     runtimeStats      `json:"runtime"`
	Memory      memoryStats       `json:"memory"`
	Host        hostStats         `json:"host"`
	Database    databaseStats     `json:"database"`
	Build       buildStats        `json:"build"`
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

type appStats struct {
	HTTPAddr string `json:"http_addr"`
	AppMode  string `json:"app_mode"`
}

type processStats struct {
	PID      int    `json:"pid"`
	Hostname string `json:"hostname"`
	GoOS     string `json:"go_os"`
	GoArch   string `json:"go_arch"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GoMaxProcs int    `json:"gomaxprocs"`
	CPUCount   int    `json:"cpu_count"`
	NumGC      uint32 `json:"num_gc"`
}

type memoryStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
}

type hostStats struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	Error          string  `json:"error,omitempty"`
}

type databaseStats struct {
	Reachable  bool       `json:"reachable"`
	PingMs     int64      `json:"ping_ms"`
	Error      string     `json:"error,omitempty"`
	CheckedAt  string     `json:"checked_at"`
	TimeoutSec int        `json:"timeout_sec"`
	Pool       *poolStats `json:"pool,omitempty"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type buildStats struct {
	MainPath string `json:"main_path"`
	Version  string `json:"version"`
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	UptimeSec int64         `json:"uptime_sec"`
	Uptime    string        `json:"uptime"`
	Database  databaseStats `json:"database"`
	Host      hostStats     `json:"host"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) collectDB(ctx context.Context, includePool bool) databaseStats {
	const timeoutSec = 1
	stats := databaseStats{TimeoutSec: timeoutSec}
	if h.db == nil {
		stats.Error = "database is not configured"
		stats.CheckedAt = time.Now().UTC().Format(time.RFC3339)
		return stats
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, timeoutSec*time.Second)
	err := h.db.Ping(pingCtx)
	cancel()
	stats.PingMs = time.Since(start).Milliseconds()
	stats.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		stats.Error = err.Error()
	} else {
		stats.Reachable = true
	}
	if includePool && h.pool != nil {
		st := h.pool.Stat()
		stats.Pool = &poolStats{
			TotalConns:    st.TotalConns(),
			IdleConns:     st.IdleConns(),
			AcquiredConns: st.AcquiredConns(),
			MaxConns:      st.MaxConns(),
			AcquireCount:  st.AcquireCount(),
		}
	}
	return stats
}

func (h *Handler) collectHost(ctx context.Context) hostStats {
	vm, err := h.hostMem(ctx)
	if err != nil {
		return hostStats{Error: err.Error()}
	}
	return hostStats{TotalBytes: vm.Total, AvailableBytes: vm.Available, UsedPercent: vm.UsedPercent}
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready returns 503 while the database is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.collectDB(r.Context(), false)
	status, code := "ok", http.StatusOK
	if !db.Reachable {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Database:  db,
		Host:      h.collectHost(r.Context()),
	})
}

// Full returns process diagnostics for the admin console.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	db := h.collectDB(r.Context(), true)

	build := buildStats{}
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		build.MainPath = strings.TrimSpace(info.Main.Path)
		build.Version = strings.TrimSpace(info.Main.Version)
	}
	host, _ := os.Hostname()

	status, code := "ok", http.StatusOK
	diag := map[string]string{}
	if !db.Reachable {
		status, code = "degraded", http.StatusServiceUnavailable
		if db.Error != "" {
			diag["db_error"] = db.Error
		}
	}

	resp := healthResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		App:       appStats{HTTPAddr: h.httpAddr, AppMode: h.appMode},
		Process: processStats{
			PID:      os.Getpid(),
			Hostname: host,
			GoOS:     runtime.GOOS,
			GoArch:   runtime.GOARCH,
		},
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			CPUCount:   runtime.NumCPU(),
			NumGC:      ms.NumGC,
		},
		Memory: memoryStats{
			AllocBytes:     ms.Alloc,
			HeapInuseBytes: ms.HeapInuse,
			SysBytes:       ms.Sys,
			HeapObjects:    ms.HeapObjects,
		},
		Host:     h.collectHost(r.Context()),
		Database: db,
		Build:    build,
	}
	if len(diag) > 0 {
		resp.Diagnostics = diag
	}
	httputil.WriteJSON(w, code, resp)
}
