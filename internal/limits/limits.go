package limits

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/n0madic/claude-chatmock/internal/auth"
)

const snapshotFilename = "usage_limits.json"

// Window is one rate-limit window reported by the upstream.
type Window struct {
	UsedPercent     float64 `json:"used_percent"`
	WindowMinutes   *int    `json:"window_minutes"`
	ResetsInSeconds *int    `json:"resets_in_seconds"`
}

// Snapshot holds the primary (short) and secondary (weekly) windows.
type Snapshot struct {
	Primary   *Window `json:"primary,omitempty"`
	Secondary *Window `json:"secondary,omitempty"`
}

// Stored is a snapshot with the time it was captured.
type Stored struct {
	CapturedAt time.Time
	Snapshot   Snapshot
}

type storedDisk struct {
	CapturedAt string  `json:"captured_at"`
	Primary    *Window `json:"primary,omitempty"`
	Secondary  *Window `json:"secondary,omitempty"`
}

// Recorder receives the headers of every successful upstream response.
type Recorder interface {
	Record(headers http.Header)
}

// FileRecorder persists the latest snapshot as JSON. An empty Path selects
// usage_limits.json in auth.HomeDir.
type FileRecorder struct {
	Path string
}

func (r *FileRecorder) path() string {
	if r.Path != "" {
		return r.Path
	}
	return filepath.Join(auth.HomeDir(), snapshotFilename)
}

// Record stores the snapshot parsed from headers. Headers without rate
// limit information leave the previous snapshot in place.
func (r *FileRecorder) Record(headers http.Header) {
	if headers == nil {
		return
	}
	r.Store(ParseHeaders(headers), time.Now().UTC())
}

// Store writes snapshot to disk. Failures are logged, never returned.
func (r *FileRecorder) Store(snapshot *Snapshot, capturedAt time.Time) {
	if snapshot == nil {
		return
	}
	path := r.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Debug("limits.store", "error", err)
		return
	}
	data, err := json.MarshalIndent(storedDisk{
		CapturedAt: capturedAt.UTC().Format(time.RFC3339),
		Primary:    snapshot.Primary,
		Secondary:  snapshot.Secondary,
	}, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		slog.Debug("limits.store", "error", err)
	}
}

// Load reads the stored snapshot. It returns nil when none is available.
func (r *FileRecorder) Load() *Stored {
	data, err := os.ReadFile(r.path())
	if err != nil {
		return nil
	}
	var disk storedDisk
	if err := json.Unmarshal(data, &disk); err != nil || disk.CapturedAt == "" {
		return nil
	}
	captured, err := time.Parse(time.RFC3339, disk.CapturedAt)
	if err != nil {
		return nil
	}
	if disk.Primary == nil && disk.Secondary == nil {
		return nil
	}
	return &Stored{
		CapturedAt: captured,
		Snapshot:   Snapshot{Primary: disk.Primary, Secondary: disk.Secondary},
	}
}

// ParseHeaders extracts rate limit windows from x-codex-* response headers.
func ParseHeaders(headers http.Header) *Snapshot {
	primary := parseWindow(headers, "x-codex-primary")
	secondary := parseWindow(headers, "x-codex-secondary")
	if primary == nil && secondary == nil {
		return nil
	}
	return &Snapshot{Primary: primary, Secondary: secondary}
}

func parseWindow(headers http.Header, prefix string) *Window {
	used, err := strconv.ParseFloat(headers.Get(prefix+"-used-percent"), 64)
	if err != nil || math.IsNaN(used) || math.IsInf(used, 0) {
		return nil
	}
	w := &Window{UsedPercent: used}
	if i, err := strconv.Atoi(headers.Get(prefix + "-window-minutes")); err == nil {
		w.WindowMinutes = &i
	}
	if i, err := strconv.Atoi(headers.Get(prefix + "-reset-after-seconds")); err == nil {
		w.ResetsInSeconds = &i
	}
	return w
}

// ResetAt returns when w resets, or nil when unknown.
func ResetAt(capturedAt time.Time, w *Window) *time.Time {
	if w == nil || w.ResetsInSeconds == nil {
		return nil
	}
	t := capturedAt.Add(time.Duration(*w.ResetsInSeconds) * time.Second)
	return &t
}
