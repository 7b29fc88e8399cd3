package limits

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    *Snapshot
	}{
		{
			name: "both windows",
			headers: map[string]string{
				"x-codex-primary-used-percent":          "42.5",
				"x-codex-primary-window-minutes":        "300",
				"x-codex-primary-reset-after-seconds":   "1200",
				"x-codex-secondary-used-percent":        "10",
				"x-codex-secondary-window-minutes":      "10080",
				"x-codex-secondary-reset-after-seconds": "86400",
			},
			want: &Snapshot{
				Primary:   &Window{UsedPercent: 42.5, WindowMinutes: intPtr(300), ResetsInSeconds: intPtr(1200)},
				Secondary: &Window{UsedPercent: 10, WindowMinutes: intPtr(10080), ResetsInSeconds: intPtr(86400)},
			},
		},
		{
			name:    "primary only with bad window",
			headers: map[string]string{"x-codex-primary-used-percent": "5", "x-codex-primary-window-minutes": "soon"},
			want:    &Snapshot{Primary: &Window{UsedPercent: 5}},
		},
		{name: "none", headers: map[string]string{"content-type": "text/event-stream"}},
		{name: "invalid float", headers: map[string]string{"x-codex-primary-used-percent": "abc"}},
		{name: "nan", headers: map[string]string{"x-codex-primary-used-percent": "NaN"}},
		{name: "inf", headers: map[string]string{"x-codex-secondary-used-percent": "+Inf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, ParseHeaders(h))
		})
	}
}

func TestFileRecorderRoundTrip(t *testing.T) {
	r := &FileRecorder{Path: filepath.Join(t.TempDir(), "nested", "limits.json")}
	assert.Nil(t, r.Load())

	h := http.Header{}
	h.Set("x-codex-primary-used-percent", "75")
	h.Set("x-codex-primary-reset-after-seconds", "60")
	r.Record(h)

	stored := r.Load()
	require.NotNil(t, stored)
	require.NotNil(t, stored.Snapshot.Primary)
	assert.Equal(t, 75.0, stored.Snapshot.Primary.UsedPercent)
	assert.Nil(t, stored.Snapshot.Secondary)
	assert.WithinDuration(t, time.Now(), stored.CapturedAt, time.Minute)

	info, err := os.Stat(r.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileRecorderKeepsSnapshotWithoutHeaders(t *testing.T) {
	r := &FileRecorder{Path: filepath.Join(t.TempDir(), "limits.json")}
	r.Store(&Snapshot{Secondary: &Window{UsedPercent: 1}}, time.Now())
	r.Record(http.Header{"Content-Type": {"text/event-stream"}})
	r.Record(nil)

	stored := r.Load()
	require.NotNil(t, stored)
	assert.Equal(t, 1.0, stored.Snapshot.Secondary.UsedPercent)
}

func TestFileRecorderLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.json")
	r := &FileRecorder{Path: path}

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	assert.Nil(t, r.Load())

	require.NoError(t, os.WriteFile(path, []byte(`{"captured_at":"2024-01-01T00:00:00Z"}`), 0o600))
	assert.Nil(t, r.Load(), "no windows")

	require.NoError(t, os.WriteFile(path, []byte(`{"captured_at":"yesterday","primary":{"used_percent":1}}`), 0o600))
	assert.Nil(t, r.Load(), "bad timestamp")
}

func TestStoreNilIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.json")
	(&FileRecorder{Path: path}).Store(nil, time.Now())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestResetAt(t *testing.T) {
	captured := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ResetAt(captured, &Window{ResetsInSeconds: intPtr(90)})
	require.NotNil(t, got)
	assert.Equal(t, captured.Add(90*time.Second), *got)

	assert.Nil(t, ResetAt(captured, nil))
	assert.Nil(t, ResetAt(captured, &Window{UsedPercent: 3}))
}
