package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgtv/livestatus/internal/classify"
)

func TestLoadSignalsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.yaml")
	contents := "blockKeywords:\n  - captcha\nliveMarkers:\n  - broadcastState\\s*:\\s*\"ON_AIR\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	signals, err := LoadSignals(path)
	require.NoError(t, err)
	require.Equal(t, []string{"captcha"}, signals.BlockKeywords)
	require.Len(t, signals.LiveMarkers, 1)
	require.Empty(t, signals.OfflineMarkers)
}

func TestLoadSignalsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.json")
	contents := `{"blockKeywords":["denied"],"roomIdPatterns":["\"roomId\":\"(\\d+)\""]}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	signals, err := LoadSignals(path)
	require.NoError(t, err)
	require.Equal(t, []string{"denied"}, signals.BlockKeywords)
	require.Len(t, signals.RoomIDPatterns, 1)
}

func TestLoadSignalsRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := LoadSignals(path)
	require.Error(t, err)
}

func TestWatchSignalsReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blockKeywords:\n  - captcha\n"), 0o600))

	updates := make(chan []string, 8)
	watcher, err := WatchSignals(context.Background(), path, func(s classify.Signals) {
		updates <- s.BlockKeywords
	}, func(err error) {
		t.Logf("watch error: %v", err)
	})
	require.NoError(t, err)
	defer watcher.Stop()

	select {
	case initial := <-updates:
		require.Equal(t, []string{"captcha"}, initial)
	case <-time.After(2 * time.Second):
		t.Fatal("initial signals load not delivered")
	}

	require.NoError(t, os.WriteFile(path, []byte("blockKeywords:\n  - captcha\n  - firewall\n"), 0o600))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-updates:
			if len(got) == 2 {
				require.Equal(t, []string{"captcha", "firewall"}, got)
				return
			}
		case <-deadline:
			t.Fatal("updated signals not delivered")
		}
	}
}

func TestWatchSignalsFailsOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blockKeywords: [unterminated\n"), 0o600))

	_, err := WatchSignals(context.Background(), path, func(classify.Signals) {}, nil)
	require.Error(t, err)
}
