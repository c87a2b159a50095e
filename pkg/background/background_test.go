package background

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcherDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := 0
	w := &ConfigWatcher{
		Path:   path,
		Reload: func() error { reloaded++; return nil },
	}

	w.checkOnce() // first call always reloads (lastMod starts at zero value)
	if reloaded != 1 {
		t.Fatalf("reloaded = %d, want 1 after first check", reloaded)
	}

	w.checkOnce() // no change, must not reload again
	if reloaded != 1 {
		t.Fatalf("reloaded = %d, want 1 (no change)", reloaded)
	}

	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"a":2}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	w.checkOnce()
	if reloaded != 2 {
		t.Fatalf("reloaded = %d, want 2 after modification", reloaded)
	}
}

func TestConfigWatcherSurvivesMissingFile(t *testing.T) {
	w := &ConfigWatcher{Path: "/nonexistent/path/config.json", Reload: func() error { return nil }}
	w.checkOnce() // must not panic
}
