package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReportsWrites(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "agent.json")
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(watched, []byte(`{}`), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{watched}, 20*time.Millisecond, nil, func(changed []string) {
			changes <- changed
		})
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte(`{"type":"ppo"}`), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte(`{"type":"ppo"} `), 0o644))

	select {
	case got := <-changes:
		assert.Equal(t, []string{watched}, got)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing", "a.json")}, time.Millisecond, nil, func([]string) {})
	assert.Error(t, err)
}
