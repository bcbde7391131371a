package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSourceWatcher_TriggersReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0644))

	var reloads int32
	w, err := NewSourceWatcher(path, 20*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&reloads, 1)
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("package x\n\nvar y int\n"), 0644))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&reloads) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSourceWatcher_IgnoresOtherFilesInDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0644))

	var reloads int32
	w, err := NewSourceWatcher(path, 20*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&reloads, 1)
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0644))
	time.Sleep(100 * time.Millisecond)

	require.EqualValues(t, 0, atomic.LoadInt32(&reloads))
}
