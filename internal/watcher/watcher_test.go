package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w := New(dir, 16, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestWatcher_InitialScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report_001.txt")
	require.NoError(t, os.WriteFile(path, []byte("FINDINGS: clear lungs"), 0o644))

	w := startWatcher(t, dir)

	ev := waitEvent(t, w)
	assert.Equal(t, path, ev.Path)
	assert.NotEmpty(t, ev.Fingerprint)
	assert.Equal(t, int64(len("FINDINGS: clear lungs")), ev.Size)
}

func TestWatcher_NewFile(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	// Give Run a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "report_002.md")
	require.NoError(t, os.WriteFile(path, []byte("IMPRESSION: unremarkable"), 0o644))

	ev := waitEvent(t, w)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_UnchangedContentNotReannounced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report_003.txt")
	require.NoError(t, os.WriteFile(path, []byte("stable content"), 0o644))

	w := startWatcher(t, dir)
	first := waitEvent(t, w)

	// Touch with identical bytes; the fingerprint check must swallow it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("stable content"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected re-announcement: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}

	// Changed bytes give a fresh fingerprint and a fresh event.
	require.NoError(t, os.WriteFile(path, []byte("amended content"), 0o644))
	second := waitEvent(t, w)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestWatcher_IgnoresForeignExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.docx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.swp"), []byte("x"), 0o644))

	w := startWatcher(t, dir)

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for foreign file: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestEligible(t *testing.T) {
	assert.True(t, Eligible("/drop/report.pdf"))
	assert.True(t, Eligible("/drop/REPORT.TXT"))
	assert.True(t, Eligible("/drop/notes.md"))
	assert.False(t, Eligible("/drop/image.dcm"))
	assert.False(t, Eligible("/drop/report"))
}
