package confwatcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/test"
)

func writeConf(t *testing.T, fpath string) {
	err := os.WriteFile(fpath, []byte("logLevel: debug\n"), 0o644)
	require.NoError(t, err)
}

func newWatcher(t *testing.T, fpath string) *ConfWatcher {
	w := &ConfWatcher{
		FilePath: fpath,
		Debounce: 50 * time.Millisecond,
		Parent:   test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)
	return w
}

func requireSignal(t *testing.T, w *ConfWatcher) {
	select {
	case <-w.Watch():
	case <-time.After(1 * time.Second):
		t.Fatal("timed out")
	}
}

func requireNoSignal(t *testing.T, w *ConfWatcher) {
	select {
	case <-time.After(300 * time.Millisecond):
	case <-w.Watch():
		t.Fatal("unexpected signal")
	}
}

func TestNoFile(t *testing.T) {
	w := &ConfWatcher{FilePath: "/nonexistent/camrecorder.yml"}
	err := w.Initialize()
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "camrecorder.yml")
	writeConf(t, fpath)

	w := newWatcher(t, fpath)
	defer w.Close()

	writeConf(t, fpath)
	requireSignal(t, w)
}

func TestWriteMultipleTimes(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "camrecorder.yml")
	writeConf(t, fpath)

	w := newWatcher(t, fpath)
	defer w.Close()

	writeConf(t, fpath)
	time.Sleep(10 * time.Millisecond)
	writeConf(t, fpath)

	requireSignal(t, w)
	requireNoSignal(t, w)
}

func TestOtherFile(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "camrecorder.yml")
	writeConf(t, fpath)

	w := newWatcher(t, fpath)
	defer w.Close()

	writeConf(t, filepath.Join(dir, "other.yml"))
	requireNoSignal(t, w)
}

func TestDeleteCreate(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "camrecorder.yml")
	writeConf(t, fpath)

	w := newWatcher(t, fpath)
	defer w.Close()

	os.Remove(fpath)
	time.Sleep(10 * time.Millisecond)
	writeConf(t, fpath)

	requireSignal(t, w)
}

func TestSymlinkDeleteCreate(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "camrecorder.yml")
	writeConf(t, fpath)

	err := os.Symlink(fpath, fpath+"-sym")
	require.NoError(t, err)

	w := newWatcher(t, fpath+"-sym")
	defer w.Close()

	os.Remove(fpath)
	writeConf(t, fpath)

	requireSignal(t, w)
}
