package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/atmolog/internal/loader"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage"
	"github.com/xtxerr/atmolog/internal/storage/config"
	atmotest "github.com/xtxerr/atmolog/internal/testing"
)

func init() {
	logging.Discard()
}

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Medium = config.MediumMemory
	cfg.DataDir = ""
	cfg.Capacity = 4
	cfg.WindowMax = 2
	cfg.Query.Enabled = false

	store, err := storage.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	return &shell{store: store, out: &out, ctx: context.Background()}, &out
}

func TestShellCommands(t *testing.T) {
	sh, out := newTestShell(t)
	for _, r := range atmotest.Sequence(1, 6) {
		sh.store.Append(r)
	}

	tests := []struct {
		line string
		want string
	}{
		{"len", "4/4\n"},
		{"agg", "humidity     1.00 .. 6.00"},
		{"tail 1", "0,6,3,1006"},
		{"window 10", "1,5,"},
		{"summary 2", "points: 2"},
		{"summary 2 pressure", "pressure"},
		{"summary 2 wind", `unknown field "wind"`},
		{"sql SELECT 1", "error: "},
		{"sql", "usage: sql <query>"},
		{"tail x", "expected a non-negative count"},
		{"bogus", `unknown command "bogus"`},
		{"help", "summary"},
	}

	for _, tt := range tests {
		out.Reset()
		assert.False(t, sh.exec(tt.line), tt.line)
		assert.Contains(t, out.String(), tt.want, tt.line)
	}

	// window is capped at the configured maximum
	out.Reset()
	sh.exec("window 10")
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)

	out.Reset()
	sh.exec("summary 0 temperature")
	assert.Contains(t, out.String(), "temperature")
	assert.NotContains(t, out.String(), "humidity")
}

func TestShellClearAndExit(t *testing.T) {
	sh, out := newTestShell(t)
	sh.store.Append(atmotest.Reading(1))

	assert.False(t, sh.exec("clear"))
	assert.Equal(t, "cleared\n", out.String())
	assert.Equal(t, 0, sh.store.Len())

	assert.True(t, sh.exec("exit"))
	assert.True(t, sh.exec("  quit "))
	assert.False(t, sh.exec(""))
}

func TestPrintStats(t *testing.T) {
	sh, _ := newTestShell(t)
	sh.store.Append(atmotest.Reading(1))
	st := sh.store.Stats()

	var plain bytes.Buffer
	printStats(&plain, st, false)
	assert.Contains(t, plain.String(), "layout: ring\n")
	assert.Contains(t, plain.String(), "readings: 1/4\n")
	assert.Contains(t, plain.String(), "appends: 1\n")

	var table bytes.Buffer
	printStats(&table, st, true)
	assert.Contains(t, table.String(), "STATISTIC")
	assert.Contains(t, table.String(), "1/4")
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ATMOLOG_DATA_DIR", dir)
	t.Setenv("ATMOLOG_CAPACITY", "3")

	cfgPath = ""
	_, store, err := openStore()
	require.NoError(t, err)
	for _, r := range atmotest.Sequence(1, 5) {
		store.Append(r)
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	exportCmd.SetOut(&out)
	exportFormat, exportWindow, exportOutput = "csv", -1, "-"
	require.NoError(t, runExport(exportCmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "age_minutes,humidity,temperature,pressure", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2,3,"), lines[1])

	out.Reset()
	exportWindow = 1
	require.NoError(t, runExport(exportCmd, nil))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "0,5,"), lines[1])

	exportFormat = "xml"
	assert.Error(t, runExport(exportCmd, nil))
}

type intervalRecorder struct {
	mu sync.Mutex
	d  time.Duration
}

func (r *intervalRecorder) SetInterval(d time.Duration) {
	r.mu.Lock()
	r.d = d
	r.mu.Unlock()
}

func (r *intervalRecorder) get() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d
}

func TestConfigWatcher(t *testing.T) {
	log := logging.Component("test")
	cfg := loader.DefaultConfig()

	w, err := newConfigWatcher("", cfg, nil, nil, log)
	require.NoError(t, err)
	assert.Nil(t, w, "no config file means nothing to watch")

	cfg.Watch.Enabled = false
	w, err = newConfigWatcher("/etc/atmolog.yaml", cfg, nil, nil, log)
	require.NoError(t, err)
	assert.Nil(t, w)

	cfg.Watch.Enabled = true
	_, err = newConfigWatcher(filepath.Join(t.TempDir(), "missing", "atmolog.yaml"), cfg, nil, nil, log)
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "atmolog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  sample_interval: 1\n"), 0644))

	sh, _ := newTestShell(t)
	rec := &intervalRecorder{}
	cfg.Watch.Debounce = loader.Duration(20 * time.Millisecond)
	w, err = newConfigWatcher(path, cfg, sh.store, rec, log)
	require.NoError(t, err)
	require.NotNil(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("storage:\n  sample_interval: 5\n"), 0644))
	require.Eventually(t, func() bool {
		return sh.store.SampleInterval() == 5 && rec.get() == 5*time.Minute
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
