package main

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemeJSON = `{
	"name": "ring",
	"nodes": [
		{"id": "a", "label": "start", "kind": "stitch"},
		{"id": "b", "kind": "stitch"},
		{"id": "c", "kind": "stitch"}
	],
	"links": [
		{"source": "a", "target": "b", "kind": "chain"},
		{"source": "b", "target": "c", "kind": "chain"},
		{"source": "c", "target": "a", "kind": "direct"}
	]
}`

func writeScheme(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ring.json")
	require.NoError(t, os.WriteFile(path, []byte(schemeJSON), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRender_PNG(t *testing.T) {
	input := writeScheme(t)
	output := filepath.Join(t.TempDir(), "ring.png")

	_, err := execute(t, "render", input, "-o", output, "--width", "120", "--height", "80", "--frames", "50")
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestRender_SVGAndJSON(t *testing.T) {
	input := writeScheme(t)
	dir := t.TempDir()

	svg := filepath.Join(dir, "ring.svg")
	_, err := execute(t, "render", input, "-o", svg, "--frames", "20", "--labels")
	require.NoError(t, err)
	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
	assert.Contains(t, string(data), "stroke-dasharray", "direct links are dashed")
	assert.Contains(t, string(data), ">start</text>")

	js := filepath.Join(dir, "ring.json")
	_, err = execute(t, "render", input, "-o", js, "--frames", "20")
	require.NoError(t, err)
	data, err = os.ReadFile(js)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nodeCount": 3`)
}

func TestRender_Errors(t *testing.T) {
	input := writeScheme(t)

	_, err := execute(t, "render", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "render", input, "-o", filepath.Join(t.TempDir(), "ring.gif"), "--frames", "1")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = execute(t, "render", input, "--width=-3")
	assert.ErrorContains(t, err, "invalid configuration")

	_, err = execute(t, "render", input, "--palette", "neon", "--frames", "1")
	assert.ErrorContains(t, err, "unknown palette")
}

func TestRender_ConfigFile(t *testing.T) {
	input := writeScheme(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "stitchgraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("viewer:\n  width: 64\n  height: 48\n"), 0o644))
	output := filepath.Join(dir, "ring.png")

	_, err := execute(t, "render", input, "-o", output, "--config", cfgPath, "--height", "32", "--frames", "5")
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width, "from the config file")
	assert.Equal(t, 32, cfg.Height, "flags override the file")
}

func TestPick_Background(t *testing.T) {
	input := writeScheme(t)
	out, err := execute(t, "pick", input, "--x", "1", "--y", "1", "--frames", "20")
	require.NoError(t, err)
	assert.Equal(t, "background", strings.TrimSpace(out))
}

func TestWatchFile_DebouncesBursts(t *testing.T) {
	path := writeScheme(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, 300*time.Millisecond, logger, func() { reloads.Add(1) })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(schemeJSON), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte("{}"), 0o644))

	assert.Eventually(t, func() bool { return reloads.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load(), "one reload per burst")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchFile_MissingDirectory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := watchFile(context.Background(), filepath.Join(t.TempDir(), "gone", "x.json"), time.Millisecond, logger, func() {})
	assert.Error(t, err)
}
