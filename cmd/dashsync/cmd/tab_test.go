package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/dashsync/internal/config"
	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/internal/server"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/syncclient"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quiet() *logging.Logger {
	return logging.NewWithWriter(logging.Config{Level: "error"}, &bytes.Buffer{})
}

func newTestTab(t *testing.T, url string) (*tab, *syncBuffer) {
	t.Helper()

	opts := syncclient.DefaultOptions()
	if url != "" {
		opts.URL = url
	}
	opts.Logger = quiet()
	client := syncclient.New(opts)
	t.Cleanup(client.Close)

	out := &syncBuffer{}
	tb := newTab(client, defaultTracks, out)
	tb.subscribe()
	return tb, out
}

func TestParseMode(t *testing.T) {
	m, err := parseMode("max ac")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeMaxAC, m)

	m, err = parseMode(" eco ")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeEco, m)

	_, err = parseMode("turbo")
	assert.Error(t, err)
}

func TestLoadPlaylist(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tracks.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- title: One\n  artist: A\n- title: Two\n  artist: B\n  src: two.mp3\n"), 0o644))
	tracks, err := loadPlaylist(yamlPath)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "two.mp3", tracks[1].Src)

	jsonPath := filepath.Join(dir, "tracks.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"title":"Solo","artist":"C"}]`), 0o644))
	tracks, err = loadPlaylist(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []syncclient.Track{{Title: "Solo", Artist: "C"}}, tracks)

	_, err = loadPlaylist(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTabCommandsOffline(t *testing.T) {
	tb, out := newTestTab(t, "")

	for _, line := range []string{"temp 40", "fan 2", "mode eco", "prev", "play", "say hello there", ""} {
		quit, err := tb.exec(line)
		require.NoError(t, err, line)
		assert.False(t, quit)
	}

	assert.Equal(t, domain.ClimateSettings{Temp: domain.MaxTemp, Fan: 2, Mode: domain.ModeEco}, tb.climate.Settings())
	assert.Equal(t, domain.MediaState{Index: len(defaultTracks) - 1, Playing: true}, tb.player.State())
	assert.Contains(t, out.String(), "Low Beams")

	tb.printState()
	assert.Contains(t, out.String(), "state    disconnected (-)")
}

func TestTabCommandErrors(t *testing.T) {
	tb, _ := newTestTab(t, "")

	for _, line := range []string{"temp warm", "mode turbo", "say", "teleport"} {
		_, err := tb.exec(line)
		assert.Error(t, err, line)
	}

	quit, err := tb.exec("quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestTabLoopStopsOnQuit(t *testing.T) {
	tb, out := newTestTab(t, "")

	err := tb.loop(context.Background(), strings.NewReader("nonsense\nfan 4\nquit\nfan 1\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, tb.climate.Settings().Fan)
	assert.Contains(t, out.String(), `! unknown command "nonsense"`)
}

func TestTabsSyncThroughServer(t *testing.T) {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port

	srv, err := server.New(cfg, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	a, _ := newTestTab(t, url)
	b, bOut := newTestTab(t, url)

	for _, tb := range []*tab{a, b} {
		require.NoError(t, tb.client.Connect(ctx))
	}
	require.Eventually(t, func() bool {
		return a.client.Connected() && b.client.Connected() && srv.Hub().Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, err = a.exec("temp 25")
	require.NoError(t, err)
	_, err = a.exec("say hi b")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := bOut.String()
		return strings.Contains(s, "* climate 25°C") && strings.Contains(s, "< hi b")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 25, b.climate.Settings().Temp)
}
