package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/syncclient"
)

var (
	tabURL      string
	tabPlaylist string
)

var defaultTracks = []syncclient.Track{
	{Title: "Night Drive", Artist: "Halcyon"},
	{Title: "Coastline", Artist: "Meridian"},
	{Title: "Overpass", Artist: "Static Bloom"},
	{Title: "Low Beams", Artist: "The Tollbooths"},
}

var tabCmd = &cobra.Command{
	Use:   "tab",
	Short: "Run an interactive dashboard tab",
	Long: `Run an interactive dashboard tab connected to the hub.

Commands, one per line:
  temp N     set the target temperature
  fan N      set the fan speed
  mode M     set the climate mode (Auto, Eco, Max AC)
  next       skip to the next track
  prev       go back one track
  play       toggle playback
  say TEXT   send a message to the other tabs
  state      print the current view
  quit       leave`,
	RunE: runTab,
}

func init() {
	rootCmd.AddCommand(tabCmd)
	tabCmd.Flags().StringVarP(&tabURL, "url", "u", "", "hub websocket URL (overrides config)")
	tabCmd.Flags().StringVar(&tabPlaylist, "playlist", "", "playlist file, yaml or json list of {title, artist, src}")
}

func runTab(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if tabURL != "" {
		cfg.Client.URL = tabURL
	}

	tracks := defaultTracks
	if tabPlaylist != "" {
		if tracks, err = loadPlaylist(tabPlaylist); err != nil {
			return err
		}
	}

	// stdout belongs to the prompt
	logger := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())

	opts := syncclient.DefaultOptions()
	opts.URL = cfg.Client.URL
	opts.Logger = logger
	opts.SendBuffer = cfg.Client.SendBuffer
	opts.ReadTimeout = cfg.Client.ReadTimeout
	opts.AutoReconnect = cfg.Client.Reconnect
	opts.Retry = syncclient.RetryConfig{
		Min:    cfg.Client.Retry.Min,
		Max:    cfg.Client.Retry.Max,
		Factor: cfg.Client.Retry.Factor,
		Jitter: cfg.Client.Retry.Jitter,
	}

	client := syncclient.New(opts)
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := newTab(client, tracks, cmd.OutOrStdout())
	t.subscribe()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	return t.loop(ctx, cmd.InOrStdin())
}

// loadPlaylist reads a list of tracks. JSON files parse as YAML.
func loadPlaylist(path string) ([]syncclient.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	var tracks []syncclient.Track
	if err := yaml.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	return tracks, nil
}

func parseMode(s string) (domain.ClimateMode, error) {
	s = strings.TrimSpace(s)
	for _, m := range domain.Modes() {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q, want one of %v", s, domain.Modes())
}

// tab is the terminal front end of one sync client
type tab struct {
	client  *syncclient.Client
	climate *syncclient.ClimatePanel
	player  *syncclient.MediaPlayer

	mu  sync.Mutex
	out io.Writer
}

func newTab(client *syncclient.Client, tracks []syncclient.Track, out io.Writer) *tab {
	return &tab{
		client:  client,
		climate: syncclient.NewClimatePanel(client),
		player:  syncclient.NewMediaPlayer(client, tracks),
		out:     out,
	}
}

func (t *tab) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *tab) subscribe() {
	t.client.OnConnect(func() {
		t.printf("* connected as %s", t.client.ID())
	})
	t.client.OnDisconnect(func() {
		t.printf("* disconnected")
	})
	t.client.OnMessage(func(payload json.RawMessage) {
		var msg domain.TestMessage
		if err := json.Unmarshal(payload, &msg); err == nil && msg.Text != "" {
			t.printf("< %s", msg.Text)
			return
		}
		t.printf("< %s", payload)
	})
	t.client.OnClimateChange(func(s domain.ClimateSettings) {
		t.printf("* climate %s", formatClimate(s))
	})
	t.client.OnMediaControl(func(domain.MediaState) {
		t.printf("* media %s", t.formatMedia())
	})
}

func (t *tab) loop(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := t.exec(line)
			if err != nil {
				t.printf("! %v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// exec runs one command line
func (t *tab) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch strings.ToLower(fields[0]) {
	case "temp":
		n, err := intArg(rest)
		if err != nil {
			return false, err
		}
		t.printf("climate %s", formatClimate(t.climate.SetTemp(n)))
	case "fan":
		n, err := intArg(rest)
		if err != nil {
			return false, err
		}
		t.printf("climate %s", formatClimate(t.climate.SetFan(n)))
	case "mode":
		m, err := parseMode(rest)
		if err != nil {
			return false, err
		}
		t.printf("climate %s", formatClimate(t.climate.SetMode(m)))
	case "next":
		t.player.Next()
		t.printf("media %s", t.formatMedia())
	case "prev":
		t.player.Prev()
		t.printf("media %s", t.formatMedia())
	case "play":
		t.player.TogglePlay()
		t.printf("media %s", t.formatMedia())
	case "say":
		if rest == "" {
			return false, fmt.Errorf("say needs some text")
		}
		t.client.SendMessage(domain.TestMessage{Text: rest, Timestamp: time.Now()})
	case "state":
		t.printState()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}

	return false, nil
}

func (t *tab) printState() {
	id := t.client.ID()
	if id == "" {
		id = "-"
	}
	t.printf("state    %s (%s)", t.client.State(), id)
	t.printf("climate  %s", formatClimate(t.climate.Settings()))
	t.printf("media    %s", t.formatMedia())
	if last := t.client.LastMessage(); last != nil {
		t.printf("message  %s", last)
	}
}

func (t *tab) formatMedia() string {
	s := t.player.State()
	status := "paused"
	if s.Playing {
		status = "playing"
	}

	track, ok := t.player.Track()
	if !ok {
		return fmt.Sprintf("#%d %s", s.Index, status)
	}
	return fmt.Sprintf("#%d %s - %s (%s)", s.Index, track.Artist, track.Title, status)
}

func formatClimate(s domain.ClimateSettings) string {
	return fmt.Sprintf("%d°C fan %d %s", s.Temp, s.Fan, s.Mode)
}

func intArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %q", s)
	}
	return n, nil
}
