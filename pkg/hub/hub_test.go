package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/internal/metrics"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
	"github.com/HMasataka/dashsync/pkg/transport/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records frames and can be told to refuse them
type fakeClient struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	received [][]byte
	full     bool
	closed   bool
}

func newFakeClient(id string) *fakeClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeClient{id: id, ctx: ctx, cancel: cancel}
}

func (c *fakeClient) ID() string               { return c.id }
func (c *fakeClient) Context() context.Context { return c.ctx }

func (c *fakeClient) Send(_ context.Context, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	if c.full {
		return errors.New(errors.ErrorTypeTransport, errors.CodeSendBufferFull, "send buffer full")
	}
	c.received = append(c.received, message)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancel()
	return nil
}

func (c *fakeClient) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.received...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(logging.Config{Level: "debug"}, &bytes.Buffer{})
}

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	h := New(opts)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Stop() })
	return h
}

func register(t *testing.T, h *Hub, ids ...string) []*fakeClient {
	t.Helper()
	out := make([]*fakeClient, 0, len(ids))
	for _, id := range ids {
		c := newFakeClient(id)
		require.NoError(t, h.Register(c))
		out = append(out, c)
	}
	return out
}

func TestNotStarted(t *testing.T) {
	h := New(Options{Logger: testLogger()})
	assert.ErrorIs(t, h.Register(newFakeClient("a")), domain.ErrHubNotStarted)
	assert.ErrorIs(t, h.RelayToAll([]byte("x")), domain.ErrHubNotStarted)
	assert.NoError(t, h.Stop())
}

func TestRegisterAndUnregister(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b")

	assert.Equal(t, 2, h.Count())
	got, ok := h.GetClient("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID())

	assert.ErrorIs(t, h.Register(newFakeClient("a")), domain.ErrClientAlreadyExists)
	assert.Equal(t, 2, h.Count())

	require.NoError(t, h.Unregister("a"))
	assert.Equal(t, 1, h.Count())
	assert.True(t, clients[0].isClosed())
	_, ok = h.GetClient("a")
	assert.False(t, ok)

	assert.ErrorIs(t, h.Unregister("a"), domain.ErrClientNotFound)
}

func TestRelayToOthersSkipsSender(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b", "c")

	require.NoError(t, h.RelayToOthers("a", []byte("hello")))

	assert.Empty(t, clients[0].frames())
	assert.Equal(t, [][]byte{[]byte("hello")}, clients[1].frames())
	assert.Equal(t, [][]byte{[]byte("hello")}, clients[2].frames())
}

func TestRelayToAllIncludesSender(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b")

	require.NoError(t, h.RelayToAll([]byte("climate")))

	for _, c := range clients {
		assert.Equal(t, [][]byte{[]byte("climate")}, c.frames(), c.id)
	}
}

func TestRelayWithNoPeers(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "solo")

	require.NoError(t, h.RelayToOthers("solo", []byte("hello")))
	assert.Empty(t, clients[0].frames())

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.MessagesReceived)
	assert.Equal(t, int64(0), stats.MessagesSent)
}

func TestRelaySkipsFullRecipient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewHub(reg)
	require.NoError(t, err)

	h := startHub(t, Options{Metrics: m})
	clients := register(t, h, "a", "b", "c")

	clients[1].mu.Lock()
	clients[1].full = true
	clients[1].mu.Unlock()

	require.NoError(t, h.RelayToAll([]byte("media")))

	assert.Len(t, clients[0].frames(), 1)
	assert.Empty(t, clients[1].frames())
	assert.Len(t, clients[2].frames(), 1)

	stats := h.Stats()
	assert.Equal(t, int64(2), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.MessagesDropped)
	assert.Equal(t, 3.0, stats.MeanAudience)
	assert.Equal(t, 5.0, stats.MeanBytes)
	assert.Equal(t, 3, stats.ConnectedClients)

	assert.Equal(t, 3.0, gaugeValue(t, reg, "dashsync_hub_connections"))
}

// gaugeValue reads a single unlabelled gauge from reg
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRelayOrderIsPreserved(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b")

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, h.RelayToOthers("a", []byte(fmt.Sprint(i))))
	}

	frames := clients[1].frames()
	require.Len(t, frames, n)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprint(i), string(f))
	}
}

// slowCloser holds Close until released
type slowCloser struct {
	*fakeClient
	release chan struct{}
}

func (c *slowCloser) Close() error {
	<-c.release
	return c.fakeClient.Close()
}

func TestUnregisterDoesNotStallRelays(t *testing.T) {
	h := startHub(t, Options{})
	peers := register(t, h, "peer")

	slow := &slowCloser{fakeClient: newFakeClient("slow"), release: make(chan struct{})}
	require.NoError(t, h.Register(slow))

	unregistered := make(chan error, 1)
	go func() { unregistered <- h.Unregister("slow") }()

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)

	relayed := make(chan error, 1)
	go func() { relayed <- h.RelayToAll([]byte("frame")) }()

	select {
	case err := <-relayed:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("relay blocked behind a closing connection")
	}
	assert.Len(t, peers[0].frames(), 1)
	assert.False(t, slow.isClosed())

	close(slow.release)
	require.NoError(t, <-unregistered)
	assert.True(t, slow.isClosed())
}

func TestRegisterIsVisibleToNextRelay(t *testing.T) {
	h := startHub(t, Options{})
	register(t, h, "a")

	late := newFakeClient("late")
	require.NoError(t, h.Register(late))
	require.NoError(t, h.RelayToOthers("a", []byte("after-join")))

	assert.Equal(t, [][]byte{[]byte("after-join")}, late.frames())
}

func TestStopClosesClients(t *testing.T) {
	h := New(Options{Logger: testLogger()})
	require.NoError(t, h.Start(context.Background()))
	clients := register(t, h, "a", "b")

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())

	for _, c := range clients {
		assert.True(t, c.isClosed())
	}
	assert.Equal(t, 0, h.Count())
	assert.ErrorIs(t, h.RelayToAll([]byte("x")), domain.ErrHubStopped)
}

func TestRouterPolicies(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b")
	router := NewRouter(h, testLogger())

	ctx := protocol.WithClientID(context.Background(), "a")

	text, err := domain.NewMessage(domain.MessageTypeMessage, domain.TestMessage{Text: "hi"})
	require.NoError(t, err)
	_, err = router.Handle(ctx, text)
	require.NoError(t, err)

	climate, err := domain.NewMessage(domain.MessageTypeClimateChange, domain.ClimateSettings{Temp: 24, Fan: 3, Mode: domain.ModeAuto})
	require.NoError(t, err)
	_, err = router.Handle(ctx, climate)
	require.NoError(t, err)

	media, err := domain.NewMessage(domain.MessageTypeMediaControl, domain.MediaState{Index: 1, Playing: true})
	require.NoError(t, err)
	_, err = router.Handle(ctx, media)
	require.NoError(t, err)

	assert.Equal(t, []domain.MessageType{domain.MessageTypeClimateChange, domain.MessageTypeMediaControl}, types(t, clients[0].frames()))
	assert.Equal(t, []domain.MessageType{domain.MessageTypeMessage, domain.MessageTypeClimateChange, domain.MessageTypeMediaControl}, types(t, clients[1].frames()))

	var relayed domain.Message
	require.NoError(t, json.Unmarshal(clients[1].frames()[1], &relayed))
	assert.JSONEq(t, `{"temp":24,"fan":3,"mode":"Auto"}`, string(relayed.Data))
}

func TestRelayForwardsInboundFrame(t *testing.T) {
	h := startHub(t, Options{})
	clients := register(t, h, "a", "b")
	handler := NewRelayHandler(h, testLogger(), domain.MessageTypeClimateChange, ToAll)

	frame := []byte(`{"type":"climateChange",   "data":{"temp":24}}`)
	ctx := protocol.WithFrame(protocol.WithClientID(context.Background(), "a"), frame)

	_, err := handler.Handle(ctx, &domain.Message{Type: domain.MessageTypeClimateChange})
	require.NoError(t, err)

	for _, c := range clients {
		assert.Equal(t, [][]byte{frame}, c.frames())
	}
}

func TestRelayLogsWithContextLogger(t *testing.T) {
	h := startHub(t, Options{})
	register(t, h, "a", "b")

	var buf bytes.Buffer
	scoped := logging.NewWithWriter(logging.Config{Level: "info"}, &buf).
		WithFields(map[string]any{"client_id": "a"})

	handler := NewRelayHandler(h, testLogger(), domain.MessageTypeMessage, ToOthers)
	ctx := logging.WithLogger(protocol.WithClientID(context.Background(), "a"), scoped)
	_, err := handler.Handle(ctx, &domain.Message{Type: domain.MessageTypeMessage})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "relaying message")
	assert.Contains(t, buf.String(), "client_id=a")
}

func TestRouterUnknownType(t *testing.T) {
	h := startHub(t, Options{})
	router := NewRouter(h, testLogger())

	_, err := router.Handle(context.Background(), &domain.Message{Type: "teleport"})
	assert.True(t, errors.HasCode(err, errors.CodeNoHandler))
}

func TestRelayToOthersNeedsSender(t *testing.T) {
	h := startHub(t, Options{})
	handler := NewRelayHandler(h, testLogger(), domain.MessageTypeMessage, ToOthers)

	_, err := handler.Handle(context.Background(), &domain.Message{Type: domain.MessageTypeMessage})
	assert.Error(t, err)
	assert.True(t, handler.CanHandle(domain.MessageTypeMessage))
	assert.False(t, handler.CanHandle(domain.MessageTypeClimateChange))
}

func types(t *testing.T, frames [][]byte) []domain.MessageType {
	t.Helper()
	out := make([]domain.MessageType, 0, len(frames))
	for _, f := range frames {
		var m domain.Message
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m.Type)
	}
	return out
}
