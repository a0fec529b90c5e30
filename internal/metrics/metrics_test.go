package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHub(reg)
	require.NoError(t, err)

	h.SetConnections(3)
	h.Relayed(PolicyOthers, 100)
	h.Relayed(PolicyAll, 200)
	h.Relayed(PolicyAll, 300)
	h.Delivered(5)
	h.Dropped(1)

	assert.Equal(t, 3.0, testutil.ToFloat64(h.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.relayed.WithLabelValues(PolicyOthers)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.relayed.WithLabelValues(PolicyAll)))
	assert.Equal(t, 5.0, testutil.ToFloat64(h.delivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.dropped))

	n, err := testutil.GatherAndCount(reg, "dashsync_hub_frame_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewHub(reg)
	require.NoError(t, err)

	_, err = NewHub(reg)
	assert.Error(t, err)
}

func TestNilHubIsNoop(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() {
		h.SetConnections(1)
		h.Relayed(PolicyAll, 10)
		h.Delivered(1)
		h.Dropped(1)
	})
}
