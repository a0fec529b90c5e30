package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClimate(t *testing.T) {
	c := DefaultClimate()
	assert.Equal(t, ClimateSettings{Temp: 22, Fan: 3, Mode: ModeAuto}, c)
	assert.NoError(t, c.Validate())
}

func TestClimateClamp(t *testing.T) {
	tests := []struct {
		name string
		in   ClimateSettings
		want ClimateSettings
	}{
		{"in range", ClimateSettings{20, 2, ModeEco}, ClimateSettings{20, 2, ModeEco}},
		{"too cold", ClimateSettings{10, 3, ModeAuto}, ClimateSettings{MinTemp, 3, ModeAuto}},
		{"too hot", ClimateSettings{45, 3, ModeAuto}, ClimateSettings{MaxTemp, 3, ModeAuto}},
		{"fan low", ClimateSettings{22, 0, ModeMaxAC}, ClimateSettings{22, MinFan, ModeMaxAC}},
		{"fan high", ClimateSettings{22, 9, ModeMaxAC}, ClimateSettings{22, MaxFan, ModeMaxAC}},
		{"unknown mode", ClimateSettings{22, 3, "Turbo"}, ClimateSettings{22, 3, ModeAuto}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp()
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestClimateValidate(t *testing.T) {
	assert.ErrorIs(t, ClimateSettings{15, 3, ModeAuto}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, ClimateSettings{22, 6, ModeAuto}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, ClimateSettings{22, 3, "auto"}.Validate(), ErrInvalidMessage)
}

func TestClimateJSON(t *testing.T) {
	data, err := json.Marshal(ClimateSettings{Temp: 24, Fan: 3, Mode: ModeMaxAC})
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":24,"fan":3,"mode":"Max AC"}`, string(data))
}

func TestMediaNextPrevWrap(t *testing.T) {
	const n = 5

	s := MediaState{Index: 4}
	assert.Equal(t, 0, s.Next(n).Index)
	assert.Equal(t, 3, s.Prev(n).Index)

	s = MediaState{Index: 0, Playing: true}
	assert.Equal(t, MediaState{Index: 4, Playing: true}, s.Prev(n))
	assert.Equal(t, MediaState{Index: 1, Playing: true}, s.Next(n))
}

func TestMediaEmptyPlaylist(t *testing.T) {
	s := MediaState{Index: 2, Playing: true}
	assert.Equal(t, s, s.Next(0))
	assert.Equal(t, s, s.Prev(0))
}

func TestMediaToggleAndEqual(t *testing.T) {
	s := MediaState{Index: 1}
	toggled := s.Toggle()
	assert.True(t, toggled.Playing)
	assert.False(t, s.Equal(toggled))
	assert.True(t, toggled.Toggle().Equal(s))
}

func TestMediaJSON(t *testing.T) {
	data, err := json.Marshal(MediaState{Index: 2, Playing: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"idx":2,"playing":true}`, string(data))
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeClimateChange, ClimateSettings{Temp: 24, Fan: 3, Mode: ModeAuto})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, MessageTypeClimateChange, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	var got ClimateSettings
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, 24, got.Temp)
}

func TestMessageDecodeEmpty(t *testing.T) {
	msg := &Message{Type: MessageTypeMessage}
	var v any
	assert.True(t, errors.Is(msg.Decode(&v), ErrInvalidMessage))
}
