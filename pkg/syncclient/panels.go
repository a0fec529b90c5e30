package syncclient

import (
	"github.com/HMasataka/dashsync/pkg/domain"
)

// ClimatePanel edits the shared climate settings. Every change is clamped to
// the valid range before it is applied and sent.
type ClimatePanel struct {
	client *Client
}

// NewClimatePanel creates a panel backed by client
func NewClimatePanel(client *Client) *ClimatePanel {
	return &ClimatePanel{client: client}
}

// Settings returns the displayed settings
func (p *ClimatePanel) Settings() domain.ClimateSettings {
	return p.client.Climate().Current()
}

// SetTemp sets the target temperature
func (p *ClimatePanel) SetTemp(temp int) domain.ClimateSettings {
	s := p.Settings()
	s.Temp = temp
	return p.apply(s)
}

// StepTemp moves the temperature by delta degrees
func (p *ClimatePanel) StepTemp(delta int) domain.ClimateSettings {
	return p.SetTemp(p.Settings().Temp + delta)
}

// SetFan sets the fan speed
func (p *ClimatePanel) SetFan(fan int) domain.ClimateSettings {
	s := p.Settings()
	s.Fan = fan
	return p.apply(s)
}

// SetMode selects a mode. Unknown modes fall back to Auto.
func (p *ClimatePanel) SetMode(mode domain.ClimateMode) domain.ClimateSettings {
	s := p.Settings()
	s.Mode = mode
	return p.apply(s)
}

func (p *ClimatePanel) apply(s domain.ClimateSettings) domain.ClimateSettings {
	s = s.Clamp()
	p.client.SendClimateUpdate(s)
	return s
}

// Track is one playlist entry
type Track struct {
	Title  string `json:"title" yaml:"title"`
	Artist string `json:"artist" yaml:"artist"`
	Src    string `json:"src,omitempty" yaml:"src,omitempty"`
}

// MediaPlayer drives the shared media state over a fixed playlist.
// With an empty playlist every control is a no-op.
type MediaPlayer struct {
	client *Client
	tracks []Track
}

// NewMediaPlayer creates a player for tracks
func NewMediaPlayer(client *Client, tracks []Track) *MediaPlayer {
	return &MediaPlayer{client: client, tracks: tracks}
}

// State returns the displayed media state
func (p *MediaPlayer) State() domain.MediaState {
	return p.client.Media().Current()
}

// Track returns the displayed track
func (p *MediaPlayer) Track() (Track, bool) {
	idx := p.State().Index
	if idx < 0 || idx >= len(p.tracks) {
		return Track{}, false
	}
	return p.tracks[idx], true
}

// Next skips to the following track, wrapping to the first
func (p *MediaPlayer) Next() {
	if len(p.tracks) == 0 {
		return
	}
	p.client.SendMediaUpdate(p.State().Next(len(p.tracks)))
}

// Prev goes back one track, wrapping to the last
func (p *MediaPlayer) Prev() {
	if len(p.tracks) == 0 {
		return
	}
	p.client.SendMediaUpdate(p.State().Prev(len(p.tracks)))
}

// TogglePlay flips between playing and paused
func (p *MediaPlayer) TogglePlay() {
	if len(p.tracks) == 0 {
		return
	}
	p.client.SendMediaUpdate(p.State().Toggle())
}

// PlaybackRejected reverts the playing flag after the local audio output
// refused to start. Peers are not told.
func (p *MediaPlayer) PlaybackRejected() {
	p.client.revertPlaying()
}
