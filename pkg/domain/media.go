package domain

// MediaState is the shared media transport slice
type MediaState struct {
	Index   int  `json:"idx"`
	Playing bool `json:"playing"`
}

// Next moves to the following track, wrapping at the end of a playlist of n tracks.
// An empty playlist leaves the state unchanged.
func (s MediaState) Next(n int) MediaState {
	if n <= 0 {
		return s
	}
	s.Index = wrap(s.Index+1, n)
	return s
}

// Prev moves to the preceding track, wrapping at the start
func (s MediaState) Prev(n int) MediaState {
	if n <= 0 {
		return s
	}
	s.Index = wrap(s.Index-1, n)
	return s
}

// Toggle flips the playing flag
func (s MediaState) Toggle() MediaState {
	s.Playing = !s.Playing
	return s
}

// Equal compares track index and playing flag
func (s MediaState) Equal(other MediaState) bool {
	return s.Index == other.Index && s.Playing == other.Playing
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
