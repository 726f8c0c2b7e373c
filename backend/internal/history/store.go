package history

import "slices"

// Store owns one Buffer per channel. The set of channels is fixed at construction.
type Store struct {
	channels []Channel
	buffers  map[Channel]*Buffer
}

// NewStore creates a buffer of the given capacity for each channel.
func NewStore(capacity int, channels ...Channel) *Store {
	s := &Store{
		buffers: make(map[Channel]*Buffer, len(channels)),
	}

	for _, ch := range channels {
		if _, exists := s.buffers[ch]; exists {
			continue
		}

		s.channels = append(s.channels, ch)
		s.buffers[ch] = NewBuffer(capacity)
	}

	return s
}

// Buffer returns the buffer for ch.
func (s *Store) Buffer(ch Channel) (*Buffer, bool) {
	b, ok := s.buffers[ch]
	return b, ok
}

// Channels returns the configured channels in registration order.
func (s *Store) Channels() []Channel {
	return slices.Clone(s.channels)
}
