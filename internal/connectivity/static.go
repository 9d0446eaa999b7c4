package connectivity

import (
	"sync/atomic"

	"mindcare-go/internal/offline"
)

// Static is a manually controlled connectivity signal.
type Static struct {
	online    atomic.Bool
	listeners listeners
}

// NewStatic returns a signal that starts in the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) IsOnline() bool { return s.online.Load() }

func (s *Static) OnOnline(fn func()) (cancel func()) { return s.listeners.add(fn) }

// SetOnline changes the state. Callbacks fire only on an offline-to-online edge.
func (s *Static) SetOnline(online bool) {
	was := s.online.Swap(online)
	if online && !was {
		s.listeners.fire()
	}
}

// Compile-time check that Static implements offline.Connectivity interface
var _ offline.Connectivity = (*Static)(nil)
