package hardware

import (
	"context"
	"sync"
	"time"
)

// boardState mirrors one board's 16 relay channels and its DAC channels.
type boardState struct {
	relays  [16]bool
	relayTS [16]time.Time

	dacPct [16]float64
	dacTS  [16]time.Time
}

// Sim is an in-memory simulation adapter (spec §4.8: "in-memory mirror of
// the same interface, timestamps every operation, never fails"). It is
// used both by the daemon when hardware.simulation is set and by tests.
type Sim struct {
	mu     sync.Mutex
	opened bool
	boards map[string]*boardState

	// Now, if set, is used instead of time.Now (tests only).
	Now func() time.Time
}

// NewSim creates an unopened simulation adapter.
func NewSim() *Sim {
	return &Sim{boards: make(map[string]*boardState)}
}

func (s *Sim) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sim) board(name string) *boardState {
	b, ok := s.boards[name]
	if !ok {
		b = &boardState{}
		s.boards[name] = b
	}
	return b
}

func (s *Sim) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

func (s *Sim) SetRelay(ctx context.Context, board string, channel int, on bool) error {
	if channel < 0 || channel > 15 {
		return ErrChannelRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrBusClosed
	}
	b := s.board(board)
	b.relays[channel] = on
	b.relayTS[channel] = s.now()
	return nil
}

func (s *Sim) GetRelay(ctx context.Context, board string, channel int) (bool, error) {
	if channel < 0 || channel > 15 {
		return false, ErrChannelRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return false, ErrBusClosed
	}
	return s.board(board).relays[channel], nil
}

func (s *Sim) CommitAll(ctx context.Context, board string, mask uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrBusClosed
	}
	b := s.board(board)
	now := s.now()
	for ch := 0; ch < 16; ch++ {
		b.relays[ch] = mask&(1<<uint(ch)) != 0
		b.relayTS[ch] = now
	}
	return nil
}

func (s *Sim) SetIntensity(ctx context.Context, boardID string, dacChannel int, pct float64) error {
	if dacChannel < 0 || dacChannel > 15 {
		return ErrChannelRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrBusClosed
	}
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	b := s.board(boardID)
	b.dacPct[dacChannel] = pct
	b.dacTS[dacChannel] = s.now()
	return nil
}

func (s *Sim) SetVoltage(ctx context.Context, boardID string, dacChannel int, volts float64) error {
	return s.SetIntensity(ctx, boardID, dacChannel, volts/10*100)
}

// RelayState returns the last-written state of a channel, for test
// assertions.
func (s *Sim) RelayState(board string, channel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board(board).relays[channel]
}

// IntensityState returns the last-written DAC percentage of a channel.
func (s *Sim) IntensityState(board string, channel int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board(board).dacPct[channel]
}
