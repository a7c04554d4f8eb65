package audio

import (
	"sync"
	"time"
)

// PlayFunc receives a decoded PCM16 chunk at the moment it should start
// playing. Implementations hand the chunk to the actual audio output; the
// scheduler only owns the timing.
type PlayFunc func(pcm []byte)

// SchedulerOption is a functional option for configuring a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithClock overrides the scheduler's clock. Used in tests to make cursor
// arithmetic deterministic.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler sequences synthesized-speech chunks for gapless playback.
//
// It keeps a single "next available play time" cursor: each chunk is scheduled
// to start at max(now, cursor) and the cursor then advances by the chunk's
// duration, so chunks never overlap and back-to-back delivery produces no
// audible gaps. All methods are safe for concurrent use.
type Scheduler struct {
	play       PlayFunc
	sampleRate int
	now        func() time.Time

	mu      sync.Mutex
	cursor  time.Time
	pending map[*time.Timer]struct{}
	stopped bool
}

// NewScheduler creates a Scheduler that plays chunks through play at
// sampleRate. Options are applied in order.
func NewScheduler(play PlayFunc, sampleRate int, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		play:       play,
		sampleRate: sampleRate,
		now:        time.Now,
		pending:    make(map[*time.Timer]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules pcm for playback and returns the time it will start.
// Chunks enqueued while earlier ones are still playing are queued seamlessly
// behind them; a chunk arriving after a silence gap plays immediately.
func (s *Scheduler) Enqueue(pcm []byte) time.Time {
	d := PCM16Duration(pcm, s.sampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return time.Time{}
	}

	start := s.now()
	if s.cursor.After(start) {
		start = s.cursor
	}
	s.cursor = start.Add(d)

	delay := start.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		stopped := s.stopped
		delete(s.pending, timer)
		s.mu.Unlock()
		if !stopped {
			s.play(pcm)
		}
	})
	s.pending[timer] = struct{}{}

	return start
}

// Cursor returns the time at which the next chunk would start if enqueued now.
func (s *Scheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Stop cancels all scheduled-but-not-yet-played chunks and resets the cursor
// so a new session starts clean. The scheduler cannot be reused after Stop;
// create a new one per session.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for t := range s.pending {
		t.Stop()
	}
	s.pending = nil
	s.cursor = time.Time{}
}
