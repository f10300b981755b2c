// Package scheduler owns outbound sequence allocation, the command queue,
// and the resend/give-up policy for the single in-flight RCON command.
// It holds no network or codec dependency: callers drive it with Tick and
// feed back NotePart/Retire as responses correlate.
package scheduler

import "time"

const (
	// DefaultResendInterval is the time since the in-flight command was
	// first sent before a resend may trigger.
	DefaultResendInterval = 2 * time.Second

	// DefaultPartQuietInterval is how long the channel must have been
	// quiet (no part received) before a resend may trigger.
	DefaultPartQuietInterval = 750 * time.Millisecond

	// DefaultMaxAttempts is the number of consecutive sends attempted
	// before giving up on the in-flight command.
	DefaultMaxAttempts = 5
)

// InFlight describes the single command currently awaiting a response.
type InFlight struct {
	Seq         byte
	Payload     []byte
	Key         string
	Attempts    int
	FirstSentAt time.Time
	LastSentAt  time.Time
	LastPartAt  time.Time
}

type queuedCommand struct {
	payload []byte
	key     string
}

// Scheduler implements the FIFO command queue and single in-flight slot.
// Not safe for concurrent use; the session actor goroutine owns it.
type Scheduler struct {
	resendInterval    time.Duration
	partQuietInterval time.Duration
	maxAttempts       int

	seqCounter byte
	queue      []queuedCommand
	inFlight   *InFlight
}

// Options configures resend timing and give-up policy; zero values fall
// back to the package defaults.
type Options struct {
	ResendInterval    time.Duration
	PartQuietInterval time.Duration
	MaxAttempts       int
}

// New creates an empty Scheduler.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		resendInterval:    opts.ResendInterval,
		partQuietInterval: opts.PartQuietInterval,
		maxAttempts:       opts.MaxAttempts,
	}
	if s.resendInterval <= 0 {
		s.resendInterval = DefaultResendInterval
	}
	if s.partQuietInterval <= 0 {
		s.partQuietInterval = DefaultPartQuietInterval
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	return s
}

// Enqueue appends a command payload to the queue. If key is non-empty the
// enqueue is refused (returns false) when a command with the same key is
// already queued or in flight — this is how system commands such as the
// periodic roster poll are coalesced.
func (s *Scheduler) Enqueue(payload []byte, key string) bool {
	if key != "" {
		if s.inFlight != nil && s.inFlight.Key == key {
			return false
		}
		for _, q := range s.queue {
			if q.key == key {
				return false
			}
		}
	}
	s.queue = append(s.queue, queuedCommand{payload: payload, key: key})
	return true
}

// QueueLen reports the number of commands waiting to be sent.
func (s *Scheduler) QueueLen() int { return len(s.queue) }

// Current returns the in-flight command, if any.
func (s *Scheduler) Current() (*InFlight, bool) {
	return s.inFlight, s.inFlight != nil
}

// TickResult reports what a Tick call decided to do.
type TickResult struct {
	// Send is non-nil when a frame should be (re)sent this tick, for the
	// payload and sequence it carries.
	Send *InFlight
	// IsResend distinguishes a resend of Send from its initial send.
	IsResend bool
	// GaveUp is non-nil when this tick abandoned the in-flight command
	// after exceeding maxAttempts; the caller must surface CommandTimeout.
	GaveUp *InFlight
}

// Tick advances scheduler state by one maintenance tick:
//  1. if nothing is in flight and the queue is non-empty, dequeue and send;
//  2. else if the in-flight command's resend policy triggers, resend;
//  3. if attempts has exceeded maxAttempts, abandon.
func (s *Scheduler) Tick(now time.Time) TickResult {
	if s.inFlight == nil {
		if len(s.queue) == 0 {
			return TickResult{}
		}
		head := s.queue[0]
		s.queue = s.queue[1:]

		seq := s.seqCounter
		s.seqCounter++

		s.inFlight = &InFlight{
			Seq:         seq,
			Payload:     head.payload,
			Key:         head.key,
			Attempts:    1,
			FirstSentAt: now,
			LastSentAt:  now,
			LastPartAt:  now,
		}
		return TickResult{Send: s.inFlight}
	}

	elapsedTotal := now.Sub(s.inFlight.FirstSentAt)
	elapsedQuiet := now.Sub(s.inFlight.LastPartAt)
	if elapsedTotal < s.resendInterval || elapsedQuiet < s.partQuietInterval {
		return TickResult{}
	}

	s.inFlight.Attempts++
	s.inFlight.LastSentAt = now

	if s.inFlight.Attempts > s.maxAttempts {
		gaveUp := s.inFlight
		s.inFlight = nil
		return TickResult{GaveUp: gaveUp}
	}

	return TickResult{Send: s.inFlight, IsResend: true}
}

// NotePart records that a response part for seq just arrived, resetting
// the resend quiet timer. Returns false if seq does not match the current
// in-flight command (the caller should treat the part as unsolicited).
func (s *Scheduler) NotePart(seq byte, now time.Time) bool {
	if s.inFlight == nil || s.inFlight.Seq != seq {
		return false
	}
	s.inFlight.LastPartAt = now
	return true
}

// Retire completes the in-flight command matching seq, freeing its slot
// for the next queued command. Returns false if seq does not match.
func (s *Scheduler) Retire(seq byte) bool {
	if s.inFlight == nil || s.inFlight.Seq != seq {
		return false
	}
	s.inFlight = nil
	return true
}

// Reset clears all queued and in-flight state, e.g. across a reconnect.
func (s *Scheduler) Reset() {
	s.queue = nil
	s.inFlight = nil
	s.seqCounter = 0
}
