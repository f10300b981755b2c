package scheduler

import (
	"testing"
	"time"
)

func TestSendsHeadWhenIdle(t *testing.T) {
	s := New(Options{})
	s.Enqueue([]byte("status"), "")

	now := time.Now()
	res := s.Tick(now)
	if res.Send == nil || res.IsResend {
		t.Fatalf("res = %+v, want an initial send", res)
	}
	if res.Send.Seq != 0 {
		t.Fatalf("seq = %d, want 0", res.Send.Seq)
	}
}

func TestSequenceAllocatorWraps(t *testing.T) {
	s := New(Options{})
	now := time.Now()
	for i := 0; i < 300; i++ {
		s.Enqueue([]byte("x"), "")
		res := s.Tick(now)
		if res.Send == nil {
			t.Fatalf("iteration %d: expected a send", i)
		}
		want := byte(i % 256)
		if res.Send.Seq != want {
			t.Fatalf("iteration %d: seq = %d, want %d", i, res.Send.Seq, want)
		}
		if !s.Retire(res.Send.Seq) {
			t.Fatalf("iteration %d: retire failed", i)
		}
	}
}

func TestOnlyOneInFlightAtATime(t *testing.T) {
	s := New(Options{})
	s.Enqueue([]byte("a"), "")
	s.Enqueue([]byte("b"), "")

	now := time.Now()
	first := s.Tick(now)
	if first.Send == nil {
		t.Fatalf("expected first send")
	}
	second := s.Tick(now)
	if second.Send != nil {
		t.Fatalf("expected no send while a command is in flight, got %+v", second)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("QueueLen = %d, want 1", s.QueueLen())
	}
}

func TestCoalescesDuplicateKeyedCommand(t *testing.T) {
	s := New(Options{})
	if !s.Enqueue([]byte("players"), "roster-poll") {
		t.Fatalf("first enqueue should succeed")
	}
	if s.Enqueue([]byte("players"), "roster-poll") {
		t.Fatalf("second enqueue with same key should be refused")
	}
	if s.QueueLen() != 1 {
		t.Fatalf("QueueLen = %d, want 1", s.QueueLen())
	}
}

func TestCoalescesAgainstInFlightKey(t *testing.T) {
	s := New(Options{})
	s.Enqueue([]byte("players"), "roster-poll")
	s.Tick(time.Now()) // moves it in flight

	if s.Enqueue([]byte("players"), "roster-poll") {
		t.Fatalf("enqueue should be refused while an identically keyed command is in flight")
	}
}

func TestResendAfterQuietPeriod(t *testing.T) {
	opts := Options{ResendInterval: 2 * time.Second, PartQuietInterval: 500 * time.Millisecond, MaxAttempts: 5}
	s := New(opts)
	s.Enqueue([]byte("status"), "")

	start := time.Now()
	first := s.Tick(start)
	if first.Send == nil {
		t.Fatalf("expected initial send")
	}

	tooSoon := s.Tick(start.Add(1 * time.Second))
	if tooSoon.Send != nil {
		t.Fatalf("expected no resend before resendInterval elapses, got %+v", tooSoon)
	}

	resent := s.Tick(start.Add(3 * time.Second))
	if resent.Send == nil || !resent.IsResend {
		t.Fatalf("expected a resend after resendInterval elapses, got %+v", resent)
	}
	if resent.Send.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", resent.Send.Attempts)
	}
}

func TestPartArrivalSuppressesResend(t *testing.T) {
	opts := Options{ResendInterval: 2 * time.Second, PartQuietInterval: 500 * time.Millisecond, MaxAttempts: 5}
	s := New(opts)
	s.Enqueue([]byte("status"), "")
	start := time.Now()
	first := s.Tick(start)

	partAt := start.Add(3 * time.Second)
	if !s.NotePart(first.Send.Seq, partAt) {
		t.Fatalf("NotePart should match the in-flight sequence")
	}

	// 3.4s since first sent, but only 400ms since the noted part: quiet
	// interval has not elapsed, so no resend should trigger yet.
	res := s.Tick(partAt.Add(400 * time.Millisecond))
	if res.Send != nil {
		t.Fatalf("expected resend suppressed by recent part arrival, got %+v", res)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	opts := Options{ResendInterval: 1 * time.Second, PartQuietInterval: 100 * time.Millisecond, MaxAttempts: 3}
	s := New(opts)
	s.Enqueue([]byte("status"), "")

	now := time.Now()
	s.Tick(now) // attempts=1, initial send

	for i := 0; i < 2; i++ {
		now = now.Add(2 * time.Second)
		res := s.Tick(now)
		if res.GaveUp != nil {
			t.Fatalf("gave up too early at resend %d", i)
		}
	}

	now = now.Add(2 * time.Second)
	final := s.Tick(now)
	if final.GaveUp == nil {
		t.Fatalf("expected give-up after exceeding maxAttempts")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("in-flight slot should be cleared after giving up")
	}
}

func TestRetireReleasesNextCommand(t *testing.T) {
	s := New(Options{})
	s.Enqueue([]byte("a"), "")
	s.Enqueue([]byte("b"), "")

	now := time.Now()
	first := s.Tick(now)
	s.Retire(first.Send.Seq)

	second := s.Tick(now)
	if second.Send == nil {
		t.Fatalf("expected next queued command to be released after retire")
	}
	if string(second.Send.Payload) != "b" {
		t.Fatalf("payload = %q, want %q", second.Send.Payload, "b")
	}
}
