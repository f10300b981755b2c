// Package router demultiplexes decoded frames: Login status goes to
// the session, Command responses correlate against the scheduler's
// in-flight slot (reassembling multi-part replies first), and
// ServerMessages are deduplicated, acknowledged, and — gated on session
// state — delivered for roster processing.
package router

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kongor-project/bercon/internal/codec"
	"github.com/kongor-project/bercon/internal/reassembly"
	"github.com/kongor-project/bercon/internal/scheduler"
)

// ackWindowSize is the sliding window of recently-acked ServerMessage
// sequences used for dedup; the server retransmits pending
// messages until acknowledged, so duplicates must be acked but not
// re-delivered to the roster engine.
const ackWindowSize = 256

// Deps wires the router to its collaborators. All fields are required.
type Deps struct {
	Scheduler   *scheduler.Scheduler
	Reassembler *reassembly.Reassembler

	OnLogin           func(status codec.LoginStatus)
	OnCommandResponse func(data []byte)
	OnServerMessage   func(seq byte, data []byte)
	SendFrame         func(frame []byte) error
	IsConnected       func() bool
}

// Router dispatches decoded frames
type Router struct {
	deps Deps

	// ackSeen maps a ServerMessage sequence to the arrival index at which
	// it was last accepted; arrivals counts accepted messages. A sequence
	// counts as a duplicate only while it sits within the last
	// ackWindowSize accepted arrivals — the sequence space is also 256
	// values, so a plain seen-set would saturate after one full wrap and
	// misclassify every later message as a duplicate.
	ackSeen  *lru.Cache[byte, uint64]
	arrivals uint64
}

// New creates a Router wired to deps.
func New(deps Deps) *Router {
	cache, err := lru.New[byte, uint64](ackWindowSize)
	if err != nil {
		// ackWindowSize is a positive compile-time constant; lru.New only
		// fails for size <= 0.
		panic(err)
	}
	return &Router{deps: deps, ackSeen: cache}
}

// Dispatch routes a single decoded frame.
func (r *Router) Dispatch(frame codec.Frame, now time.Time) error {
	switch frame.Kind {
	case codec.KindLogin:
		status, err := codec.ParseLoginStatus(frame.Body)
		if err != nil {
			return err
		}
		r.deps.OnLogin(status)
		return nil

	case codec.KindCommand:
		return r.dispatchCommand(frame.Body, now)

	case codec.KindServerMessage:
		return r.dispatchServerMessage(frame.Body)
	}
	return nil
}

func (r *Router) dispatchCommand(body []byte, now time.Time) error {
	whole, part, err := codec.ClassifyCommand(body)
	if err != nil {
		return err
	}

	if whole != nil {
		// No matching in-flight sequence: this is either a heartbeat's
		// empty reply or a stray late reply to an abandoned/retired
		// command. Both are silently dropped.
		if cur, ok := r.deps.Scheduler.Current(); !ok || cur.Seq != whole.Seq {
			return nil
		}
		r.deps.Scheduler.Retire(whole.Seq)
		r.deps.Reassembler.DropSeq(whole.Seq)
		r.deps.OnCommandResponse(whole.Data)
		return nil
	}

	r.deps.Scheduler.NotePart(part.Seq, now)
	payload, complete := r.deps.Reassembler.Add(part, now)
	if !complete {
		return nil
	}
	if !r.deps.Scheduler.Retire(part.Seq) {
		// Stale sequence (its command already timed out and was
		// abandoned); drop the late reassembly.
		return nil
	}
	r.deps.OnCommandResponse(payload)
	return nil
}

func (r *Router) dispatchServerMessage(body []byte) error {
	msg, err := codec.ClassifyServerMessage(body)
	if err != nil {
		return err
	}

	// Always ack, even for a duplicate: the server retransmits pending
	// messages until it sees its own sequence acknowledged.
	if err := r.deps.SendFrame(codec.EncodeAck(msg.Seq)); err != nil {
		return err
	}

	if at, seen := r.ackSeen.Get(msg.Seq); seen && r.arrivals-at < ackWindowSize {
		return nil
	}
	r.ackSeen.Add(msg.Seq, r.arrivals)
	r.arrivals++

	// Gated on Connected only: whether processing further suppresses
	// emission pre-rosterReady is the roster engine's decision,
	// since it must still observe the message to update state silently.
	if !r.deps.IsConnected() {
		return nil
	}

	r.deps.OnServerMessage(msg.Seq, msg.Data)
	return nil
}
