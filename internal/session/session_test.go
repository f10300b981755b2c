package session

import (
	"context"
	"hash/crc32"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/codec"
	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
)

// fakeConn is a channel-backed stand-in for the UDP association, letting
// tests inject inbound datagrams and observe outbound frames without a
// real socket. net.Pipe is unsuitable: it is stream-oriented and would not
// preserve datagram boundaries between distinct multi-part replies.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	toRead chan []byte
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{toRead: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case data := <-c.toRead:
		n := copy(p, data)
		return n, nil
	case <-c.closed:
		return 0, context.Canceled
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	frame := append([]byte(nil), p...)
	c.mu.Lock()
	c.sent = append(c.sent, frame)
	c.mu.Unlock()
	return len(p), nil
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) deliver(frame []byte) {
	c.toRead <- frame
}

// newTestSession wires a Session whose dial always hands back fc, and
// collects emitted events into a slice guarded by a mutex.
func newTestSession(t *testing.T, fc *fakeConn) (*Session, *eventRecorder) {
	t.Helper()
	opts := config.Options{
		Host:                 "127.0.0.1",
		Port:                 2302,
		Password:             "secret",
		AutoReconnect:        false,
		PlayerUpdateInterval: 5 * time.Second,
		IdleLimit:            10 * time.Second,
		DialTimeout:          time.Second,
	}
	s := New(opts, zerolog.Nop())
	s.dial = func(ctx context.Context, address string, timeout time.Duration) (conn, error) {
		return fc, nil
	}

	rec := &eventRecorder{}
	for _, et := range []events.Type{
		events.TypeConnected, events.TypeDisconnected, events.TypeError,
		events.TypePlayers, events.TypePlayerJoin, events.TypePlayerLeave,
		events.TypePlayerUpdated, events.TypeBELog, events.TypePlayerMessage,
		events.TypeAdminMessage,
	} {
		et := et
		s.Events().Subscribe(et, "test", func(e events.Event) {
			rec.record(e)
		})
	}
	return s, rec
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func waitForEvent(t *testing.T, rec *eventRecorder, typ events.Type, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range rec.snapshot() {
			if e.Type == typ {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event %s", typ)
	return events.Event{}
}

func waitForFrames(t *testing.T, fc *fakeConn, n int, timeout time.Duration) [][]byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if frames := fc.sentFrames(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent frames, got %d", n, len(fc.sentFrames()))
	return nil
}

// A successful login emits Connected and immediately enqueues the
// initial roster poll.
func TestLoginSuccessTransitionsToConnected(t *testing.T) {
	fc := newFakeConn()
	s, rec := newTestSession(t, fc)

	if !s.Connect() {
		t.Fatalf("Connect returned false")
	}
	defer s.Close("test done", true)

	frames := waitForFrames(t, fc, 1, time.Second)
	if len(frames) != 1 {
		t.Fatalf("expected exactly one sent frame (login), got %d", len(frames))
	}

	fc.deliver(encodeInboundLogin(codec.LoginSuccess))

	waitForEvent(t, rec, events.TypeConnected, time.Second)
}

// A rejected password terminates the attempt and suppresses any
// reconnect regardless of AutoReconnect.
func TestLoginFailureAbortsWithoutReconnect(t *testing.T) {
	fc := newFakeConn()
	s, rec := newTestSession(t, fc)
	s.opts.AutoReconnect = true

	if !s.Connect() {
		t.Fatalf("Connect returned false")
	}

	waitForFrames(t, fc, 1, time.Second)
	fc.deliver(encodeInboundLogin(codec.LoginFailed))

	ev := waitForEvent(t, rec, events.TypeDisconnected, time.Second)
	payload := ev.Payload.(events.DisconnectedPayload)
	if !payload.Aborted {
		t.Fatalf("expected aborted disconnect after BadPassword, got %+v", payload)
	}

	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Fatalf("actor did not stop after BadPassword")
	}
}

// The roster engine only sees a "players" dump once every part has
// arrived.
func TestMultiPartResponseIsReassembled(t *testing.T) {
	fc := newFakeConn()
	s, rec := newTestSession(t, fc)
	defer s.Close("test done", true)

	s.Connect()
	waitForFrames(t, fc, 1, time.Second)
	fc.deliver(encodeInboundLogin(codec.LoginSuccess))
	waitForEvent(t, rec, events.TypeConnected, time.Second)

	// The login handler already enqueued the initial roster poll; wait for
	// it to be sent so we know its sequence.
	frames := waitForFrames(t, fc, 2, 2*time.Second)
	seq := frames[1][8]

	header := "Players on server:\n" +
		"[#] [IP Address]:[Port] [Ping] [GUID] [Name]\n" +
		"--------------------------------------------\n" +
		"--- ----------------------------------------\n"
	row := "1   127.0.0.1:2304    12   aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa(OK) Alice\n"
	full := header + row

	mid := len(full) / 2
	part0 := buildCommandPart(seq, 2, 0, []byte(full[:mid]))
	part1 := buildCommandPart(seq, 2, 1, []byte(full[mid:]))

	fc.deliver(part1)
	fc.deliver(part0)

	ev := waitForEvent(t, rec, events.TypePlayers, time.Second)
	snap := ev.Payload.(events.PlayersPayload).Snapshot
	if len(snap.Players) != 1 || snap.Players[0].Name != "Alice" {
		t.Fatalf("unexpected snapshot after reassembly: %+v", snap)
	}
}

func encodeInboundLogin(status codec.LoginStatus) []byte {
	return encodeFrame(codec.KindLogin, []byte{byte(status)})
}

func buildCommandPart(seq byte, total, index uint8, data []byte) []byte {
	body := make([]byte, 0, 4+len(data))
	body = append(body, seq, 0x00, total, index)
	body = append(body, data...)
	return encodeFrame(codec.KindCommand, body)
}

// encodeFrame mirrors codec's unexported encode() for building inbound
// frames in tests (outbound helpers like EncodeLogin/EncodeCommand build
// request shapes, not the reply shapes under test here).
func encodeFrame(kind codec.Kind, body []byte) []byte {
	rest := make([]byte, 2+len(body))
	rest[0] = 0xFF
	rest[1] = byte(kind)
	copy(rest[2:], body)

	crc := crc32.ChecksumIEEE(rest)

	out := make([]byte, 6+len(rest))
	out[0] = 'B'
	out[1] = 'E'
	out[2] = byte(crc)
	out[3] = byte(crc >> 8)
	out[4] = byte(crc >> 16)
	out[5] = byte(crc >> 24)
	copy(out[6:], rest)
	return out
}
