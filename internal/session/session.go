// Package session implements the connection state machine, login
// handshake, heartbeat/watchdog timers, and reconnection policy that own
// a single RCON association, wiring together the Scheduler, Reassembler,
// Router, and Roster Engine behind a single actor goroutine.
package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
	"github.com/kongor-project/bercon/internal/reassembly"
	"github.com/kongor-project/bercon/internal/roster"
	"github.com/kongor-project/bercon/internal/router"
	"github.com/kongor-project/bercon/internal/scheduler"
)

// State is an element of the session state machine.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// reconnectBackoff is the fixed delay before retrying after a
// non-aborted close.
const reconnectBackoff = 2 * time.Second

// tickInterval drives Scheduler maintenance, the watchdog, heartbeat, and
// roster polling from a single timer.
const tickInterval = 1 * time.Second

// conn is the minimal datagram transport surface the session needs; the
// concrete UDP implementation is the *net.UDPConn a net.Dialer returns, and
// tests substitute a fake in-memory implementation.
type conn interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
}

// dialFunc opens the datagram association; overridable in tests.
type dialFunc func(ctx context.Context, address string, timeout time.Duration) (conn, error)

func dialUDP(ctx context.Context, address string, timeout time.Duration) (conn, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", address, err)
	}
	return c, nil
}

// Session owns one RCON association end-to-end: transport, state machine,
// scheduler, reassembler, router, and roster. All state is mutated by a
// single actor goroutine; public methods hand off to it via channels.
type Session struct {
	id   string
	opts config.Options
	log  zerolog.Logger
	dial dialFunc

	bus         *events.Bus
	scheduler   *scheduler.Scheduler
	reassembler *reassembly.Reassembler
	router      *router.Router
	roster      *roster.Roster

	state          State
	conn           conn
	loginDeadline  time.Time
	lastRecvAt     time.Time
	lastSentAt     time.Time
	lastRosterPoll time.Time
	closeReason    string
	abortReconnect bool
	pendingAbort   *bool
	startedAt      time.Time
	reconnectCount int

	sendCmd  chan []byte
	closeReq chan closeRequest
	inbound  chan inboundDatagram
	stopped  chan struct{}

	readerCancel context.CancelFunc
}

type closeRequest struct {
	reason         string
	abortReconnect bool
	done           chan bool
}

type inboundDatagram struct {
	data []byte
	err  error
}

// New creates a Session with normalized options. Call Connect to begin.
func New(opts config.Options, log zerolog.Logger) *Session {
	opts = opts.Normalize()
	id := uuid.NewString()
	log = log.With().Str("component", "session").Str("session_id", id).Logger()
	bus := events.NewBus()

	s := &Session{
		id:          id,
		opts:        opts,
		log:         log,
		dial:        dialUDP,
		bus:         bus,
		scheduler:   scheduler.New(scheduler.Options{}),
		reassembler: reassembly.New(),
		roster:      roster.New(log, bus.EmitSync),
		sendCmd:     make(chan []byte, 64),
		closeReq:    make(chan closeRequest, 1),
		inbound:     make(chan inboundDatagram, 64),
	}
	s.router = router.New(router.Deps{
		Scheduler:         s.scheduler,
		Reassembler:       s.reassembler,
		OnLogin:           s.handleLogin,
		OnCommandResponse: s.handleCommandResponse,
		OnServerMessage:   s.handleServerMessage,
		SendFrame:         s.sendFrame,
		IsConnected:       func() bool { return s.state == StateConnected },
	})
	return s
}

// ID returns the session's unique identifier, used to namespace telemetry
// topics and distinguish concurrent sessions in logs.
func (s *Session) ID() string { return s.id }

// Events returns the event bus subscribers attach to.
func (s *Session) Events() *events.Bus { return s.bus }

// Players returns an immutable roster snapshot.
func (s *Session) Players() events.Snapshot {
	return s.roster.Snapshot()
}

// State reports the current state machine state as a string, for the
// introspection API.
func (s *Session) State() string { return s.state.String() }

// StartedAt returns when Connect was first called.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// ReconnectCount reports how many connection attempts have been made
// beyond the first.
func (s *Session) ReconnectCount() int { return s.reconnectCount }

// Connect transitions out of Closed and starts the actor goroutine.
// Returns true if a connection attempt was started.
func (s *Session) Connect() bool {
	if s.state != StateClosed {
		return false
	}
	s.startedAt = time.Now()
	s.stopped = make(chan struct{})
	go s.run()
	return true
}

// Close requests the session close. abortReconnect defaults to
// !autoReconnect when nil is not distinguishable in Go; callers pass the
// value explicitly. Idempotent: closing an already-stopped session
// returns false without blocking.
func (s *Session) Close(reason string, abortReconnect bool) bool {
	if s.stopped == nil {
		return false
	}
	req := closeRequest{reason: reason, abortReconnect: abortReconnect, done: make(chan bool, 1)}
	select {
	case s.closeReq <- req:
	case <-s.stopped:
		return false
	}
	select {
	case ok := <-req.done:
		return ok
	case <-s.stopped:
		return false
	}
}

// SendCommand enqueues a user Command.
func (s *Session) SendCommand(text string) {
	select {
	case s.sendCmd <- []byte(text):
	default:
		s.log.Warn().Msg("send queue full, dropping command")
	}
}

func (s *Session) sendFrame(frame []byte) error {
	if s.conn == nil {
		return fmt.Errorf("session: no active connection")
	}
	_, err := s.conn.Write(frame)
	if err == nil {
		s.lastSentAt = time.Now()
	}
	return err
}

func (s *Session) emit(t events.Type, payload interface{}) {
	s.bus.EmitSync(events.Event{Type: t, At: time.Now(), Payload: payload})
}
