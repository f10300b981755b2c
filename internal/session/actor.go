package session

import (
	"context"
	"strings"
	"time"

	"github.com/kongor-project/bercon/internal/codec"
	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
)

// heartbeatIdle is the maximum idleness before a synthetic empty Command is
// sent to keep the association alive.
const heartbeatIdle = 20 * time.Second

// run is the single actor goroutine that owns all session state. It
// loops over connection attempts, honoring autoReconnect between them,
// until a terminal close (user-requested or BadPassword) stops it.
func (s *Session) run() {
	defer close(s.stopped)

	first := true
	for {
		if !first {
			s.reconnectCount++
		}
		first = false

		abort := s.connectAndServe()
		if abort || !s.opts.AutoReconnect {
			return
		}

		select {
		case <-time.After(reconnectBackoff):
		case req := <-s.closeReq:
			req.done <- true
			return
		}
	}
}

// connectAndServe dials once, runs the login handshake, and services the
// association until it closes. Returns true if reconnection must not be
// attempted (user abort or BadPassword).
func (s *Session) connectAndServe() bool {
	s.resetVolatileState()
	s.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c, err := s.dial(ctx, s.opts.Address(), s.opts.DialTimeout)
	if err != nil {
		cancel()
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindTransport, Err: err})
		s.finishAttempt("dial failed", false)
		return false
	}
	s.conn = c
	s.readerCancel = cancel

	now := time.Now()
	s.state = StateAuthenticating
	s.loginDeadline = now.Add(config.DefaultLoginDeadline)
	s.lastRecvAt = now
	s.lastSentAt = now

	if err := s.sendFrame(codec.EncodeLogin(s.opts.Password)); err != nil {
		s.teardownConn()
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindTransport, Err: err})
		s.finishAttempt("login send failed", false)
		return false
	}

	go s.readLoop(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case dg := <-s.inbound:
			if abort, ok := s.handleInbound(dg); ok {
				s.teardownConn()
				return abort
			}

		case payload := <-s.sendCmd:
			s.scheduler.Enqueue(payload, "")

		case req := <-s.closeReq:
			s.teardownConn()
			s.finishAttempt(req.reason, req.abortReconnect)
			req.done <- true
			return req.abortReconnect

		case now := <-ticker.C:
			if abort, ok := s.handleTick(now); ok {
				s.teardownConn()
				return abort
			}
		}
	}
}

func (s *Session) handleInbound(dg inboundDatagram) (abort bool, terminal bool) {
	if dg.err != nil {
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindTransport, Err: dg.err})
		s.finishAttempt("transport error", false)
		return false, true
	}

	now := time.Now()
	s.lastRecvAt = now

	frame, err := codec.Decode(dg.data)
	if err != nil {
		derr := err.(*codec.DecodeError)
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindDecode, Details: string(derr.Kind)})
		return false, false
	}

	if err := s.router.Dispatch(frame, now); err != nil {
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindParse, Err: err})
		return false, false
	}

	if s.pendingAbort != nil {
		abort := *s.pendingAbort
		s.pendingAbort = nil
		s.finishAttempt(s.closeReason, abort)
		return abort, true
	}
	return false, false
}

func (s *Session) handleTick(now time.Time) (abort bool, terminal bool) {
	tick := s.scheduler.Tick(now)
	if tick.Send != nil {
		frame := codec.EncodeCommand(tick.Send.Seq, tick.Send.Payload)
		if err := s.sendFrame(frame); err != nil {
			s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindTransport, Err: err})
			s.finishAttempt("transport error", false)
			return false, true
		}
	}
	if tick.GaveUp != nil {
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindCommandTimeout})
		s.finishAttempt("command timeout", false)
		return false, true
	}

	s.reassembler.GC(now)

	if s.state == StateAuthenticating && now.After(s.loginDeadline) {
		s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindLoginTimeout})
		s.finishAttempt("login timeout", false)
		return false, true
	}

	if s.state == StateConnected {
		if now.Sub(s.lastRecvAt) > s.opts.IdleLimit {
			s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindIdleTimeout})
			s.finishAttempt("idle timeout", false)
			return false, true
		}
		if now.Sub(s.lastSentAt) >= heartbeatIdle {
			s.scheduler.Enqueue(nil, "heartbeat")
		}
		if now.Sub(s.lastRosterPoll) >= s.opts.PlayerUpdateInterval {
			if s.scheduler.Enqueue([]byte("players"), "roster-poll") {
				s.lastRosterPoll = now
			}
		}
	}

	return false, false
}

// handleLogin is the Router's OnLogin callback.
func (s *Session) handleLogin(status codec.LoginStatus) {
	if s.state != StateAuthenticating {
		return
	}
	if status == codec.LoginSuccess {
		s.state = StateConnected
		s.emit(events.TypeConnected, nil)
		s.scheduler.Enqueue([]byte("players"), "roster-poll")
		s.lastRosterPoll = time.Now()
		return
	}

	s.closeReason = "Invalid password"
	abort := true
	s.pendingAbort = &abort
	s.emit(events.TypeError, events.ErrorPayload{Kind: events.ErrKindAuth})
}

// handleCommandResponse is the Router's OnCommandResponse callback.
func (s *Session) handleCommandResponse(data []byte) {
	s.roster.HandleCommandResponse(string(data))
}

// handleServerMessage is the Router's OnServerMessage callback.
func (s *Session) handleServerMessage(_ byte, data []byte) {
	s.roster.HandleInline(strings.TrimRight(string(data), "\x00"))
}

func (s *Session) resetVolatileState() {
	s.scheduler.Reset()
	s.reassembler.Reset()
	s.roster.Reset()
	s.lastRosterPoll = time.Time{}
	s.pendingAbort = nil
}

func (s *Session) finishAttempt(reason string, abort bool) {
	s.state = StateClosing
	s.emit(events.TypeDisconnected, events.DisconnectedPayload{Reason: reason, Aborted: abort})
	s.state = StateClosed
}

func (s *Session) teardownConn() {
	if s.readerCancel != nil {
		s.readerCancel()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) readLoop(ctx context.Context) {
	c := s.conn
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case s.inbound <- inboundDatagram{err: err}:
			case <-ctx.Done():
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case s.inbound <- inboundDatagram{data: data}:
		case <-ctx.Done():
			return
		}
	}
}
