// Package roster maintains the authoritative player table by merging two
// independent sources: asynchronous inline notifications carried as
// ServerMessage payloads, and the periodic tabular dump returned by the
// "players" command. Each inline message class has an anchored regex;
// unmatched payloads surface as non-fatal advisories.
package roster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/events"
)

var (
	rePlayerConnecting = regexp.MustCompile(
		`^Player #(\d+) (.+) \((\d+\.\d+\.\d+\.\d+):\d+\) connected$`)
	reGUIDCalculated = regexp.MustCompile(
		`^Player #(\d+) .+ BE GUID: ([a-f0-9]{32})$`)
	reGUIDVerified = regexp.MustCompile(
		`^Verified GUID \(([a-f0-9]{32})\) of player #(\d+) (.+)$`)
	rePlayerDisconnected = regexp.MustCompile(
		`^Player #(\d+) .+ disconnected$`)
	rePlayerKicked = regexp.MustCompile(
		`^Player #(\d+) .+ \([a-f0-9]{32}\) has been kicked by BattlEye: (.+)$`)
	reBELog = regexp.MustCompile(
		`(?s)^([A-Za-z ]+) Log: #(\d+) (.+) \(([a-f0-9]{32})\) - #(\d+) (.+)$`)
	rePlayerMessage = regexp.MustCompile(
		`^\(([A-Za-z]+)\) (.+)$`)
	reAdminMessage = regexp.MustCompile(
		`^RCon admin #(\d+): \((.+?)\) (.+)$`)

	reRosterHeader = regexp.MustCompile(`^Players on server:`)
	// reRosterRow matches one player row of the tabular dump:
	// "<id> <ip>:<port> <ping> <guid|-><(OK|?)>? <name>[ (Lobby)]".
	reRosterRow = regexp.MustCompile(
		`^(\d+)\s+(\d+\.\d+\.\d+\.\d+):\d+\s+(-?\d+)\s+` +
			`([a-f0-9]{32}|-)(\(OK\)|\?)?\s+(.+?)(\s+\(Lobby\))?$`)
)

// ConnectingPlayer is the transient entry between a "connected" notification
// and either GUID verification (promotion to Player) or a disconnect.
type ConnectingPlayer struct {
	ID   uint32
	Name string
	IP   string
	GUID string
}

// Roster is the authoritative player table plus the connecting-player
// set. Not safe for concurrent use; owned exclusively by the session
// actor.
type Roster struct {
	log zerolog.Logger

	players     map[uint32]events.Player
	connecting  map[uint32]ConnectingPlayer
	rosterReady bool

	emit func(events.Event)
	now  func() time.Time
}

// New creates an empty Roster. emit delivers events synchronously in
// arrival order; now supplies the current time and is overridable in
// tests.
func New(log zerolog.Logger, emit func(events.Event)) *Roster {
	return &Roster{
		log:        log.With().Str("component", "roster").Logger(),
		players:    make(map[uint32]events.Player),
		connecting: make(map[uint32]ConnectingPlayer),
		emit:       emit,
		now:        time.Now,
	}
}

// Reset clears all roster state, e.g. across a reconnect.
func (r *Roster) Reset() {
	r.players = make(map[uint32]events.Player)
	r.connecting = make(map[uint32]ConnectingPlayer)
	r.rosterReady = false
}

// RosterReady reports whether the first complete dump has been
// processed.
func (r *Roster) RosterReady() bool { return r.rosterReady }

// Snapshot returns an immutable, independently-owned copy of the roster.
func (r *Roster) Snapshot() events.Snapshot {
	out := make([]events.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return events.Snapshot{
		Players:     out,
		RosterReady: r.rosterReady,
		CapturedAt:  r.now(),
	}
}

func (r *Roster) emitEvent(t events.Type, payload interface{}) {
	r.emit(events.Event{Type: t, At: r.now(), Payload: payload})
}

// HandleInline parses one inline ServerMessage payload and applies it to
// roster state. Emission of playerJoin/playerLeave is suppressed until
// rosterReady; state is updated regardless.
func (r *Roster) HandleInline(payload string) {
	if payload == "" {
		return
	}
	switch {
	case rePlayerConnecting.MatchString(payload):
		r.handlePlayerConnecting(payload)
	case reGUIDCalculated.MatchString(payload):
		r.handleGUIDCalculated(payload)
	case reGUIDVerified.MatchString(payload):
		r.handleGUIDVerified(payload)
	case rePlayerKicked.MatchString(payload):
		r.handlePlayerKicked(payload)
	case rePlayerDisconnected.MatchString(payload):
		r.handlePlayerDisconnected(payload)
	case reBELog.MatchString(payload):
		r.handleBELog(payload)
	case reAdminMessage.MatchString(payload):
		r.handleAdminMessage(payload)
	case rePlayerMessage.MatchString(payload):
		r.handlePlayerMessage(payload)
	default:
		r.handleSystemAdvisory(payload)
	}
}

func (r *Roster) handlePlayerConnecting(payload string) {
	m := rePlayerConnecting.FindStringSubmatch(payload)
	id, err := parseID(m[1])
	if err != nil {
		r.parseError("playerConnecting", payload)
		return
	}
	r.connecting[id] = ConnectingPlayer{ID: id, Name: m[2], IP: m[3]}
}

func (r *Roster) handleGUIDCalculated(payload string) {
	m := reGUIDCalculated.FindStringSubmatch(payload)
	id, err := parseID(m[1])
	if err != nil {
		r.parseError("guidCalculated", payload)
		return
	}
	guid := m[2]

	if cp, ok := r.connecting[id]; ok {
		cp.GUID = guid
		r.connecting[id] = cp
		return
	}
	// No ConnectingPlayer: if a verified Player already holds this id and
	// guid, this is a redundant recalculation — ignore.
	if p, ok := r.players[id]; ok && p.GUID == guid {
		return
	}
}

func (r *Roster) handleGUIDVerified(payload string) {
	m := reGUIDVerified.FindStringSubmatch(payload)
	guid := m[1]
	id, err := parseID(m[2])
	if err != nil {
		r.parseError("guidVerified", payload)
		return
	}
	name := m[3]

	// Dropping the ConnectingPlayer without re-emitting join when a
	// verified Player with a matching guid already exists.
	if existing, ok := r.players[id]; ok && existing.Verified && existing.GUID == guid {
		delete(r.connecting, id)
		return
	}

	p := events.Player{ID: id, Name: name, GUID: guid, Verified: true, Lobby: true, ConnectedAt: r.now()}
	if cp, ok := r.connecting[id]; ok {
		if cp.IP != "" {
			p.IP = cp.IP
		}
		if cp.Name != "" {
			p.Name = cp.Name
		}
		delete(r.connecting, id)
	} else if existing, ok := r.players[id]; ok {
		p.IP = existing.IP
		p.Ping = existing.Ping
	}

	r.players[id] = p
	if r.rosterReady {
		r.emitEvent(events.TypePlayerJoin, events.PlayerJoinPayload{Player: p})
	}
}

func (r *Roster) handlePlayerDisconnected(payload string) {
	m := rePlayerDisconnected.FindStringSubmatch(payload)
	id, err := parseID(m[1])
	if err != nil {
		r.parseError("playerDisconnected", payload)
		return
	}
	r.removePlayer(id, "disconnected")
}

func (r *Roster) handlePlayerKicked(payload string) {
	m := rePlayerKicked.FindStringSubmatch(payload)
	id, err := parseID(m[1])
	if err != nil {
		r.parseError("playerKicked", payload)
		return
	}
	r.removePlayer(id, m[2])
}

func (r *Roster) removePlayer(id uint32, reason string) {
	if _, ok := r.connecting[id]; ok {
		delete(r.connecting, id)
	}
	p, ok := r.players[id]
	if !ok {
		return
	}
	delete(r.players, id)
	if r.rosterReady {
		r.emitEvent(events.TypePlayerLeave, events.PlayerLeavePayload{Player: p, Reason: reason})
	}
}

func (r *Roster) handleBELog(payload string) {
	m := reBELog.FindStringSubmatch(payload)
	id, err := parseID(m[2])
	if err != nil {
		r.parseError("beLog", payload)
		return
	}
	filter, err := strconv.Atoi(m[5])
	if err != nil {
		r.parseError("beLog", payload)
		return
	}

	p := events.BELogPayload{
		LogType:  m[1],
		PlayerID: id,
		GUID:     m[4],
		Filter:   filter,
		Body:     m[6],
	}
	if player, ok := r.players[id]; ok {
		player := player
		p.Player = &player
	}
	r.emitEvent(events.TypeBELog, p)
}

func (r *Roster) handlePlayerMessage(payload string) {
	m := rePlayerMessage.FindStringSubmatch(payload)
	channel := m[1]
	rest := m[2]

	player, text, ok := r.longestNamePrefixMatch(rest)
	if !ok {
		r.handleSystemAdvisory(payload)
		return
	}
	r.emitEvent(events.TypePlayerMessage, events.PlayerMessagePayload{
		Player: player, Channel: channel, Text: text,
	})
}

// longestNamePrefixMatch finds the known Player whose name is the longest
// prefix of "<name>: <text>".
func (r *Roster) longestNamePrefixMatch(rest string) (events.Player, string, bool) {
	var best events.Player
	bestLen := -1
	for _, p := range r.players {
		prefix := p.Name + ": "
		if strings.HasPrefix(rest, prefix) && len(prefix) > bestLen {
			best = p
			bestLen = len(prefix)
		}
	}
	if bestLen < 0 {
		return events.Player{}, "", false
	}
	return best, rest[bestLen:], true
}

func (r *Roster) handleAdminMessage(payload string) {
	m := reAdminMessage.FindStringSubmatch(payload)
	id, err := parseID(m[1])
	if err != nil {
		r.parseError("adminMessage", payload)
		return
	}
	r.emitEvent(events.TypeAdminMessage, events.AdminMessagePayload{
		AdminID: id, Channel: m[2], Text: m[3],
	})
}

// handleSystemAdvisory covers the remaining non-fatal notifications (ban
// check/master query timeouts, "Connected to BE Master", and anything else
// not matching a known rule) — surfaced as UnknownServerMessage, never
// fatal.
func (r *Roster) handleSystemAdvisory(payload string) {
	r.emitEvent(events.TypeError, events.ErrorPayload{
		Kind:    events.ErrKindUnknownMessage,
		Details: payload,
	})
}

func (r *Roster) parseError(rule, raw string) {
	r.log.Warn().Str("rule", rule).Str("raw", raw).Msg("inline message matched but capture failed")
	r.emitEvent(events.TypeError, events.ErrorPayload{
		Kind:    events.ErrKindParse,
		Err:     fmt.Errorf("roster: rule %s matched but capture failed", rule),
		Details: raw,
	})
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
