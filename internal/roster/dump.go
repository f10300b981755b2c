package roster

import (
	"strconv"
	"strings"

	"github.com/kongor-project/bercon/internal/events"
)

// rosterRow is one parsed line of the tabular "players" reply.
type rosterRow struct {
	id       uint32
	ip       string
	ping     int32
	guid     string
	verified bool
	name     string
	lobby    bool
}

// HandleCommandResponse is the Router's onCommandResponse entrypoint:
// every whole/reassembled Command response is delivered here
// regardless of which command produced it. Only the tabular "players"
// reply is meaningful to the roster; anything else is dropped silently —
// the protocol defines no event for arbitrary command output.
func (r *Roster) HandleCommandResponse(payload string) {
	if reRosterHeader.MatchString(strings.TrimSpace(firstLine(payload))) {
		r.HandleRosterDump(payload)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// HandleRosterDump parses the complete reply to the "players" command and
// reconciles it against the authoritative roster. The reply begins
// with a header line, three column-header lines, then one line per player.
func (r *Roster) HandleRosterDump(payload string) {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !reRosterHeader.MatchString(strings.TrimSpace(lines[0])) {
		r.parseError("rosterDump", payload)
		return
	}

	// Skip the announcement line plus the three column-header lines.
	body := lines[1:]
	if len(body) >= 3 {
		body = body[3:]
	}

	for _, line := range body {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, ok := parseRosterRow(line)
		if !ok {
			r.parseError("rosterRow", line)
			continue
		}
		r.applyRosterRow(row)
	}

	r.rosterReady = true
	r.emitEvent(events.TypePlayers, events.PlayersPayload{Snapshot: r.Snapshot()})
}

func parseRosterRow(line string) (rosterRow, bool) {
	m := reRosterRow.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return rosterRow{}, false
	}
	id, err := parseID(m[1])
	if err != nil {
		return rosterRow{}, false
	}
	ping, err := strconv.ParseInt(m[3], 10, 32)
	if err != nil {
		return rosterRow{}, false
	}
	guid := m[4]
	if guid == "-" {
		guid = ""
	}
	return rosterRow{
		id:       id,
		ip:       m[2],
		ping:     int32(ping),
		guid:     guid,
		verified: m[5] == "(OK)",
		name:     strings.TrimSpace(m[6]),
		lobby:    m[7] != "",
	}, true
}

func (r *Roster) applyRosterRow(row rosterRow) {
	if existing, ok := r.players[row.id]; ok {
		changes := events.FieldChange{
			Ping:     existing.Ping != row.ping,
			Verified: existing.Verified != row.verified,
			Lobby:    existing.Lobby != row.lobby,
		}
		existing.Ping = row.ping
		existing.Verified = row.verified
		existing.Lobby = row.lobby
		if existing.IP == "" && row.ip != "" {
			existing.IP = row.ip
		}
		r.players[row.id] = existing
		if changes.Any() {
			r.emitEvent(events.TypePlayerUpdated, events.PlayerUpdatedPayload{Player: existing, Changes: changes})
		}
		return
	}

	if row.guid == "" {
		cp, ok := r.connecting[row.id]
		if !ok {
			cp = ConnectingPlayer{ID: row.id}
		}
		cp.IP = row.ip
		cp.Name = row.name
		r.connecting[row.id] = cp
		return
	}

	if !r.rosterReady {
		p := events.Player{
			ID:          row.id,
			Name:        row.name,
			IP:          row.ip,
			GUID:        row.guid,
			Ping:        row.ping,
			Lobby:       row.lobby,
			Verified:    row.verified,
			ConnectedAt: r.now(),
		}
		r.players[row.id] = p
		delete(r.connecting, row.id)
		r.emitEvent(events.TypePlayerJoin, events.PlayerJoinPayload{Player: p})
		return
	}

	// rosterReady and no existing Player: a join notification was missed.
	// Do not synthesize a join; await the next inline verification cycle.
	r.log.Debug().Uint32("id", row.id).Msg("roster dump reports unknown verified player; awaiting inline join")
}
