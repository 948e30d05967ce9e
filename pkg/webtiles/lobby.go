package webtiles

import "time"

// LobbyEntry is one active game session announced by the server.
type LobbyEntry struct {
	Username       string `json:"username"`
	GameID         string `json:"game_id"`
	ID             int64  `json:"id"` // server-assigned, unique per session
	IdleTime       int    `json:"idle_time"`
	SpectatorCount int    `json:"spectator_count"`

	// LastUpdate is set locally whenever the server upserts the entry.
	LastUpdate time.Time `json:"-"`
}

// LobbyCompletion reports whether the server has sent a full set of lobby
// entries. Only protocol v1 signals completion; v2 streams incremental
// batches with no such signal, so under v2 it stays NotApplicable.
type LobbyCompletion int

const (
	CompletionUnknown LobbyCompletion = iota
	CompletionIncomplete
	CompletionComplete
	CompletionNotApplicable
)

func (c LobbyCompletion) String() string {
	switch c {
	case CompletionIncomplete:
		return "incomplete"
	case CompletionComplete:
		return "complete"
	case CompletionNotApplicable:
		return "not applicable"
	default:
		return "unknown"
	}
}

// LobbyRegistry holds the lobby entries of one connection. The registry
// owns its entries; callers only ever see copies. Upserts are keyed on
// (username, game id), removals on the server entry id.
type LobbyRegistry struct {
	entries []LobbyEntry
	now     func() time.Time
}

func newLobbyRegistry() *LobbyRegistry {
	return &LobbyRegistry{now: time.Now}
}

// Upsert inserts or updates each entry and stamps its LastUpdate. An entry
// matching an existing (username, game id) pair updates it in place.
func (r *LobbyRegistry) Upsert(entries ...LobbyEntry) {
	now := r.now()
	for _, entry := range entries {
		entry.LastUpdate = now
		if i := r.index(entry.Username, entry.GameID); i >= 0 {
			r.entries[i] = entry
		} else {
			r.entries = append(r.entries, entry)
		}
	}
}

// Remove drops the entry with the given server id. Removing an id the
// registry never saw is a no-op and reports false.
func (r *LobbyRegistry) Remove(id int64) bool {
	for i, entry := range r.entries {
		if entry.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *LobbyRegistry) Clear() {
	r.entries = nil
}

// Entry returns a copy of the entry for the given user and game.
func (r *LobbyRegistry) Entry(username, gameID string) (LobbyEntry, bool) {
	if i := r.index(username, gameID); i >= 0 {
		return r.entries[i], true
	}
	return LobbyEntry{}, false
}

// Entries returns a snapshot of all entries in server-announcement order.
func (r *LobbyRegistry) Entries() []LobbyEntry {
	out := make([]LobbyEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *LobbyRegistry) Len() int {
	return len(r.entries)
}

func (r *LobbyRegistry) index(username, gameID string) int {
	for i, entry := range r.entries {
		if entry.Username == username && entry.GameID == gameID {
			return i
		}
	}
	return -1
}
