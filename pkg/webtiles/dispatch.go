package webtiles

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawl-tools/webtiles/pkg/protocol"
)

// The two wire versions shape the same facts differently. Each inbound
// message is first normalized into one of these events, then applied by a
// single version-blind step. An event is pure data; apply owns all
// mutation.
type event interface{ isEvent() }

type pingEvent struct{}
type loginConfirmedEvent struct{}
type catalogEvent struct{ games GameCatalog }
type lobbyUpdateEvent struct {
	entries []LobbyEntry
	remove  []int64
}
type lobbyClearEvent struct{}
type lobbyCompleteEvent struct{}
type watchStartedEvent struct{}
type spectatorsEvent struct{ names []string }
type watchEndedEvent struct{}

func (pingEvent) isEvent()           {}
func (loginConfirmedEvent) isEvent() {}
func (catalogEvent) isEvent()        {}
func (lobbyUpdateEvent) isEvent()    {}
func (lobbyClearEvent) isEvent()     {}
func (lobbyCompleteEvent) isEvent()  {}
func (watchStartedEvent) isEvent()   {}
func (spectatorsEvent) isEvent()     {}
func (watchEndedEvent) isEvent()     {}

// Handle dispatches one inbound message, mutating the connection's derived
// state, and reports whether the message type is one it recognizes.
//
// login_fail is deliberately not handled: callers watching for it must
// treat its appearance in the unhandled set as an authentication failure
// and react themselves (typically by disconnecting). Unrecognized types
// likewise come back false with all state untouched, so callers can layer
// their own dispatch on top.
func (c *Conn) Handle(ctx context.Context, m protocol.Message) (bool, error) {
	ev, err := decodeEvent(c.version, m)
	if err != nil {
		return false, err
	}
	if ev == nil {
		return false, nil
	}
	return c.apply(ctx, ev)
}

func (c *Conn) apply(ctx context.Context, ev event) (bool, error) {
	switch ev := ev.(type) {
	case pingEvent:
		if err := c.Send(ctx, protocol.Pong()); err != nil {
			return false, err
		}

	case loginConfirmedEvent:
		c.loggedIn = true

	case catalogEvent:
		c.games = ev.games

	case lobbyUpdateEvent:
		c.lobby.Upsert(ev.entries...)
		for _, id := range ev.remove {
			if !c.lobby.Remove(id) {
				c.log.Debug("remove for unknown lobby id", zap.Int64("id", id))
			}
		}

	case lobbyClearEvent:
		c.lobby.Clear()
		if c.version >= V2 {
			c.completion = CompletionNotApplicable
		} else {
			c.completion = CompletionIncomplete
		}

	case lobbyCompleteEvent:
		c.completion = CompletionComplete

	case watchStartedEvent:
		c.watch.watching = true

	case spectatorsEvent:
		c.watch.setSpectators(ev.names, c.username)

	case watchEndedEvent:
		// Only meaningful mid-watch; otherwise report it unhandled.
		if !c.watch.watching {
			return false, nil
		}
		c.watch.reset()
	}
	return true, nil
}

// decodeEvent normalizes a wire message into an event, or nil when the
// type isn't ours to handle.
func decodeEvent(v Version, m protocol.Message) (event, error) {
	switch m.Type {
	case protocol.MsgPing:
		return pingEvent{}, nil
	case protocol.MsgLoginSuccess:
		return loginConfirmedEvent{}, nil
	case protocol.MsgLobbyClear:
		return lobbyClearEvent{}, nil
	case protocol.MsgWatchingStarted:
		return watchStartedEvent{}, nil
	case protocol.MsgGameEnded, protocol.MsgGoLobby:
		return watchEndedEvent{}, nil
	case protocol.MsgGo:
		var nav struct {
			Path string `json:"path"`
		}
		if err := m.Decode(&nav); err != nil {
			return nil, protocol.Errorf("bad go message: %v", err)
		}
		if nav.Path == "/" {
			return watchEndedEvent{}, nil
		}
		return nil, nil
	}

	if v >= V2 {
		return decodeV2Event(m)
	}
	return decodeV1Event(m)
}

func decodeV1Event(m protocol.Message) (event, error) {
	switch m.Type {
	case protocol.MsgLobbyEntry:
		// The entry's fields ride on the message itself.
		var entry LobbyEntry
		if err := m.Decode(&entry); err != nil {
			return nil, protocol.Errorf("bad lobby_entry: %v", err)
		}
		return lobbyUpdateEvent{entries: []LobbyEntry{entry}}, nil

	case protocol.MsgLobbyRemove:
		var body struct {
			ID int64 `json:"id"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad lobby_remove: %v", err)
		}
		return lobbyUpdateEvent{remove: []int64{body.ID}}, nil

	case protocol.MsgLobbyComplete:
		return lobbyCompleteEvent{}, nil

	case protocol.MsgSetGameLinks:
		var body struct {
			Content string `json:"content"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad set_game_links: %v", err)
		}
		return catalogEvent{games: parseGameLinks(body.Content)}, nil

	case protocol.MsgUpdateSpectators:
		var body struct {
			Names string `json:"names"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad update_spectators: %v", err)
		}
		return spectatorsEvent{names: parseV1Spectators(body.Names)}, nil
	}
	return nil, nil
}

func decodeV2Event(m protocol.Message) (event, error) {
	switch m.Type {
	case protocol.MsgLobby:
		// One message type carries an optional upsert batch and/or an
		// optional removal.
		var body struct {
			Entries []LobbyEntry `json:"entries"`
			Remove  *int64       `json:"remove"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad lobby message: %v", err)
		}
		ev := lobbyUpdateEvent{entries: body.Entries}
		if body.Remove != nil {
			ev.remove = []int64{*body.Remove}
		}
		return ev, nil

	case protocol.MsgGameInfo:
		var body struct {
			Games []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"games"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad game_info: %v", err)
		}
		games := make(GameCatalog, len(body.Games))
		for _, g := range body.Games {
			games[g.Name] = g.ID
		}
		return catalogEvent{games: games}, nil

	case protocol.MsgUpdateSpectators:
		var body struct {
			Spectators []struct {
				Name string `json:"name"`
			} `json:"spectators"`
		}
		if err := m.Decode(&body); err != nil {
			return nil, protocol.Errorf("bad update_spectators: %v", err)
		}
		names := make([]string, 0, len(body.Spectators))
		for _, s := range body.Spectators {
			names = append(names, s.Name)
		}
		return spectatorsEvent{names: names}, nil
	}
	return nil, nil
}
